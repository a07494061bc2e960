package tmsl

import (
	"sort"
	"strings"
)

// dataTypeCasing maps the lowercase dataType spellings agents produce to
// the canonical tabular casing.
var dataTypeCasing = map[string]string{
	"string":   "String",
	"int64":    "Int64",
	"double":   "Double",
	"boolean":  "Boolean",
	"datetime": "DateTime",
	"decimal":  "Decimal",
}

// stringlyBooleanKeys are object flags that frequently arrive as "true"
// or "false" strings instead of booleans.
var stringlyBooleanKeys = []string{
	"isHidden", "isKey", "isNullable", "isUnique", "isDefaultLabel",
	"isDefaultImage", "isAvailableInMDX", "isPrivate",
}

// Normalize returns a deterministic copy of a TMSL document: object
// arrays sorted by name (key columns ahead of the rest), dataType casing
// canonical, stringly booleans coerced, and empty formatString dropped.
// Normalizing twice yields the same document.
func Normalize(doc map[string]any) map[string]any {
	out := deepCopy(doc).(map[string]any)
	if model, ok := Model(out); ok {
		normalizeModel(model)
	}
	if table, ok := TableScope(out); ok {
		normalizeTable(table)
	}
	return out
}

func normalizeModel(model map[string]any) {
	for _, table := range objects(model, "tables") {
		normalizeTable(table)
	}
	sortByName(model, "tables")
	sortByName(model, "relationships")
	sortByName(model, "expressions")
	sortByName(model, "annotations")
	sortByName(model, "roles")
}

func normalizeTable(table map[string]any) {
	for _, column := range objects(table, "columns") {
		normalizeDataType(column)
		coerceBooleans(column)
		dropEmptyFormatString(column)
	}
	for _, measure := range objects(table, "measures") {
		coerceBooleans(measure)
		dropEmptyFormatString(measure)
	}
	for _, partition := range objects(table, "partitions") {
		coerceBooleans(partition)
	}
	for _, hierarchy := range objects(table, "hierarchies") {
		coerceBooleans(hierarchy)
		sortByName(hierarchy, "levels")
	}
	coerceBooleans(table)

	sortColumns(table)
	sortByName(table, "measures")
	sortByName(table, "partitions")
	sortByName(table, "hierarchies")
	sortByName(table, "annotations")
}

func normalizeDataType(column map[string]any) {
	dataType, ok := column["dataType"].(string)
	if !ok {
		return
	}
	if canonical, known := dataTypeCasing[strings.ToLower(dataType)]; known {
		column["dataType"] = canonical
	}
}

func coerceBooleans(object map[string]any) {
	for _, key := range stringlyBooleanKeys {
		value, present := object[key].(string)
		if !present {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true":
			object[key] = true
		case "false":
			object[key] = false
		}
	}
}

func dropEmptyFormatString(object map[string]any) {
	if value, present := object["formatString"].(string); present && strings.TrimSpace(value) == "" {
		delete(object, "formatString")
	}
}

// sortColumns orders key columns first, then the rest, each group by name.
func sortColumns(table map[string]any) {
	columns, ok := asSlice(table["columns"])
	if !ok {
		return
	}
	sort.SliceStable(columns, func(i, j int) bool {
		left, leftOK := asMap(columns[i])
		right, rightOK := asMap(columns[j])
		if !leftOK || !rightOK {
			return false
		}
		leftKey := left["isKey"] == true
		rightKey := right["isKey"] == true
		if leftKey != rightKey {
			return leftKey
		}
		return stringField(left, "name") < stringField(right, "name")
	})
}

func sortByName(object map[string]any, key string) {
	entries, ok := asSlice(object[key])
	if !ok {
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		left, leftOK := asMap(entries[i])
		right, rightOK := asMap(entries[j])
		if !leftOK || !rightOK {
			return false
		}
		return stringField(left, "name") < stringField(right, "name")
	})
}

func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, entry := range typed {
			out[key] = deepCopy(entry)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for index, entry := range typed {
			out[index] = deepCopy(entry)
		}
		return out
	default:
		return typed
	}
}
