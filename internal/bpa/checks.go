package bpa

import (
	"fmt"
	"strings"

	"fabrik/internal/tmsl"
)

// Violation is one rule match against a model object.
type Violation struct {
	RuleID        string   `json:"ruleId"`
	RuleName      string   `json:"ruleName"`
	Category      string   `json:"category"`
	Severity      Severity `json:"severity"`
	ObjectType    string   `json:"objectType"`
	ObjectName    string   `json:"objectName"`
	TableName     string   `json:"tableName,omitempty"`
	Description   string   `json:"description"`
	FixExpression string   `json:"fixExpression,omitempty"`
}

// checkFunc inspects a model and reports the objects violating one rule.
// modelContext carries facts that need a whole-model view (relationship
// columns, DirectLake detection).
type checkFunc func(model map[string]any, ctx *modelContext) []objectRef

// objectRef names a violating object.
type objectRef struct {
	objectType string
	objectName string
	tableName  string
}

type modelContext struct {
	modelType tmsl.ModelType
	// foreignKeys holds "table.column" for the from side of each relationship.
	foreignKeys map[string]struct{}
}

func newModelContext(model map[string]any) *modelContext {
	ctx := &modelContext{
		modelType:   tmsl.DetectModelType(model),
		foreignKeys: map[string]struct{}{},
	}
	for _, relationship := range objects(model, "relationships") {
		table := stringField(relationship, "fromTable")
		column := stringField(relationship, "fromColumn")
		if table != "" && column != "" {
			ctx.foreignKeys[table+"."+column] = struct{}{}
		}
	}
	return ctx
}

// checks maps rule IDs to their enforcement. Rules in rules.json with no
// entry here are metadata-only and reported as such by RulesSummary.
var checks = map[string]checkFunc{
	"AVOID_FLOATING_POINT_DATA_TYPES": checkFloatingPointColumns,
	"USE_DIVIDE_FUNCTION":             checkDivision,
	"AVOID_IFERROR":                   checkIfError,
	"ADD_OBJECT_DESCRIPTIONS":         checkDescriptions,
	"TRIM_OBJECT_NAMES":               checkWhitespaceNames,
	"FORMAT_STRING_MEASURES":          checkMeasureFormatStrings,
	"HIDE_FOREIGN_KEYS":               checkForeignKeysHidden,
	"AVOID_BIDIRECTIONAL_RELATIONSHIPS": checkBidirectionalRelationships,
	"AVOID_MANY_TO_MANY_RELATIONSHIPS":  checkManyToManyRelationships,
	"DIRECTLAKE_LINEAGE_TAGS":           checkDirectLakeLineageTags,
	"DATE_COLUMNS_USE_DATETIME":         checkStringDateColumns,
	"PARTITION_NAME_MATCHES_TABLE":      checkPartitionNames,
}

func checkFloatingPointColumns(model map[string]any, _ *modelContext) []objectRef {
	var refs []objectRef
	eachColumn(model, func(table, column map[string]any) {
		if strings.EqualFold(stringField(column, "dataType"), "double") {
			refs = append(refs, columnRef(table, column))
		}
	})
	return refs
}

func checkDivision(model map[string]any, _ *modelContext) []objectRef {
	var refs []objectRef
	eachMeasure(model, func(table, measure map[string]any) {
		expression := tmsl.ExpressionString(measure["expression"])
		if containsDivision(expression) {
			refs = append(refs, measureRef(table, measure))
		}
	})
	return refs
}

// containsDivision looks for the / operator outside DIVIDE calls. A
// heuristic, not a DAX parser: "a/b" trips it, format strings do not.
func containsDivision(expression string) bool {
	if !strings.Contains(expression, "/") {
		return false
	}
	// Strings and date literals commonly carry slashes.
	stripped := stripQuoted(expression)
	return strings.Contains(stripped, "/") && !strings.Contains(stripped, "//")
}

func stripQuoted(expression string) string {
	var out strings.Builder
	inQuote := false
	for _, r := range expression {
		if r == '"' {
			inQuote = !inQuote
			continue
		}
		if !inQuote {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func checkIfError(model map[string]any, _ *modelContext) []objectRef {
	var refs []objectRef
	eachMeasure(model, func(table, measure map[string]any) {
		expression := strings.ToUpper(tmsl.ExpressionString(measure["expression"]))
		if strings.Contains(expression, "IFERROR") {
			refs = append(refs, measureRef(table, measure))
		}
	})
	return refs
}

func checkDescriptions(model map[string]any, _ *modelContext) []objectRef {
	var refs []objectRef
	for _, table := range objects(model, "tables") {
		if !isHidden(table) && stringField(table, "description") == "" {
			refs = append(refs, objectRef{objectType: string(ObjectTable), objectName: stringField(table, "name")})
		}
	}
	eachMeasure(model, func(table, measure map[string]any) {
		if !isHidden(measure) && stringField(measure, "description") == "" {
			refs = append(refs, measureRef(table, measure))
		}
	})
	return refs
}

func checkWhitespaceNames(model map[string]any, _ *modelContext) []objectRef {
	var refs []objectRef
	flag := func(objectType string, name, tableName string) {
		if name != strings.TrimSpace(name) {
			refs = append(refs, objectRef{objectType: objectType, objectName: name, tableName: tableName})
		}
	}
	for _, table := range objects(model, "tables") {
		flag(string(ObjectTable), stringField(table, "name"), "")
	}
	eachColumn(model, func(table, column map[string]any) {
		flag(string(ObjectColumn), stringField(column, "name"), stringField(table, "name"))
	})
	eachMeasure(model, func(table, measure map[string]any) {
		flag(string(ObjectMeasure), stringField(measure, "name"), stringField(table, "name"))
	})
	return refs
}

func checkMeasureFormatStrings(model map[string]any, _ *modelContext) []objectRef {
	var refs []objectRef
	eachMeasure(model, func(table, measure map[string]any) {
		if isHidden(measure) {
			return
		}
		if stringField(measure, "formatString") == "" {
			refs = append(refs, measureRef(table, measure))
		}
	})
	return refs
}

func checkForeignKeysHidden(model map[string]any, ctx *modelContext) []objectRef {
	var refs []objectRef
	eachColumn(model, func(table, column map[string]any) {
		key := stringField(table, "name") + "." + stringField(column, "name")
		if _, isForeignKey := ctx.foreignKeys[key]; isForeignKey && !isHidden(column) {
			refs = append(refs, columnRef(table, column))
		}
	})
	return refs
}

func checkBidirectionalRelationships(model map[string]any, _ *modelContext) []objectRef {
	var refs []objectRef
	for _, relationship := range objects(model, "relationships") {
		if strings.EqualFold(stringField(relationship, "crossFilteringBehavior"), "bothDirections") {
			refs = append(refs, relationshipRef(relationship))
		}
	}
	return refs
}

func checkManyToManyRelationships(model map[string]any, _ *modelContext) []objectRef {
	var refs []objectRef
	for _, relationship := range objects(model, "relationships") {
		from := strings.EqualFold(stringField(relationship, "fromCardinality"), "many")
		to := strings.EqualFold(stringField(relationship, "toCardinality"), "many")
		if from && to {
			refs = append(refs, relationshipRef(relationship))
		}
	}
	return refs
}

func checkDirectLakeLineageTags(model map[string]any, ctx *modelContext) []objectRef {
	if ctx.modelType != tmsl.ModelDirectLake && ctx.modelType != tmsl.ModelMixed {
		return nil
	}
	var refs []objectRef
	for _, table := range objects(model, "tables") {
		if stringField(table, "lineageTag") == "" {
			refs = append(refs, objectRef{objectType: string(ObjectTable), objectName: stringField(table, "name")})
		}
	}
	eachColumn(model, func(table, column map[string]any) {
		if stringField(column, "lineageTag") == "" {
			refs = append(refs, columnRef(table, column))
		}
	})
	return refs
}

func checkStringDateColumns(model map[string]any, _ *modelContext) []objectRef {
	var refs []objectRef
	eachColumn(model, func(table, column map[string]any) {
		name := strings.ToLower(stringField(column, "name"))
		if !strings.Contains(name, "date") {
			return
		}
		if strings.EqualFold(stringField(column, "dataType"), "string") {
			refs = append(refs, columnRef(table, column))
		}
	})
	return refs
}

func checkPartitionNames(model map[string]any, _ *modelContext) []objectRef {
	var refs []objectRef
	for _, table := range objects(model, "tables") {
		partitions := objects(table, "partitions")
		if len(partitions) != 1 {
			continue
		}
		tableName := stringField(table, "name")
		partitionName := stringField(partitions[0], "name")
		if partitionName == tableName || partitionName == tableName+"_partition" {
			continue
		}
		refs = append(refs, objectRef{
			objectType: string(ObjectPartition),
			objectName: partitionName,
			tableName:  tableName,
		})
	}
	return refs
}

func eachColumn(model map[string]any, visit func(table, column map[string]any)) {
	for _, table := range objects(model, "tables") {
		for _, column := range objects(table, "columns") {
			visit(table, column)
		}
	}
}

func eachMeasure(model map[string]any, visit func(table, measure map[string]any)) {
	for _, table := range objects(model, "tables") {
		for _, measure := range objects(table, "measures") {
			visit(table, measure)
		}
	}
}

func columnRef(table, column map[string]any) objectRef {
	return objectRef{
		objectType: string(ObjectColumn),
		objectName: stringField(column, "name"),
		tableName:  stringField(table, "name"),
	}
}

func measureRef(table, measure map[string]any) objectRef {
	return objectRef{
		objectType: string(ObjectMeasure),
		objectName: stringField(measure, "name"),
		tableName:  stringField(table, "name"),
	}
}

func relationshipRef(relationship map[string]any) objectRef {
	name := stringField(relationship, "name")
	if name == "" {
		name = fmt.Sprintf("%s[%s] -> %s[%s]",
			stringField(relationship, "fromTable"), stringField(relationship, "fromColumn"),
			stringField(relationship, "toTable"), stringField(relationship, "toColumn"))
	}
	return objectRef{objectType: string(ObjectRelationship), objectName: name}
}

func isHidden(object map[string]any) bool {
	return object["isHidden"] == true
}

func objects(m map[string]any, key string) []map[string]any {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if object, isMap := entry.(map[string]any); isMap {
			out = append(out, object)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	value, _ := m[key].(string)
	return value
}
