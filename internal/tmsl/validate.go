package tmsl

import (
	"fmt"
	"strings"
)

// Result is the outcome of a TMSL validation pass. Errors block
// deployment, warnings flag risky shapes, suggestions say how to fix
// what was flagged.
type Result struct {
	Valid       bool      `json:"valid"`
	ModelType   ModelType `json:"modelType"`
	Errors      []string  `json:"errors,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Summary     string    `json:"summary"`
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) suggestf(format string, args ...any) {
	r.Suggestions = append(r.Suggestions, fmt.Sprintf(format, args...))
}

func (r *Result) finish() *Result {
	r.Valid = len(r.Errors) == 0
	parts := []string{}
	if r.Valid {
		parts = append(parts, "no critical errors")
	} else {
		parts = append(parts, fmt.Sprintf("%d critical errors", len(r.Errors)))
	}
	if len(r.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", len(r.Warnings)))
	}
	r.Summary = strings.Join(parts, ", ")
	return r
}

// ValidateString cleans, parses, and validates a raw TMSL string.
func ValidateString(raw string) *Result {
	doc, err := Parse(raw)
	if err != nil {
		result := &Result{ModelType: ModelUnknown}
		result.errorf("invalid JSON syntax: %v", err)
		result.suggestf("fix JSON syntax errors before validating the TMSL structure")
		return result.finish()
	}
	return Validate(doc)
}

// Validate checks a TMSL document for the structural mistakes that break
// deployment: table-level mode properties, missing DirectLake plumbing,
// incomplete partition sources, and single-table createOrReplace
// operations that would silently delete objects.
func Validate(doc map[string]any) *Result {
	if table, ok := TableScope(doc); ok {
		return validateSingleTable(table)
	}

	result := &Result{ModelType: ModelUnknown}
	model, ok := Model(doc)
	if !ok {
		result.errorf("no model found in TMSL document")
		result.suggestf("provide a model object, either top-level or under createOrReplace.database")
		return result.finish()
	}

	result.ModelType = DetectModelType(model)
	switch result.ModelType {
	case ModelDirectLake:
		validateDirectLake(model, result, false)
	case ModelImport:
		validateImport(model, result)
	case ModelMixed:
		result.warnf("mixed model: both import and directLake partitions present")
		result.suggestf("use consistent partition modes across tables")
		validateImport(model, result)
		validateDirectLake(model, result, true)
	default:
		result.warnf("could not determine model type, applying basic validation only")
		validateBasic(model, result)
	}

	validateCommon(model, result)
	return result.finish()
}

func validateDirectLake(model map[string]any, result *Result, optional bool) {
	expressions, hasExpressions := asSlice(model["expressions"])
	if !hasExpressions {
		if !optional {
			result.errorf("missing expressions block: DirectLake models require a DatabaseQuery expression")
			result.suggestf("add an expressions block with a DatabaseQuery M expression using Sql.Database()")
		}
	} else {
		databaseQueryFound := false
		for _, entry := range expressions {
			expression, ok := asMap(entry)
			if !ok {
				continue
			}
			if stringField(expression, "name") != "DatabaseQuery" || stringField(expression, "kind") != "m" {
				continue
			}
			databaseQueryFound = true
			if !strings.Contains(ExpressionString(expression["expression"]), "Sql.Database") {
				result.warnf("DatabaseQuery expression does not call Sql.Database()")
				result.suggestf("use Sql.Database(server, endpointId) in the DatabaseQuery expression")
			}
		}
		if !databaseQueryFound && !optional {
			result.errorf("DatabaseQuery expression not found in expressions block")
			result.suggestf("add a DatabaseQuery expression with kind \"m\" and a Sql.Database() call")
		}
	}

	for _, table := range objects(model, "tables") {
		tableName := tableDisplayName(table)
		for _, partition := range objects(table, "partitions") {
			if stringField(partition, "mode") == partitionModeDirectLake {
				validateDirectLakePartition(tableName, partition, result)
			}
		}
	}
}

func validateDirectLakePartition(tableName string, partition map[string]any, result *Result) {
	source, ok := asMap(partition["source"])
	if !ok {
		result.errorf("DirectLake partition in table %q missing source", tableName)
		result.suggestf("add a source object to the DirectLake partition in table %q", tableName)
		return
	}
	if stringField(source, "expressionSource") != "DatabaseQuery" {
		result.warnf("DirectLake partition in table %q should use expressionSource \"DatabaseQuery\"", tableName)
		result.suggestf("set expressionSource to \"DatabaseQuery\" in table %q", tableName)
	}
	if _, present := source["schemaName"]; !present {
		result.warnf("DirectLake partition in table %q missing schemaName, may cause connection issues", tableName)
		result.suggestf("add schemaName to the partition source in table %q (e.g. \"dbo\")", tableName)
	}
	if _, present := source["entityName"]; !present {
		result.errorf("DirectLake partition in table %q missing entityName", tableName)
		result.suggestf("add entityName to the partition source in table %q", tableName)
	}
}

func validateImport(model map[string]any, result *Result) {
	for _, entry := range objects(model, "expressions") {
		if _, present := entry["expression"]; !present {
			name := stringField(entry, "name")
			if name == "" {
				name = "unnamed"
			}
			result.warnf("expression %q missing expression property", name)
		}
	}
	for _, table := range objects(model, "tables") {
		tableName := tableDisplayName(table)
		for _, partition := range objects(table, "partitions") {
			if stringField(partition, "mode") == partitionModeImport {
				validateImportPartition(tableName, partition, result)
			}
		}
	}
}

func validateImportPartition(tableName string, partition map[string]any, result *Result) {
	source, ok := asMap(partition["source"])
	if !ok {
		result.errorf("import partition in table %q missing source", tableName)
		result.suggestf("add a source object to the import partition in table %q", tableName)
		return
	}
	sourceType := stringField(source, "type")
	if sourceType == "" {
		result.warnf("import partition source in table %q missing type", tableName)
		result.suggestf("add a type to the partition source in table %q (e.g. \"m\")", tableName)
	}
	if sourceType == "m" {
		if _, present := source["expression"]; !present {
			result.errorf("M partition source in table %q missing expression", tableName)
			result.suggestf("add the M query expression to the partition source in table %q", tableName)
		}
	}
}

func validateBasic(model map[string]any, result *Result) {
	if _, present := model["tables"]; !present {
		result.errorf("model missing tables array")
		result.suggestf("add a tables array to the model definition")
		return
	}
	for _, table := range objects(model, "tables") {
		if _, present := table["partitions"]; !present {
			result.warnf("table %q missing partitions array", tableDisplayName(table))
		}
	}
}

func validateCommon(model map[string]any, result *Result) {
	for _, table := range objects(model, "tables") {
		tableName := tableDisplayName(table)

		// mode belongs on partitions; a table-level mode breaks deployment.
		if _, present := table["mode"]; present {
			result.errorf("table %q declares mode at table level, which breaks deployment", tableName)
			result.suggestf("remove mode from table %q; mode belongs on partitions", tableName)
		}
		if _, present := table["defaultMode"]; present {
			result.errorf("table %q declares defaultMode, which is invalid", tableName)
			result.suggestf("remove defaultMode from table %q", tableName)
		}
		if stringField(table, "name") == "" {
			result.errorf("table without a name")
		}

		if partitions, present := asSlice(table["partitions"]); present && len(partitions) == 0 {
			result.warnf("table %q has an empty partitions array", tableName)
			result.suggestf("add at least one partition to table %q", tableName)
		}

		validateColumnObjects(table, tableName, result, false)
		validateMeasureObjects(table, tableName, result, false)
	}
}

func validateColumnObjects(table map[string]any, tableName string, result *Result, emptyIsError bool) {
	columns, present := asSlice(table["columns"])
	if !present {
		return
	}
	if len(columns) == 0 && emptyIsError {
		result.errorf("table %q has an empty columns array: createOrReplace would delete every existing column", tableName)
		result.suggestf("include all existing columns in table %q", tableName)
		return
	}
	for index, entry := range columns {
		column, ok := asMap(entry)
		if !ok {
			continue
		}
		name := stringField(column, "name")
		if name == "" {
			result.errorf("column %d in table %q missing name", index+1, tableName)
		}
		if _, hasType := column["dataType"]; !hasType {
			if name == "" {
				name = fmt.Sprintf("#%d", index+1)
			}
			result.warnf("column %q in table %q missing dataType", name, tableName)
		}
	}
}

func validateMeasureObjects(table map[string]any, tableName string, result *Result, emptyWarns bool) {
	measures, present := asSlice(table["measures"])
	if !present {
		return
	}
	if len(measures) == 0 && emptyWarns {
		result.warnf("table %q has an empty measures array: existing measures would be deleted", tableName)
		result.suggestf("include all existing measures in table %q or drop the empty array", tableName)
		return
	}
	for index, entry := range measures {
		measure, ok := asMap(entry)
		if !ok {
			continue
		}
		name := stringField(measure, "name")
		if name == "" {
			result.errorf("measure %d in table %q missing name", index+1, tableName)
			name = fmt.Sprintf("#%d", index+1)
		}
		if _, hasExpression := measure["expression"]; !hasExpression {
			result.errorf("measure %q in table %q missing expression", name, tableName)
		}
	}
}

// validateSingleTable checks a createOrReplace.table document. The
// operation replaces the whole table, so every object the table already
// has must travel with it.
func validateSingleTable(table map[string]any) *Result {
	tableName := tableDisplayName(table)
	result := &Result{ModelType: singleTableType(table)}

	result.warnf("createOrReplace on table %q replaces the entire table; objects not included are permanently deleted", tableName)
	result.suggestf("include all existing columns, measures, partitions, and hierarchies of table %q", tableName)

	validatePreservation(table, tableName, result)

	for _, partition := range objects(table, "partitions") {
		switch stringField(partition, "mode") {
		case partitionModeDirectLake:
			validateDirectLakePartition(tableName, partition, result)
		case partitionModeImport:
			validateImportPartition(tableName, partition, result)
		}
	}
	if result.ModelType == ModelDirectLake {
		found := false
		for _, partition := range objects(table, "partitions") {
			if stringField(partition, "mode") == partitionModeDirectLake {
				found = true
			}
		}
		if !found {
			result.errorf("table %q has no DirectLake partition", tableName)
		}
	}

	if _, present := table["mode"]; present {
		result.errorf("table %q declares mode at table level, which breaks deployment", tableName)
		result.suggestf("remove mode from table %q; mode belongs on partitions", tableName)
	}
	return result.finish()
}

func validatePreservation(table map[string]any, tableName string, result *Result) {
	for _, required := range []string{"columns", "partitions"} {
		if _, present := table[required]; !present {
			result.errorf("table %q missing %s: createOrReplace would delete the existing %s", tableName, required, required)
			result.suggestf("include all existing %s of table %q", required, tableName)
		}
	}
	for _, optional := range []string{"measures", "hierarchies", "annotations"} {
		if _, present := table[optional]; !present {
			result.warnf("table %q missing %s: existing %s would be deleted if any exist", tableName, optional, optional)
		}
	}

	validateColumnObjects(table, tableName, result, true)
	validateMeasureObjects(table, tableName, result, true)
}

func singleTableType(table map[string]any) ModelType {
	for _, partition := range objects(table, "partitions") {
		switch stringField(partition, "mode") {
		case partitionModeDirectLake:
			return ModelDirectLake
		case partitionModeImport:
			return ModelImport
		}
	}
	return ModelUnknown
}

func tableDisplayName(table map[string]any) string {
	if name := stringField(table, "name"); name != "" {
		return name
	}
	return "unnamed_table"
}
