package tmsl

import (
	"strings"
	"testing"
)

func directLakeModel() map[string]any {
	return map[string]any{
		"model": map[string]any{
			"expressions": []any{
				map[string]any{
					"name":       "DatabaseQuery",
					"kind":       "m",
					"expression": []any{"let", `    database = Sql.Database("server", "endpoint")`, "in", "    database"},
				},
			},
			"tables": []any{
				map[string]any{
					"name": "fact_Sales",
					"columns": []any{
						map[string]any{"name": "Amount", "dataType": "decimal"},
					},
					"partitions": []any{
						map[string]any{
							"name": "fact_Sales_partition",
							"mode": "directLake",
							"source": map[string]any{
								"type":             "entity",
								"schemaName":       "dbo",
								"entityName":       "fact_Sales",
								"expressionSource": "DatabaseQuery",
							},
						},
					},
				},
			},
		},
	}
}

func importModel() map[string]any {
	return map[string]any{
		"model": map[string]any{
			"tables": []any{
				map[string]any{
					"name": "Sales",
					"partitions": []any{
						map[string]any{
							"name":   "Sales_partition",
							"mode":   "import",
							"source": map[string]any{"type": "m", "expression": "let x = 1 in x"},
						},
					},
				},
			},
		},
	}
}

func TestDetectModelType(t *testing.T) {
	model, _ := Model(directLakeModel())
	if got := DetectModelType(model); got != ModelDirectLake {
		t.Fatalf("DetectModelType = %s", got)
	}

	model, _ = Model(importModel())
	if got := DetectModelType(model); got != ModelImport {
		t.Fatalf("DetectModelType = %s", got)
	}

	mixed := directLakeModel()
	model, _ = Model(mixed)
	table, _ := Model(importModel())
	model["tables"] = append(model["tables"].([]any), table["tables"].([]any)...)
	if got := DetectModelType(model); got != ModelMixed {
		t.Fatalf("DetectModelType = %s", got)
	}

	if got := DetectModelType(map[string]any{"tables": []any{}}); got != ModelUnknown {
		t.Fatalf("DetectModelType = %s", got)
	}
}

func TestValidateDirectLakeModelPasses(t *testing.T) {
	result := Validate(directLakeModel())
	if !result.Valid {
		t.Fatalf("errors: %v", result.Errors)
	}
	if result.ModelType != ModelDirectLake {
		t.Fatalf("model type = %s", result.ModelType)
	}
}

func TestValidateDirectLakeMissingExpressions(t *testing.T) {
	doc := directLakeModel()
	model, _ := Model(doc)
	delete(model, "expressions")

	result := Validate(doc)
	if result.Valid {
		t.Fatal("expected failure")
	}
	if !containsText(result.Errors, "expressions block") {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func TestValidateDirectLakeMissingDatabaseQuery(t *testing.T) {
	doc := directLakeModel()
	model, _ := Model(doc)
	model["expressions"] = []any{map[string]any{"name": "Other", "kind": "m", "expression": "1"}}

	result := Validate(doc)
	if result.Valid {
		t.Fatal("expected failure")
	}
	if !containsText(result.Errors, "DatabaseQuery expression not found") {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func TestValidateDirectLakeWithoutSqlDatabaseWarns(t *testing.T) {
	doc := directLakeModel()
	model, _ := Model(doc)
	model["expressions"] = []any{map[string]any{"name": "DatabaseQuery", "kind": "m", "expression": "let x = 1 in x"}}

	result := Validate(doc)
	if !result.Valid {
		t.Fatalf("errors: %v", result.Errors)
	}
	if !containsText(result.Warnings, "Sql.Database") {
		t.Fatalf("warnings = %v", result.Warnings)
	}
}

func TestValidateDirectLakePartitionProblems(t *testing.T) {
	doc := directLakeModel()
	model, _ := Model(doc)
	table := objects(model, "tables")[0]
	partition := objects(table, "partitions")[0]
	source := partition["source"].(map[string]any)
	delete(source, "entityName")
	delete(source, "schemaName")

	result := Validate(doc)
	if result.Valid {
		t.Fatal("expected failure")
	}
	if !containsText(result.Errors, "entityName") {
		t.Fatalf("errors = %v", result.Errors)
	}
	if !containsText(result.Warnings, "schemaName") {
		t.Fatalf("warnings = %v", result.Warnings)
	}
}

func TestValidateTableLevelModeIsCritical(t *testing.T) {
	doc := directLakeModel()
	model, _ := Model(doc)
	table := objects(model, "tables")[0]
	table["mode"] = "directLake"
	table["defaultMode"] = "directLake"

	result := Validate(doc)
	if result.Valid {
		t.Fatal("expected failure")
	}
	if !containsText(result.Errors, "mode at table level") {
		t.Fatalf("errors = %v", result.Errors)
	}
	if !containsText(result.Errors, "defaultMode") {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func TestValidateImportPartition(t *testing.T) {
	result := Validate(importModel())
	if !result.Valid {
		t.Fatalf("errors: %v", result.Errors)
	}

	doc := importModel()
	model, _ := Model(doc)
	table := objects(model, "tables")[0]
	partition := objects(table, "partitions")[0]
	partition["source"] = map[string]any{"type": "m"}

	result = Validate(doc)
	if result.Valid {
		t.Fatal("expected failure for M source without expression")
	}
	if !containsText(result.Errors, "missing expression") {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func TestValidateMissingModel(t *testing.T) {
	result := Validate(map[string]any{"something": "else"})
	if result.Valid {
		t.Fatal("expected failure")
	}
	if !containsText(result.Errors, "no model found") {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func TestValidateSingleTablePreservation(t *testing.T) {
	doc := map[string]any{
		"createOrReplace": map[string]any{
			"table": map[string]any{
				"name": "Sales",
				"measures": []any{
					map[string]any{"name": "Total", "expression": "SUM(Sales[Amount])"},
				},
			},
		},
	}

	result := Validate(doc)
	if result.Valid {
		t.Fatal("expected failure: columns and partitions missing")
	}
	if !containsText(result.Errors, "missing columns") {
		t.Fatalf("errors = %v", result.Errors)
	}
	if !containsText(result.Errors, "missing partitions") {
		t.Fatalf("errors = %v", result.Errors)
	}
	if !containsText(result.Warnings, "replaces the entire table") {
		t.Fatalf("warnings = %v", result.Warnings)
	}
}

func TestValidateSingleTableComplete(t *testing.T) {
	extracted, err := ExtractTable(directLakeModel(), "fact_Sales")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	result := Validate(extracted)
	if !result.Valid {
		t.Fatalf("errors: %v", result.Errors)
	}
	if result.ModelType != ModelDirectLake {
		t.Fatalf("model type = %s", result.ModelType)
	}
}

func TestValidateStringHandlesBadJSON(t *testing.T) {
	result := ValidateString("{broken")
	if result.Valid {
		t.Fatal("expected failure")
	}
	if !containsText(result.Errors, "invalid JSON") {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func containsText(entries []string, want string) bool {
	for _, entry := range entries {
		if strings.Contains(entry, want) {
			return true
		}
	}
	return false
}
