package bpa

import (
	"encoding/json"
	"strings"
	"testing"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	analyzer, err := NewAnalyzer("")
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return analyzer
}

// violatingModel trips most of the enforced rules at once.
func violatingModel() map[string]any {
	return map[string]any{
		"name": "Sales Model",
		"tables": []any{
			map[string]any{
				"name": "Sales",
				"columns": []any{
					map[string]any{"name": "Amount", "dataType": "double"},
					map[string]any{"name": "OrderDate", "dataType": "string"},
					map[string]any{"name": "CustomerKey", "dataType": "int64"},
					map[string]any{"name": "Region ", "dataType": "string"},
				},
				"measures": []any{
					map[string]any{
						"name":       "Average Price",
						"expression": "SUM(Sales[Amount]) / COUNTROWS(Sales)",
					},
					map[string]any{
						"name":         "Safe Revenue",
						"expression":   "IFERROR([Revenue], 0)",
						"formatString": "#,0",
						"description":  "Revenue guarded against errors.",
					},
				},
				"partitions": []any{
					map[string]any{
						"name":   "Partition-1",
						"mode":   "import",
						"source": map[string]any{"type": "m", "expression": "let x = 1 in x"},
					},
				},
			},
			map[string]any{
				"name":        "Customer",
				"description": "Customer dimension.",
				"columns": []any{
					map[string]any{"name": "CustomerKey", "dataType": "int64"},
				},
				"partitions": []any{
					map[string]any{
						"name":   "Customer",
						"mode":   "import",
						"source": map[string]any{"type": "m", "expression": "let x = 1 in x"},
					},
				},
			},
		},
		"relationships": []any{
			map[string]any{
				"name":                   "SalesToCustomer",
				"fromTable":              "Sales",
				"fromColumn":             "CustomerKey",
				"toTable":                "Customer",
				"toColumn":               "CustomerKey",
				"fromCardinality":        "many",
				"toCardinality":          "many",
				"crossFilteringBehavior": "bothDirections",
			},
		},
	}
}

// cleanModel should produce no violations at all.
func cleanModel() map[string]any {
	return map[string]any{
		"name": "Tidy Model",
		"tables": []any{
			map[string]any{
				"name":        "Orders",
				"description": "Order fact table.",
				"columns": []any{
					map[string]any{"name": "OrderKey", "dataType": "int64"},
					map[string]any{"name": "OrderDate", "dataType": "dateTime"},
				},
				"measures": []any{
					map[string]any{
						"name":         "Order Count",
						"expression":   "COUNTROWS(Orders)",
						"formatString": "#,0",
						"description":  "Number of orders.",
					},
				},
				"partitions": []any{
					map[string]any{
						"name":   "Orders",
						"mode":   "import",
						"source": map[string]any{"type": "m", "expression": "let x = 1 in x"},
					},
				},
			},
		},
	}
}

func ruleIDs(violations []Violation) map[string]int {
	out := map[string]int{}
	for _, violation := range violations {
		out[violation.RuleID]++
	}
	return out
}

func TestAnalyzeModelFindsViolations(t *testing.T) {
	analyzer := newTestAnalyzer(t)
	analysis := analyzer.AnalyzeModel(violatingModel())

	hits := ruleIDs(analysis.Violations)
	for _, want := range []string{
		"AVOID_FLOATING_POINT_DATA_TYPES",
		"USE_DIVIDE_FUNCTION",
		"AVOID_IFERROR",
		"ADD_OBJECT_DESCRIPTIONS",
		"TRIM_OBJECT_NAMES",
		"FORMAT_STRING_MEASURES",
		"HIDE_FOREIGN_KEYS",
		"AVOID_BIDIRECTIONAL_RELATIONSHIPS",
		"AVOID_MANY_TO_MANY_RELATIONSHIPS",
		"DATE_COLUMNS_USE_DATETIME",
		"PARTITION_NAME_MATCHES_TABLE",
	} {
		if hits[want] == 0 {
			t.Errorf("expected a violation of %s, got none", want)
		}
	}
	if hits["DIRECTLAKE_LINEAGE_TAGS"] != 0 {
		t.Errorf("lineage tag rule fired on an import model")
	}
	if analysis.Summary.Total != len(analysis.Violations) {
		t.Fatalf("summary total %d does not match %d violations", analysis.Summary.Total, len(analysis.Violations))
	}
	if analysis.Summary.BySeverity["ERROR"] == 0 {
		t.Fatalf("expected ERROR severity count, summary: %+v", analysis.Summary)
	}
}

func TestAnalyzeModelClean(t *testing.T) {
	analyzer := newTestAnalyzer(t)
	analysis := analyzer.AnalyzeModel(cleanModel())
	if len(analysis.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v", analysis.Violations)
	}
	if analysis.Summary.Total != 0 {
		t.Fatalf("summary total = %d", analysis.Summary.Total)
	}
}

func TestAnalyzeModelDirectLakeLineageTags(t *testing.T) {
	analyzer := newTestAnalyzer(t)
	model := map[string]any{
		"tables": []any{
			map[string]any{
				"name":        "Facts",
				"description": "Fact table.",
				"columns": []any{
					map[string]any{"name": "Key", "dataType": "int64"},
				},
				"partitions": []any{
					map[string]any{
						"name":   "Facts",
						"mode":   "directLake",
						"source": map[string]any{"type": "entity", "entityName": "facts", "expressionSource": "DatabaseQuery", "schemaName": "dbo"},
					},
				},
			},
		},
	}
	analysis := analyzer.AnalyzeModel(model)
	if ruleIDs(analysis.Violations)["DIRECTLAKE_LINEAGE_TAGS"] == 0 {
		t.Fatalf("expected lineage tag violations, got %+v", analysis.Violations)
	}
}

func TestAnalyzeTMSL(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"createOrReplace": map[string]any{
			"object":   map[string]any{"database": "Sales Model"},
			"database": map[string]any{"name": "Sales Model", "model": violatingModel()},
		},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	analyzer := newTestAnalyzer(t)
	analysis, err := analyzer.AnalyzeTMSL(string(raw))
	if err != nil {
		t.Fatalf("AnalyzeTMSL: %v", err)
	}
	if analysis.Summary.Total == 0 {
		t.Fatalf("expected violations from wrapped model")
	}
}

func TestAnalyzeTMSLRejectsGarbage(t *testing.T) {
	analyzer := newTestAnalyzer(t)
	if _, err := analyzer.AnalyzeTMSL("{not json"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := analyzer.AnalyzeTMSL(`{"refresh": {}}`); err == nil {
		t.Fatalf("expected missing-model error")
	}
}

func TestViolationOrdering(t *testing.T) {
	analyzer := newTestAnalyzer(t)
	analysis := analyzer.AnalyzeModel(violatingModel())
	for i := 1; i < len(analysis.Violations); i++ {
		prev, cur := analysis.Violations[i-1], analysis.Violations[i]
		if cur.Severity > prev.Severity {
			t.Fatalf("violations not ordered by severity: %s after %s", cur.RuleID, prev.RuleID)
		}
	}
}

func TestFilters(t *testing.T) {
	analyzer := newTestAnalyzer(t)

	if _, err := analyzer.BySeverity(SeverityError); err == nil {
		t.Fatalf("expected error before any analysis")
	}

	analyzer.AnalyzeModel(violatingModel())

	errors, err := analyzer.BySeverity(SeverityError)
	if err != nil {
		t.Fatalf("BySeverity: %v", err)
	}
	for _, violation := range errors {
		if violation.Severity != SeverityError {
			t.Fatalf("severity filter leaked %+v", violation)
		}
	}
	if len(errors) == 0 {
		t.Fatalf("expected at least one ERROR violation")
	}

	dax, err := analyzer.ByCategory("dax expressions")
	if err != nil {
		t.Fatalf("ByCategory: %v", err)
	}
	if len(dax) == 0 {
		t.Fatalf("expected DAX Expressions violations")
	}
	for _, violation := range dax {
		if violation.Category != "DAX Expressions" {
			t.Fatalf("category filter leaked %+v", violation)
		}
	}
}

func TestRulesSummaryFlagsMetadataOnlyRules(t *testing.T) {
	analyzer := newTestAnalyzer(t)
	summary := analyzer.RulesSummary()
	if len(summary) != len(analyzer.Rules()) {
		t.Fatalf("summary covers %d of %d rules", len(summary), len(analyzer.Rules()))
	}
	enforced, metadata := 0, 0
	for _, rule := range summary {
		if rule.Enforced {
			enforced++
		} else {
			metadata++
		}
	}
	if enforced == 0 || metadata == 0 {
		t.Fatalf("expected a mix of enforced and metadata-only rules, got %d/%d", enforced, metadata)
	}
}

func TestCategories(t *testing.T) {
	analyzer := newTestAnalyzer(t)
	categories := analyzer.Categories()
	if len(categories) == 0 {
		t.Fatalf("no categories")
	}
	for i := 1; i < len(categories); i++ {
		if categories[i-1] >= categories[i] {
			t.Fatalf("categories not sorted: %v", categories)
		}
	}
}

func TestFormatReport(t *testing.T) {
	analyzer := newTestAnalyzer(t)
	analysis := analyzer.AnalyzeModel(violatingModel())

	summary, err := FormatReport(analysis, ReportSummary)
	if err != nil {
		t.Fatalf("summary report: %v", err)
	}
	if !strings.Contains(summary, "Total violations:") {
		t.Fatalf("summary missing header:\n%s", summary)
	}

	detailed, err := FormatReport(analysis, ReportDetailed)
	if err != nil {
		t.Fatalf("detailed report: %v", err)
	}
	if !strings.Contains(detailed, "Fix:") || !strings.Contains(detailed, "AVOID_IFERROR") {
		t.Fatalf("detailed report incomplete:\n%s", detailed)
	}

	byCategory, err := FormatReport(analysis, ReportByCategory)
	if err != nil {
		t.Fatalf("by_category report: %v", err)
	}
	if !strings.Contains(byCategory, "DAX Expressions") {
		t.Fatalf("by_category report missing group:\n%s", byCategory)
	}

	if _, err := FormatReport(analysis, "csv"); err == nil {
		t.Fatalf("expected unknown format error")
	}
	if _, err := FormatReport(nil, ReportSummary); err == nil {
		t.Fatalf("expected nil analysis error")
	}
}
