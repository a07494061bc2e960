package tmsl

import (
	"fmt"
	"sort"
	"strings"
)

// ExtractTable pulls one table out of a full model document as a
// single-table createOrReplace, carrying every object the table owns so
// the operation cannot delete anything.
func ExtractTable(doc map[string]any, tableName string) (map[string]any, error) {
	model, ok := Model(doc)
	if !ok {
		return nil, fmt.Errorf("no model found in TMSL document")
	}
	tables := objects(model, "tables")
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables found in model")
	}

	for _, table := range tables {
		if stringField(table, "name") == tableName {
			return map[string]any{
				"createOrReplace": map[string]any{
					"table": deepCopy(table),
				},
			}, nil
		}
	}

	available := make([]string, 0, len(tables))
	for _, table := range tables {
		available = append(available, tableDisplayName(table))
	}
	sort.Strings(available)
	return nil, fmt.Errorf("table %q not found, available tables: %s", tableName, strings.Join(available, ", "))
}

// Measure is a new or replacement DAX measure.
type Measure struct {
	Name         string `json:"name"`
	Expression   string `json:"expression"`
	FormatString string `json:"formatString,omitempty"`
	Description  string `json:"description,omitempty"`
}

// UpsertMeasure adds the measure to a single-table document, replacing
// an existing measure of the same name. The input document is mutated.
func UpsertMeasure(tableDoc map[string]any, measure Measure) (map[string]any, error) {
	table, ok := TableScope(tableDoc)
	if !ok {
		return nil, fmt.Errorf("document is not a single-table createOrReplace")
	}
	if strings.TrimSpace(measure.Name) == "" {
		return nil, fmt.Errorf("measure name is required")
	}
	if strings.TrimSpace(measure.Expression) == "" {
		return nil, fmt.Errorf("measure expression is required")
	}

	entry := map[string]any{
		"name":       measure.Name,
		"expression": measure.Expression,
	}
	if measure.FormatString != "" {
		entry["formatString"] = measure.FormatString
	}
	if measure.Description != "" {
		entry["description"] = measure.Description
	}

	measures, _ := asSlice(table["measures"])
	for index, existing := range measures {
		if object, ok := asMap(existing); ok && stringField(object, "name") == measure.Name {
			measures[index] = entry
			table["measures"] = measures
			return tableDoc, nil
		}
	}
	table["measures"] = append(measures, entry)
	return tableDoc, nil
}

// EditResult is the outcome of a safe single-table edit workflow.
type EditResult struct {
	Document    map[string]any `json:"tmsl"`
	Safe        bool           `json:"safe"`
	Warnings    []string       `json:"warnings,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Summary     string         `json:"summary"`
}

// SafeMeasureAddition runs the full guarded workflow: extract the
// complete table, upsert the measure, and validate that the result still
// carries everything the table owns. Safe is true when the validation
// found no blocking errors; the standing createOrReplace warnings are
// passed through for the caller to surface.
func SafeMeasureAddition(modelDoc map[string]any, tableName string, measure Measure) (*EditResult, error) {
	tableDoc, err := ExtractTable(modelDoc, tableName)
	if err != nil {
		return nil, err
	}
	if _, err := UpsertMeasure(tableDoc, measure); err != nil {
		return nil, err
	}

	validation := Validate(tableDoc)
	safe := validation.Valid && len(validation.Errors) == 0

	summary := fmt.Sprintf("measure %q ready for deployment in table %q", measure.Name, tableName)
	if !safe {
		summary = fmt.Sprintf("measure %q needs attention in table %q", measure.Name, tableName)
	}
	return &EditResult{
		Document:    tableDoc,
		Safe:        safe,
		Warnings:    validation.Warnings,
		Suggestions: validation.Suggestions,
		Summary:     summary,
	}, nil
}
