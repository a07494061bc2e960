package bpa

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"fabrik/internal/tmsl"
)

// Summary aggregates violation counts for one analysis.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"bySeverity"`
	ByCategory map[string]int `json:"byCategory"`
}

// Analysis is the result of running every enforced rule against a model.
type Analysis struct {
	ModelType  tmsl.ModelType `json:"modelType"`
	Rules      int            `json:"rulesEvaluated"`
	Violations []Violation    `json:"violations"`
	Summary    Summary        `json:"summary"`
}

// Analyzer runs best-practice rules against tabular model definitions.
// It keeps the most recent analysis so results can be sliced by severity
// or category without re-running the rules.
type Analyzer struct {
	mu    sync.Mutex
	rules []Rule
	last  *Analysis
}

// NewAnalyzer loads the rule set. When path is empty the embedded default
// rules are used.
func NewAnalyzer(path string) (*Analyzer, error) {
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return &Analyzer{rules: rules}, nil
}

// Rules returns the loaded rule set sorted by ID.
func (a *Analyzer) Rules() []Rule {
	out := make([]Rule, len(a.rules))
	copy(out, a.rules)
	return out
}

// AnalyzeTMSL cleans and parses a TMSL document, then evaluates every
// enforced rule against the normalized model.
func (a *Analyzer) AnalyzeTMSL(raw string) (*Analysis, error) {
	cleaned, err := tmsl.Clean(raw)
	if err != nil {
		return nil, err
	}
	doc, err := tmsl.Parse(cleaned)
	if err != nil {
		return nil, err
	}
	model, ok := tmsl.Model(doc)
	if !ok {
		if table, isTable := tmsl.TableScope(doc); isTable {
			// Wrap a lone table so table-scoped rules still apply.
			model = map[string]any{"tables": []any{table}}
		} else {
			return nil, fmt.Errorf("document contains no model definition")
		}
	}
	return a.analyzeModel(tmsl.Normalize(model)), nil
}

// AnalyzeModel evaluates the rules against an already-parsed model object.
func (a *Analyzer) AnalyzeModel(model map[string]any) *Analysis {
	return a.analyzeModel(tmsl.Normalize(model))
}

func (a *Analyzer) analyzeModel(model map[string]any) *Analysis {
	ctx := newModelContext(model)
	analysis := &Analysis{
		ModelType: ctx.modelType,
		Summary: Summary{
			BySeverity: map[string]int{},
			ByCategory: map[string]int{},
		},
	}
	for _, rule := range a.rules {
		check, enforced := checks[rule.ID]
		if !enforced {
			continue
		}
		analysis.Rules++
		for _, ref := range check(model, ctx) {
			analysis.Violations = append(analysis.Violations, Violation{
				RuleID:        rule.ID,
				RuleName:      rule.Name,
				Category:      rule.Category,
				Severity:      rule.Severity,
				ObjectType:    ref.objectType,
				ObjectName:    ref.objectName,
				TableName:     ref.tableName,
				Description:   rule.Description,
				FixExpression: rule.FixExpression,
			})
		}
	}
	sort.SliceStable(analysis.Violations, func(i, j int) bool {
		vi, vj := analysis.Violations[i], analysis.Violations[j]
		if vi.Severity != vj.Severity {
			return vi.Severity > vj.Severity
		}
		if vi.RuleID != vj.RuleID {
			return vi.RuleID < vj.RuleID
		}
		if vi.TableName != vj.TableName {
			return vi.TableName < vj.TableName
		}
		return vi.ObjectName < vj.ObjectName
	})
	analysis.Summary.Total = len(analysis.Violations)
	for _, violation := range analysis.Violations {
		analysis.Summary.BySeverity[violation.Severity.String()]++
		analysis.Summary.ByCategory[violation.Category]++
	}
	a.mu.Lock()
	a.last = analysis
	a.mu.Unlock()
	return analysis
}

// Last returns the most recent analysis, or nil when none has run.
func (a *Analyzer) Last() *Analysis {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// BySeverity filters the last analysis down to one severity level.
func (a *Analyzer) BySeverity(severity Severity) ([]Violation, error) {
	last := a.Last()
	if last == nil {
		return nil, fmt.Errorf("no analysis has been run yet")
	}
	var out []Violation
	for _, violation := range last.Violations {
		if violation.Severity == severity {
			out = append(out, violation)
		}
	}
	return out, nil
}

// ByCategory filters the last analysis down to one rule category.
// Category matching is case-insensitive on the full name.
func (a *Analyzer) ByCategory(category string) ([]Violation, error) {
	last := a.Last()
	if last == nil {
		return nil, fmt.Errorf("no analysis has been run yet")
	}
	var out []Violation
	for _, violation := range last.Violations {
		if strings.EqualFold(violation.Category, category) {
			out = append(out, violation)
		}
	}
	return out, nil
}

// Categories lists the distinct categories across the loaded rules.
func (a *Analyzer) Categories() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, rule := range a.rules {
		if _, ok := seen[rule.Category]; ok {
			continue
		}
		seen[rule.Category] = struct{}{}
		out = append(out, rule.Category)
	}
	sort.Strings(out)
	return out
}

// RuleSummary describes one rule and whether the analyzer enforces it.
type RuleSummary struct {
	Rule
	Enforced bool `json:"enforced"`
}

// RulesSummary lists every loaded rule, flagging the metadata-only ones
// that have no enforcement yet.
func (a *Analyzer) RulesSummary() []RuleSummary {
	out := make([]RuleSummary, 0, len(a.rules))
	for _, rule := range a.rules {
		_, enforced := checks[rule.ID]
		out = append(out, RuleSummary{Rule: rule, Enforced: enforced})
	}
	return out
}
