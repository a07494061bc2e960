package bpa

import (
	"fmt"
	"sort"
	"strings"
)

// Report format names accepted by FormatReport.
const (
	ReportSummary    = "summary"
	ReportDetailed   = "detailed"
	ReportByCategory = "by_category"
)

// FormatReport renders an analysis as text in one of the supported
// formats.
func FormatReport(analysis *Analysis, format string) (string, error) {
	if analysis == nil {
		return "", fmt.Errorf("no analysis to report")
	}
	switch format {
	case "", ReportSummary:
		return summaryReport(analysis), nil
	case ReportDetailed:
		return detailedReport(analysis), nil
	case ReportByCategory:
		return categoryReport(analysis), nil
	default:
		return "", fmt.Errorf("unknown report format %q (want summary, detailed, or by_category)", format)
	}
}

func reportHeader(analysis *Analysis, b *strings.Builder) {
	fmt.Fprintf(b, "Best Practice Analysis (%s model, %d rules evaluated)\n", analysis.ModelType, analysis.Rules)
	fmt.Fprintf(b, "Total violations: %d\n", analysis.Summary.Total)
	for _, severity := range []Severity{SeverityError, SeverityWarning, SeverityInfo} {
		if n := analysis.Summary.BySeverity[severity.String()]; n > 0 {
			fmt.Fprintf(b, "  %s: %d\n", severity, n)
		}
	}
}

func summaryReport(analysis *Analysis) string {
	var b strings.Builder
	reportHeader(analysis, &b)
	if analysis.Summary.Total == 0 {
		b.WriteString("No violations found.\n")
		return b.String()
	}
	// One line per distinct rule with its hit count.
	counts := map[string]int{}
	names := map[string]Violation{}
	for _, violation := range analysis.Violations {
		counts[violation.RuleID]++
		names[violation.RuleID] = violation
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	b.WriteString("\n")
	for _, id := range ids {
		violation := names[id]
		fmt.Fprintf(&b, "[%s] %s: %d object(s)\n", violation.Severity, violation.RuleName, counts[id])
	}
	return b.String()
}

func detailedReport(analysis *Analysis) string {
	var b strings.Builder
	reportHeader(analysis, &b)
	for _, violation := range analysis.Violations {
		b.WriteString("\n")
		fmt.Fprintf(&b, "[%s] %s (%s)\n", violation.Severity, violation.RuleName, violation.RuleID)
		fmt.Fprintf(&b, "  Object: %s %s\n", violation.ObjectType, qualifiedName(violation))
		fmt.Fprintf(&b, "  %s\n", violation.Description)
		if violation.FixExpression != "" {
			fmt.Fprintf(&b, "  Fix: %s\n", violation.FixExpression)
		}
	}
	return b.String()
}

func categoryReport(analysis *Analysis) string {
	var b strings.Builder
	reportHeader(analysis, &b)
	grouped := map[string][]Violation{}
	for _, violation := range analysis.Violations {
		grouped[violation.Category] = append(grouped[violation.Category], violation)
	}
	categories := make([]string, 0, len(grouped))
	for category := range grouped {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		fmt.Fprintf(&b, "\n%s (%d)\n", category, len(grouped[category]))
		for _, violation := range grouped[category] {
			fmt.Fprintf(&b, "  [%s] %s: %s %s\n", violation.Severity, violation.RuleName, violation.ObjectType, qualifiedName(violation))
		}
	}
	return b.String()
}

func qualifiedName(v Violation) string {
	if v.TableName != "" && v.TableName != v.ObjectName {
		return fmt.Sprintf("%s[%s]", v.TableName, v.ObjectName)
	}
	return v.ObjectName
}
