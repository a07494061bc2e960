package main

import (
	"flag"
	"fmt"
	"os"

	"fabrik/internal/bpa"
)

func runBPA(args []string, deps commandDeps) int {
	if len(args) == 0 {
		return usageError(deps, "usage: fabrik bpa analyze|rules")
	}
	switch args[0] {
	case "analyze":
		return bpaAnalyze(args[1:], deps)
	case "rules":
		return bpaRules(args[1:], deps)
	default:
		return usageError(deps, "unknown bpa command %q", args[0])
	}
}

func bpaAnalyze(args []string, deps commandDeps) int {
	flags := flag.NewFlagSet("bpa analyze", flag.ContinueOnError)
	flags.SetOutput(deps.Stderr)
	format := flags.String("format", bpa.ReportSummary, "report format: summary, detailed, or by_category")
	rulesPath := flags.String("rules", "", "rules file (default: embedded rules)")
	minSeverity := flags.String("min-severity", "", "fail when violations at or above this severity exist")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 1 {
		return usageError(deps, "usage: fabrik bpa analyze [--format name] [--rules file] [--min-severity level] <file>")
	}
	data, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return commandError(deps, err)
	}
	analyzer, err := bpa.NewAnalyzer(*rulesPath)
	if err != nil {
		return commandError(deps, err)
	}
	analysis, err := analyzer.AnalyzeTMSL(string(data))
	if err != nil {
		return commandError(deps, err)
	}
	report, err := bpa.FormatReport(analysis, *format)
	if err != nil {
		return commandError(deps, err)
	}
	fmt.Fprintln(deps.Stdout, report)

	if *minSeverity != "" {
		floor, err := bpa.ParseSeverity(*minSeverity)
		if err != nil {
			return commandError(deps, err)
		}
		for _, violation := range analysis.Violations {
			if violation.Severity >= floor {
				return exitError
			}
		}
	}
	return exitOK
}

func bpaRules(args []string, deps commandDeps) int {
	flags := flag.NewFlagSet("bpa rules", flag.ContinueOnError)
	flags.SetOutput(deps.Stderr)
	rulesPath := flags.String("rules", "", "rules file (default: embedded rules)")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 0 {
		return usageError(deps, "usage: fabrik bpa rules [--rules file]")
	}
	analyzer, err := bpa.NewAnalyzer(*rulesPath)
	if err != nil {
		return commandError(deps, err)
	}
	for _, rule := range analyzer.RulesSummary() {
		state := "enforced"
		if !rule.Enforced {
			state = "metadata only"
		}
		fmt.Fprintf(deps.Stdout, "%-28s %-10s %-14s %s (%s)\n", rule.ID, rule.Severity, rule.Category, rule.Name, state)
	}
	return exitOK
}
