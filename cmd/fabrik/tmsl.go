package main

import (
	"encoding/json"
	"fmt"
	"os"

	"fabrik/internal/tmsl"
)

func runTMSL(args []string, deps commandDeps) int {
	if len(args) == 0 {
		return usageError(deps, "usage: fabrik tmsl validate|normalize|template")
	}
	switch args[0] {
	case "validate":
		return tmslValidate(args[1:], deps)
	case "normalize":
		return tmslNormalize(args[1:], deps)
	case "template":
		return tmslTemplate(args[1:], deps)
	default:
		return usageError(deps, "unknown tmsl command %q", args[0])
	}
}

func tmslValidate(args []string, deps commandDeps) int {
	if len(args) != 1 {
		return usageError(deps, "usage: fabrik tmsl validate <file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return commandError(deps, err)
	}
	result := tmsl.ValidateString(string(data))
	fmt.Fprintln(deps.Stdout, result.Summary)
	for _, message := range result.Errors {
		fmt.Fprintf(deps.Stdout, "error: %s\n", message)
	}
	for _, message := range result.Warnings {
		fmt.Fprintf(deps.Stdout, "warning: %s\n", message)
	}
	for _, message := range result.Suggestions {
		fmt.Fprintf(deps.Stdout, "suggestion: %s\n", message)
	}
	if !result.Valid {
		return exitError
	}
	return exitOK
}

func tmslNormalize(args []string, deps commandDeps) int {
	if len(args) != 1 {
		return usageError(deps, "usage: fabrik tmsl normalize <file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return commandError(deps, err)
	}
	doc, err := tmsl.Parse(string(data))
	if err != nil {
		return commandError(deps, err)
	}
	encoded, err := json.MarshalIndent(tmsl.Normalize(doc), "", "  ")
	if err != nil {
		return commandError(deps, err)
	}
	fmt.Fprintln(deps.Stdout, string(encoded))
	return exitOK
}

func tmslTemplate(args []string, deps commandDeps) int {
	if len(args) != 1 {
		return usageError(deps, "usage: fabrik tmsl template <options.json>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return commandError(deps, err)
	}
	var opts tmsl.TemplateOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		return commandError(deps, fmt.Errorf("parse template options: %w", err))
	}
	doc, err := tmsl.Template(opts)
	if err != nil {
		return commandError(deps, err)
	}
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return commandError(deps, err)
	}
	fmt.Fprintln(deps.Stdout, string(encoded))
	return exitOK
}
