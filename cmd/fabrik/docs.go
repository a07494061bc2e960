package main

import (
	"fmt"

	"fabrik/internal/docs"
)

func runDocs(args []string, deps commandDeps) int {
	if len(args) == 0 {
		return usageError(deps, "usage: fabrik docs list|lint")
	}
	switch args[0] {
	case "list":
		return docsList(args[1:], deps)
	case "lint":
		return docsLint(args[1:], deps)
	default:
		return usageError(deps, "unknown docs command %q", args[0])
	}
}

func docsList(args []string, deps commandDeps) int {
	if len(args) != 0 {
		return usageError(deps, "usage: fabrik docs list")
	}
	guides, err := docs.Index()
	if err != nil {
		return commandError(deps, err)
	}
	for _, guide := range guides {
		fmt.Fprintf(deps.Stdout, "%-24s %-12s %s\n", guide.Slug, guide.Category, guide.Title)
	}
	return exitOK
}

func docsLint(args []string, deps commandDeps) int {
	if len(args) != 0 {
		return usageError(deps, "usage: fabrik docs lint")
	}
	problems := docs.Lint()
	for _, problem := range problems {
		fmt.Fprintln(deps.Stderr, problem)
	}
	if len(problems) > 0 {
		return exitError
	}
	fmt.Fprintln(deps.Stdout, "guides ok")
	return exitOK
}
