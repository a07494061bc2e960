// Command fabrik is the Microsoft Fabric toolkit CLI: pipeline
// validation and execution, TMSL model checks, best-practice analysis,
// model backups, and the HTTP/MCP servers.
package main

import (
	"fmt"
	"io"
	"os"

	"fabrik/internal/version"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], defaultCommandDeps()))
}

type commandDeps struct {
	Stdout        io.Writer
	Stderr        io.Writer
	RunServer     func(args []string, deps commandDeps) int
	RunMCP        func(args []string, deps commandDeps) int
	RunPipeline   func(args []string, deps commandDeps) int
	RunTMSL       func(args []string, deps commandDeps) int
	RunBPA        func(args []string, deps commandDeps) int
	RunBackup     func(args []string, deps commandDeps) int
	RunDocs       func(args []string, deps commandDeps) int
	RunConfig     func(args []string, deps commandDeps) int
	RunCompletion func(args []string, deps commandDeps) int
}

func defaultCommandDeps() commandDeps {
	return commandDeps{
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		RunServer:     runServer,
		RunMCP:        runMCP,
		RunPipeline:   runPipeline,
		RunTMSL:       runTMSL,
		RunBPA:        runBPA,
		RunBackup:     runBackup,
		RunDocs:       runDocs,
		RunConfig:     runConfig,
		RunCompletion: runCompletion,
	}
}

func run(args []string, deps commandDeps) int {
	if len(args) == 0 {
		printUsage(deps.Stderr)
		return exitUsage
	}
	switch args[0] {
	case "server":
		return deps.RunServer(args[1:], deps)
	case "mcp":
		return deps.RunMCP(args[1:], deps)
	case "pipeline":
		return deps.RunPipeline(args[1:], deps)
	case "tmsl":
		return deps.RunTMSL(args[1:], deps)
	case "bpa":
		return deps.RunBPA(args[1:], deps)
	case "backup":
		return deps.RunBackup(args[1:], deps)
	case "docs":
		return deps.RunDocs(args[1:], deps)
	case "config":
		return deps.RunConfig(args[1:], deps)
	case "completion":
		return deps.RunCompletion(args[1:], deps)
	case "version", "--version", "-v":
		fmt.Fprintf(deps.Stdout, "fabrik %s\n", version.String())
		return exitOK
	case "help", "--help", "-h":
		printUsage(deps.Stdout)
		return exitOK
	default:
		fmt.Fprintf(deps.Stderr, "fabrik: unknown command %q\n\n", args[0])
		printUsage(deps.Stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `usage: fabrik <command> [arguments]

Commands:
  server                        run the HTTP API server
  mcp                           run the MCP server on stdio
  pipeline validate <file>      validate a pipeline definition
  pipeline order <file>         print dependency-ordered execution waves
  pipeline schema               print the definition JSON schema
  pipeline deploy <file>        create or update the pipeline in Fabric
  pipeline run <file>           execute the pipeline with the local engine
  tmsl validate <file>          validate a TMSL model document
  tmsl normalize <file>         print the normalized TMSL document
  tmsl template <options.json>  generate a DirectLake model template
  bpa analyze <file>            run best-practice rules against a model
  bpa rules                     list the loaded best-practice rules
  backup create                 snapshot a semantic model
  backup list                   list stored snapshots
  backup restore <id>           write a snapshot's TMSL back out
  backup prune                  delete snapshots past retention
  docs list                     list the embedded operator guides
  docs lint                     check guide tool references
  config init                   create or upgrade the settings file
  config install <dir>          lay down the embedded workspace assets
  completion [bash|zsh]         print a shell completion script
  version                       print the version

Configuration is read from the file named by FABRIK_CONFIG (default
fabrik.toml if present) with FABRIK_* environment overrides.
`)
}

func usageError(deps commandDeps, format string, args ...any) int {
	fmt.Fprintf(deps.Stderr, "fabrik: "+format+"\n", args...)
	return exitUsage
}

func commandError(deps commandDeps, err error) int {
	fmt.Fprintf(deps.Stderr, "fabrik: %v\n", err)
	return exitError
}
