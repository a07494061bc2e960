package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fabrik/internal/fabric"
	"fabrik/internal/pipeline"
	"fabrik/internal/runs"
)

func runPipeline(args []string, deps commandDeps) int {
	if len(args) == 0 {
		return usageError(deps, "usage: fabrik pipeline validate|order|schema|deploy|run")
	}
	switch args[0] {
	case "validate":
		return pipelineValidate(args[1:], deps)
	case "order":
		return pipelineOrder(args[1:], deps)
	case "schema":
		return pipelineSchema(args[1:], deps)
	case "deploy":
		return pipelineDeploy(args[1:], deps)
	case "run":
		return pipelineRun(args[1:], deps)
	default:
		return usageError(deps, "unknown pipeline command %q", args[0])
	}
}

// readDefinition loads a pipeline definition file, accepting YAML by
// extension and JSON otherwise.
func readDefinition(path string) (*pipeline.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return pipeline.DecodeYAML(data)
	default:
		return pipeline.DecodeBytes(data)
	}
}

func pipelineValidate(args []string, deps commandDeps) int {
	if len(args) != 1 {
		return usageError(deps, "usage: fabrik pipeline validate <file>")
	}
	d, err := readDefinition(args[0])
	if err != nil {
		return commandError(deps, err)
	}
	if err := pipeline.Validate(d); err != nil {
		return commandError(deps, err)
	}
	fmt.Fprintf(deps.Stdout, "%s: valid (%d activities)\n", d.Name, len(d.Properties.Activities))
	return exitOK
}

func pipelineOrder(args []string, deps commandDeps) int {
	if len(args) != 1 {
		return usageError(deps, "usage: fabrik pipeline order <file>")
	}
	d, err := readDefinition(args[0])
	if err != nil {
		return commandError(deps, err)
	}
	if err := pipeline.Validate(d); err != nil {
		return commandError(deps, err)
	}
	waves, err := pipeline.NewGraph(d).ExecutionOrder()
	if err != nil {
		return commandError(deps, err)
	}
	for i, wave := range waves {
		fmt.Fprintf(deps.Stdout, "wave %d: %s\n", i+1, strings.Join(wave, ", "))
	}
	return exitOK
}

func pipelineSchema(args []string, deps commandDeps) int {
	if len(args) != 0 {
		return usageError(deps, "usage: fabrik pipeline schema")
	}
	encoded, err := json.MarshalIndent(pipeline.DefinitionSchema(), "", "  ")
	if err != nil {
		return commandError(deps, err)
	}
	fmt.Fprintln(deps.Stdout, string(encoded))
	return exitOK
}

func pipelineDeploy(args []string, deps commandDeps) int {
	flags := flag.NewFlagSet("pipeline deploy", flag.ContinueOnError)
	flags.SetOutput(deps.Stderr)
	workspace := flags.String("workspace", "", "target workspace ID")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 1 || *workspace == "" {
		return usageError(deps, "usage: fabrik pipeline deploy --workspace <id> <file>")
	}
	d, err := readDefinition(flags.Arg(0))
	if err != nil {
		return commandError(deps, err)
	}
	if err := pipeline.Validate(d); err != nil {
		return commandError(deps, err)
	}
	settings, err := loadSettings()
	if err != nil {
		return commandError(deps, err)
	}
	client, err := newFabricClient(settings.Fabric, quietLogger())
	if err != nil {
		return commandError(deps, err)
	}
	if client == nil {
		return commandError(deps, fmt.Errorf("no Fabric credentials configured"))
	}

	encoded, err := pipeline.EncodeBytes(d)
	if err != nil {
		return commandError(deps, err)
	}
	definition := fabric.Definition{
		Parts: []fabric.DefinitionPart{fabric.InlinePart("pipeline-content.json", encoded)},
	}

	ctx := context.Background()
	existing, err := client.ListItems(ctx, *workspace, fabric.ItemTypeDataPipeline)
	if err != nil {
		return commandError(deps, err)
	}
	for _, item := range existing {
		if strings.EqualFold(item.DisplayName, d.Name) {
			if err := client.UpdateItemDefinition(ctx, *workspace, item.ID, definition); err != nil {
				return commandError(deps, err)
			}
			fmt.Fprintf(deps.Stdout, "updated %s (%s)\n", d.Name, item.ID)
			return exitOK
		}
	}
	item, err := client.CreateItem(ctx, *workspace, d.Name, fabric.ItemTypeDataPipeline, definition)
	if err != nil {
		return commandError(deps, err)
	}
	fmt.Fprintf(deps.Stdout, "created %s (%s)\n", d.Name, item.ID)
	return exitOK
}

type paramFlags map[string]any

func (p paramFlags) String() string { return "" }

func (p paramFlags) Set(value string) error {
	key, raw, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected name=value, got %q", value)
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		parsed = raw
	}
	p[key] = parsed
	return nil
}

func pipelineRun(args []string, deps commandDeps) int {
	flags := flag.NewFlagSet("pipeline run", flag.ContinueOnError)
	flags.SetOutput(deps.Stderr)
	params := paramFlags{}
	flags.Var(params, "param", "parameter override as name=value (repeatable)")
	dryRun := flags.Bool("dry-run", false, "skip notebook invocation, exercise orchestration only")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 1 {
		return usageError(deps, "usage: fabrik pipeline run [--param name=value] [--dry-run] <file>")
	}
	d, err := readDefinition(flags.Arg(0))
	if err != nil {
		return commandError(deps, err)
	}
	settings, err := loadSettings()
	if err != nil {
		return commandError(deps, err)
	}

	var invoker runs.Invoker = &runs.DryRunInvoker{}
	if !*dryRun {
		client, err := newFabricClient(settings.Fabric, quietLogger())
		if err != nil {
			return commandError(deps, err)
		}
		if client != nil {
			invoker = &runs.NotebookInvoker{Client: client}
		}
	}
	engine, err := runs.NewEngine(runs.Options{Invoker: invoker})
	if err != nil {
		return commandError(deps, err)
	}

	ctx, stop := notifyContext()
	defer stop()
	run, err := engine.Execute(ctx, d, map[string]any(params))
	if run != nil {
		printRun(deps, run)
	}
	if err != nil {
		return commandError(deps, err)
	}
	return exitOK
}

func printRun(deps commandDeps, run *runs.Run) {
	fmt.Fprintf(deps.Stdout, "run %s: %s\n", run.ID, run.State)
	names := make([]string, 0, len(run.Activities))
	for name := range run.Activities {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result := run.Activities[name]
		line := fmt.Sprintf("  %-24s %s", name, result.State)
		if result.Error != "" {
			line += "  " + result.Error
		}
		fmt.Fprintln(deps.Stdout, line)
	}
}
