// Command fabrik-mcp runs the Fabric toolkit MCP server on stdio. It is
// the dedicated entry point for MCP clients that launch a plain binary;
// `fabrik mcp` does the same thing.
package main

import (
	"fmt"
	"os"

	"fabrik/internal/config"
	"fabrik/internal/mcpserver"
	"fabrik/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	path := os.Getenv("FABRIK_CONFIG")
	if path == "" {
		path = "fabrik.toml"
	}
	settings, err := config.LoadSettings(path, config.EnvOverrides(os.Environ()))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	settings.Pipeline.Watch = false
	settings.Temporal.Enabled = false

	app, err := server.New(settings)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer app.Close()

	mcp, err := mcpserver.New(mcpserver.Options{
		Client:   app.Fabric,
		Analyzer: app.Analyzer,
		Engine:   app.Engine,
		RunStore: app.RunStore,
		Backups:  app.Backups,
		Logger:   app.Logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := mcp.ServeStdio(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
