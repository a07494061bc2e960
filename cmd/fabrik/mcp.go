package main

import (
	"fabrik/internal/mcpserver"
	"fabrik/internal/server"
)

func runMCP(args []string, deps commandDeps) int {
	if len(args) != 0 {
		return usageError(deps, "mcp takes no arguments")
	}
	settings, err := loadSettings()
	if err != nil {
		return commandError(deps, err)
	}
	// A stdio tool should not spawn watchers or a dev server.
	settings.Pipeline.Watch = false
	settings.Temporal.Enabled = false

	app, err := server.New(settings)
	if err != nil {
		return commandError(deps, err)
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
		return commandError(deps, err)
	}
	if err := mcp.ServeStdio(); err != nil {
		return commandError(deps, err)
	}
	return exitOK
}
