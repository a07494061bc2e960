package main

import (
	"fabrik/internal/server"
)

func runServer(args []string, deps commandDeps) int {
	if len(args) != 0 {
		return usageError(deps, "server takes no arguments")
	}
	settings, err := loadSettings()
	if err != nil {
		return commandError(deps, err)
	}
	app, err := server.New(settings)
	if err != nil {
		return commandError(deps, err)
	}

	ctx, stop := notifyContext()
	defer stop()

	if err := app.Run(ctx); err != nil {
		return commandError(deps, err)
	}
	return exitOK
}
