package main

import (
	"fmt"
	"os"

	"fabrik/internal/config"
)

func runConfig(args []string, deps commandDeps) int {
	if len(args) == 0 {
		return usageError(deps, "usage: fabrik config init|install")
	}
	switch args[0] {
	case "init":
		return configInit(args[1:], deps)
	case "install":
		return configInstall(args[1:], deps)
	default:
		return usageError(deps, "unknown config command %q", args[0])
	}
}

// configInit creates the settings file from the embedded defaults, or
// adds keys a newer release introduced while keeping every value the
// user already set.
func configInit(args []string, deps commandDeps) int {
	if len(args) != 0 {
		return usageError(deps, "usage: fabrik config init")
	}
	path := os.Getenv("FABRIK_CONFIG")
	if path == "" {
		path = defaultConfigFile
	}
	written, err := config.SyncDefaults(path, quietLogger())
	if err != nil {
		return commandError(deps, err)
	}
	if written {
		fmt.Fprintf(deps.Stdout, "wrote %s\n", path)
	} else {
		fmt.Fprintf(deps.Stdout, "%s is up to date\n", path)
	}
	return exitOK
}

// configInstall lays down the embedded workspace assets (settings file,
// example pipelines) into a directory, keeping locally edited files.
func configInstall(args []string, deps commandDeps) int {
	if len(args) != 1 {
		return usageError(deps, "usage: fabrik config install <dir>")
	}
	installer := &config.Installer{Logger: quietLogger()}
	result, err := installer.Install(args[0])
	if err != nil {
		return commandError(deps, err)
	}
	for _, name := range result.Installed {
		fmt.Fprintf(deps.Stdout, "installed %s\n", name)
	}
	for _, name := range result.Kept {
		fmt.Fprintf(deps.Stdout, "kept %s (local edits)\n", name)
	}
	for _, name := range result.Conflicts {
		fmt.Fprintf(deps.Stdout, "conflict %s (local and upstream both changed)\n", name)
	}
	if len(result.Conflicts) > 0 {
		return exitError
	}
	return exitOK
}
