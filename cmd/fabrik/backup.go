package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fabrik/internal/backup"
	"fabrik/internal/config"
	"fabrik/internal/fabric"
)

func runBackup(args []string, deps commandDeps) int {
	if len(args) == 0 {
		return usageError(deps, "usage: fabrik backup create|list|restore|prune")
	}
	switch args[0] {
	case "create":
		return backupCreate(args[1:], deps)
	case "list":
		return backupList(args[1:], deps)
	case "restore":
		return backupRestore(args[1:], deps)
	case "prune":
		return backupPrune(args[1:], deps)
	default:
		return usageError(deps, "unknown backup command %q", args[0])
	}
}

// openBackupStore opens the configured snapshot store. The fabric
// client may be nil for the offline commands (list, restore, prune).
func openBackupStore(settings config.BackupSettings, client *fabric.Client) (*backup.Store, error) {
	var mirror *backup.Mirror
	if strings.TrimSpace(settings.Endpoint) != "" {
		built, err := backup.NewMirror(backup.MirrorConfig{
			Endpoint:  settings.Endpoint,
			AccessKey: os.Getenv(settings.AccessKeyEnv),
			SecretKey: os.Getenv(settings.SecretKeyEnv),
			UseSSL:    settings.UseSSL,
			Bucket:    settings.Bucket,
			Prefix:    settings.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("build backup mirror: %w", err)
		}
		mirror = built
	}
	return backup.OpenStore(backup.Options{
		Dir:         settings.Dir,
		CatalogPath: filepath.Join(settings.Dir, "catalog.db"),
		Client:      client,
		Mirror:      mirror,
		Logger:      quietLogger(),
	})
}

func backupCreate(args []string, deps commandDeps) int {
	flags := flag.NewFlagSet("backup create", flag.ContinueOnError)
	flags.SetOutput(deps.Stderr)
	workspace := flags.String("workspace", "", "workspace ID or name")
	model := flags.String("model", "", "semantic model ID or name")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 0 || *workspace == "" || *model == "" {
		return usageError(deps, "usage: fabrik backup create --workspace <ws> --model <model>")
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
	store, err := openBackupStore(settings.Backup, client)
	if err != nil {
		return commandError(deps, err)
	}
	defer store.Close()

	entry, err := store.Snapshot(context.Background(), *workspace, *model)
	if err != nil {
		return commandError(deps, err)
	}
	fmt.Fprintf(deps.Stdout, "%s  %s/%s  %d bytes (%d compressed)\n",
		entry.ID, entry.WorkspaceName, entry.ModelName, entry.Size, entry.CompressedSize)
	return exitOK
}

func backupList(args []string, deps commandDeps) int {
	flags := flag.NewFlagSet("backup list", flag.ContinueOnError)
	flags.SetOutput(deps.Stderr)
	workspace := flags.String("workspace", "", "filter by workspace")
	model := flags.String("model", "", "filter by model")
	limit := flags.Int("limit", 0, "maximum entries to print")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 0 {
		return usageError(deps, "usage: fabrik backup list [--workspace ws] [--model model] [--limit n]")
	}
	settings, err := loadSettings()
	if err != nil {
		return commandError(deps, err)
	}
	store, err := openBackupStore(settings.Backup, nil)
	if err != nil {
		return commandError(deps, err)
	}
	defer store.Close()

	entries, err := store.List(backup.Filter{Workspace: *workspace, Model: *model, Limit: *limit})
	if err != nil {
		return commandError(deps, err)
	}
	for _, entry := range entries {
		fmt.Fprintf(deps.Stdout, "%s  %s  %s/%s  %d bytes\n",
			entry.ID, entry.TakenAt.Format("2006-01-02 15:04:05"),
			entry.WorkspaceName, entry.ModelName, entry.Size)
	}
	if len(entries) == 0 {
		fmt.Fprintln(deps.Stdout, "no backups")
	}
	return exitOK
}

func backupRestore(args []string, deps commandDeps) int {
	flags := flag.NewFlagSet("backup restore", flag.ContinueOnError)
	flags.SetOutput(deps.Stderr)
	out := flags.String("out", "", "write the TMSL to this file instead of stdout")
	deploy := flags.Bool("deploy", false, "push the snapshot back to the model in Fabric")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 1 {
		return usageError(deps, "usage: fabrik backup restore [--out file] [--deploy] <id>")
	}
	settings, err := loadSettings()
	if err != nil {
		return commandError(deps, err)
	}

	if *deploy {
		client, err := newFabricClient(settings.Fabric, quietLogger())
		if err != nil {
			return commandError(deps, err)
		}
		if client == nil {
			return commandError(deps, fmt.Errorf("no Fabric credentials configured"))
		}
		store, err := openBackupStore(settings.Backup, client)
		if err != nil {
			return commandError(deps, err)
		}
		defer store.Close()
		entry, err := store.Deploy(context.Background(), flags.Arg(0))
		if err != nil {
			return commandError(deps, err)
		}
		fmt.Fprintf(deps.Stdout, "deployed %s to %s/%s\n", entry.ID, entry.WorkspaceName, entry.ModelName)
		return exitOK
	}

	store, err := openBackupStore(settings.Backup, nil)
	if err != nil {
		return commandError(deps, err)
	}
	defer store.Close()
	_, payload, err := store.Restore(flags.Arg(0))
	if err != nil {
		return commandError(deps, err)
	}
	if *out != "" {
		if err := os.WriteFile(*out, payload, 0o644); err != nil {
			return commandError(deps, err)
		}
		return exitOK
	}
	fmt.Fprintln(deps.Stdout, string(payload))
	return exitOK
}

func backupPrune(args []string, deps commandDeps) int {
	flags := flag.NewFlagSet("backup prune", flag.ContinueOnError)
	flags.SetOutput(deps.Stderr)
	retention := flags.Int("retention-days", 0, "override the configured retention window")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 0 {
		return usageError(deps, "usage: fabrik backup prune [--retention-days n]")
	}
	settings, err := loadSettings()
	if err != nil {
		return commandError(deps, err)
	}
	days := *retention
	if days <= 0 {
		days = int(settings.Backup.RetentionDays)
	}
	store, err := openBackupStore(settings.Backup, nil)
	if err != nil {
		return commandError(deps, err)
	}
	defer store.Close()
	removed, err := store.Prune(days)
	if err != nil {
		return commandError(deps, err)
	}
	fmt.Fprintf(deps.Stdout, "removed %d backups older than %d days\n", removed, days)
	return exitOK
}
