// Command fabrikctl is a small operations client for a running fabrik
// server: check status, start and watch pipeline runs, and list
// backups, all over the HTTP API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "status":
		runStatus(os.Args[2:])
	case "runs":
		runList(os.Args[2:])
	case "run":
		runStart(os.Args[2:])
	case "show":
		runShow(os.Args[2:])
	case "cancel":
		runCancel(os.Args[2:])
	case "backups":
		runBackups(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: fabrikctl <command> [flags]

Commands:
  status                 server status
  runs [-pipeline name]  list pipeline runs
  run <definition.json>  start a run and print its ID
  show <run-id>          print one run with activity states
  cancel <run-id>        request cancellation of a running run
  backups                list model backups

Flags common to every command:
  -url    server base URL (default http://127.0.0.1:8766,
          or FABRIK_URL)
  -token  auth token (or FABRIK_TOKEN)
`)
}
