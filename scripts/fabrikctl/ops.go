package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type clientFlags struct {
	BaseURL string
	Token   string
}

func commonFlags(fs *flag.FlagSet) *clientFlags {
	defaults := &clientFlags{
		BaseURL: envDefault("FABRIK_URL", "http://127.0.0.1:8766"),
		Token:   os.Getenv("FABRIK_TOKEN"),
	}
	fs.StringVar(&defaults.BaseURL, "url", defaults.BaseURL, "server base URL")
	fs.StringVar(&defaults.Token, "token", defaults.Token, "auth token")
	return defaults
}

func envDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func parseOrExit(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "fabrikctl: %v\n", err)
	os.Exit(1)
}

// apiError mirrors the server's error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func call(cfg *clientFlags, method, path string, query url.Values, body any, out any) error {
	target := strings.TrimRight(cfg.BaseURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, target, payload)
	if err != nil {
		return err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if cfg.Token != "" {
		request.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		var envelope apiError
		if err := json.NewDecoder(response.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
			return fmt.Errorf("%s (%s)", envelope.Error.Message, envelope.Error.Code)
		}
		return fmt.Errorf("server returned %s", response.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfg := commonFlags(fs)
	parseOrExit(fs, args)

	var status map[string]any
	if err := call(cfg, http.MethodGet, "/api/status", nil, nil, &status); err != nil {
		fail(err)
	}
	printJSON(status)
}

type runSummary struct {
	ID         string `json:"id"`
	Pipeline   string `json:"pipeline"`
	State      string `json:"state"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt,omitempty"`
	Activities map[string]struct {
		State string `json:"state"`
		Error string `json:"error,omitempty"`
	} `json:"activities"`
}

func runList(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	cfg := commonFlags(fs)
	pipeline := fs.String("pipeline", "", "filter by pipeline name")
	state := fs.String("state", "", "filter by run state")
	parseOrExit(fs, args)

	query := url.Values{}
	if *pipeline != "" {
		query.Set("pipeline", *pipeline)
	}
	if *state != "" {
		query.Set("state", *state)
	}
	var entries []runSummary
	if err := call(cfg, http.MethodGet, "/api/runs", query, nil, &entries); err != nil {
		fail(err)
	}
	for _, entry := range entries {
		fmt.Printf("%s  %-20s %-10s %s\n", entry.ID, entry.Pipeline, entry.State, entry.StartedAt)
	}
	if len(entries) == 0 {
		fmt.Println("no runs")
	}
}

func runStart(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg := commonFlags(fs)
	parseOrExit(fs, args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fabrikctl run [flags] <definition.json>")
		os.Exit(2)
	}

	definition, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fail(err)
	}
	body := map[string]any{"definition": json.RawMessage(definition)}
	var started runSummary
	if err := call(cfg, http.MethodPost, "/api/runs", nil, body, &started); err != nil {
		fail(err)
	}
	fmt.Printf("%s  %s  %s\n", started.ID, started.Pipeline, started.State)
}

func runShow(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	cfg := commonFlags(fs)
	parseOrExit(fs, args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fabrikctl show [flags] <run-id>")
		os.Exit(2)
	}

	var entry runSummary
	if err := call(cfg, http.MethodGet, "/api/runs/"+fs.Arg(0), nil, nil, &entry); err != nil {
		fail(err)
	}
	fmt.Printf("%s  %s  %s\n", entry.ID, entry.Pipeline, entry.State)
	for name, activity := range entry.Activities {
		line := fmt.Sprintf("  %-24s %s", name, activity.State)
		if activity.Error != "" {
			line += "  " + activity.Error
		}
		fmt.Println(line)
	}
}

func runCancel(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	cfg := commonFlags(fs)
	parseOrExit(fs, args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fabrikctl cancel [flags] <run-id>")
		os.Exit(2)
	}

	var result map[string]any
	if err := call(cfg, http.MethodPost, "/api/runs/"+fs.Arg(0)+"/cancel", nil, nil, &result); err != nil {
		fail(err)
	}
	printJSON(result)
}

func runBackups(args []string) {
	fs := flag.NewFlagSet("backups", flag.ExitOnError)
	cfg := commonFlags(fs)
	workspace := fs.String("workspace", "", "filter by workspace")
	parseOrExit(fs, args)

	query := url.Values{}
	if *workspace != "" {
		query.Set("workspace", *workspace)
	}
	var entries []map[string]any
	if err := call(cfg, http.MethodGet, "/api/backups", query, nil, &entries); err != nil {
		fail(err)
	}
	printJSON(entries)
}

func printJSON(value any) {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fail(err)
	}
	fmt.Println(string(encoded))
}
