package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fabrik/internal/schema"
)

// Diagnostic is one lint finding for a definition file.
type Diagnostic struct {
	File    string `json:"file"`
	Path    string `json:"path,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// LintResult aggregates per-file findings for a lint pass.
type LintResult struct {
	Files       []string     `json:"files"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Clean reports whether the pass found no problems.
func (r *LintResult) Clean() bool {
	return r != nil && len(r.Diagnostics) == 0
}

// Lint validates every pipeline definition under the given paths.
// Directories are walked for .json, .yaml, and .yml files; explicit file
// paths are checked regardless of extension. Findings are aggregated
// rather than stopping at the first bad file.
func Lint(paths ...string) (*LintResult, error) {
	files, err := collectDefinitionFiles(paths)
	if err != nil {
		return nil, err
	}

	result := &LintResult{Files: files}
	for _, file := range files {
		result.Diagnostics = append(result.Diagnostics, lintFile(file)...)
	}
	return result, nil
}

func collectDefinitionFiles(paths []string) ([]string, error) {
	seen := map[string]struct{}{}
	var files []string
	add := func(path string) {
		if _, duplicate := seen[path]; duplicate {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("lint %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		walkErr := filepath.WalkDir(path, func(entry string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if isDefinitionFile(entry) {
				add(entry)
			}
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("lint %s: %w", path, walkErr)
		}
	}
	sort.Strings(files)
	return files, nil
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func lintFile(file string) []Diagnostic {
	data, err := os.ReadFile(file)
	if err != nil {
		return []Diagnostic{{File: file, Kind: "io", Message: err.Error()}}
	}

	var decodeErr error
	if isYAMLFile(file) {
		_, decodeErr = DecodeYAML(data)
	} else {
		_, decodeErr = DecodeBytes(data)
	}
	if decodeErr == nil {
		return nil
	}
	return []Diagnostic{toDiagnostic(file, decodeErr)}
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func toDiagnostic(file string, err error) Diagnostic {
	if validationErr, ok := err.(*ValidationError); ok {
		return Diagnostic{
			File:    file,
			Path:    validationErr.Path,
			Kind:    string(validationErr.Kind),
			Message: validationErr.Message,
		}
	}
	if schemaErr, ok := err.(*schema.ValidationError); ok {
		return Diagnostic{
			File:    file,
			Path:    schemaErr.Path,
			Kind:    "schema",
			Message: schemaErr.Error(),
		}
	}
	return Diagnostic{File: file, Kind: "invalid", Message: err.Error()}
}
