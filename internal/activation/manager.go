// Package activation implements modular tool activation for the MCP
// server: tool categories start dormant and are switched on explicitly
// or by keyword detection on the user's request.
package activation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Category ids. Core is always active.
const (
	CategoryCore      = "core"
	CategoryWorkspace = "workspace"
	CategoryAnalysis  = "analysis"
	CategoryModeling  = "modeling"
	CategoryPipelines = "pipelines"
	CategoryBackups   = "backups"
)

// Metadata describes one activatable tool category.
type Metadata struct {
	Name     string   `json:"name"`
	Title    string   `json:"title"`
	Tools    []string `json:"tools"`
	Keywords []string `json:"keywords"`
	Examples []string `json:"examples"`
}

var categories = []Metadata{
	{
		Name:  CategoryCore,
		Title: "Server and activation",
		Tools: []string{
			"get_server_info",
			"smart_activate_tools",
			"activate_workspace_tools",
			"activate_analysis_tools",
			"activate_modeling_tools",
			"activate_pipeline_tools",
			"activate_backup_tools",
			"list_tool_categories",
			"get_token_status",
			"clear_token_cache",
		},
	},
	{
		Name:  CategoryWorkspace,
		Title: "Workspace discovery and queries",
		Tools: []string{
			"list_workspaces",
			"get_workspace_id",
			"list_datasets",
			"list_notebooks",
			"list_lakehouses",
			"list_delta_tables",
			"get_lakehouse_sql_endpoint",
			"execute_dax_query",
			"run_notebook_job",
			"get_notebook_job_status",
		},
		Keywords: []string{
			"workspace", "dataset", "notebook", "lakehouse", "delta table",
			"sql endpoint", "dax", "query", "job", "fabric",
		},
		Examples: []string{
			"list the datasets in the Analytics workspace",
			"run a DAX query against the sales model",
		},
	},
	{
		Name:  CategoryAnalysis,
		Title: "Best practice analysis",
		Tools: []string{
			"analyze_tmsl_bpa",
			"analyze_model_bpa",
			"get_bpa_violations_by_severity",
			"get_bpa_violations_by_category",
			"get_bpa_rules_summary",
			"get_bpa_categories",
			"generate_bpa_report",
		},
		Keywords: []string{
			"bpa", "best practice", "analyze", "violation", "rule", "analysis",
		},
		Examples: []string{
			"run a best practice analysis on my model",
			"show BPA violations by severity",
		},
	},
	{
		Name:  CategoryModeling,
		Title: "TMSL modeling",
		Tools: []string{
			"get_model_definition",
			"validate_tmsl",
			"update_model_using_tmsl",
			"add_measure_to_model",
			"generate_directlake_tmsl_template",
		},
		Keywords: []string{
			"tmsl", "model definition", "measure", "directlake", "semantic model",
			"tabular",
		},
		Examples: []string{
			"add a Total Sales measure to the model",
			"generate a DirectLake template from the lakehouse",
		},
	},
	{
		Name:  CategoryPipelines,
		Title: "Pipeline definitions and runs",
		Tools: []string{
			"validate_pipeline_definition",
			"pipeline_execution_order",
			"deploy_data_pipeline",
			"run_data_pipeline",
			"get_pipeline_run",
			"export_pipeline_schema",
		},
		Keywords: []string{
			"pipeline", "activity", "depends", "deploy", "execution order", "run",
		},
		Examples: []string{
			"validate my pipeline definition",
			"run the nightly refresh pipeline",
		},
	},
	{
		Name:  CategoryBackups,
		Title: "Model backups",
		Tools: []string{
			"backup_semantic_model",
			"list_model_backups",
			"restore_semantic_model",
			"prune_model_backups",
		},
		Keywords: []string{
			"backup", "snapshot", "restore", "retention", "prune",
		},
		Examples: []string{
			"back up the sales model",
			"prune backups older than 30 days",
		},
	},
}

// Manager tracks which tool categories are active. Core is always on.
type Manager struct {
	mu     sync.RWMutex
	active map[string]bool
	byTool map[string]string
}

func NewManager() *Manager {
	byTool := make(map[string]string)
	for _, category := range categories {
		for _, tool := range category.Tools {
			byTool[tool] = category.Name
		}
	}
	return &Manager{
		active: map[string]bool{CategoryCore: true},
		byTool: byTool,
	}
}

// Categories returns the metadata for every category.
func Categories() []Metadata {
	out := make([]Metadata, len(categories))
	copy(out, categories)
	return out
}

// Activate switches a category on. Activating core is a no-op.
func (m *Manager) Activate(name string) (Metadata, error) {
	meta, ok := categoryByName(name)
	if !ok {
		return Metadata{}, fmt.Errorf("unknown tool category %q", name)
	}
	m.mu.Lock()
	m.active[meta.Name] = true
	m.mu.Unlock()
	return meta, nil
}

// Active returns the names of active categories, sorted.
func (m *Manager) Active() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.active))
	for name := range m.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsActive reports whether a tool's category has been activated.
// Unknown tools are treated as inactive.
func (m *Manager) IsActive(tool string) bool {
	category, ok := m.byTool[tool]
	if !ok {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[category]
}

// CategoryActive reports whether one category has been activated.
func (m *Manager) CategoryActive(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[name]
}

// CategoryFor returns the category a tool belongs to.
func (m *Manager) CategoryFor(tool string) (string, bool) {
	category, ok := m.byTool[tool]
	return category, ok
}

// DetectCategories scores the request text against category keywords and
// returns matching inactive-or-active category names, best match first.
func (m *Manager) DetectCategories(request string) []string {
	lowered := strings.ToLower(request)
	type match struct {
		name  string
		score int
	}
	var matches []match
	for _, category := range categories {
		score := 0
		for _, keyword := range category.Keywords {
			if strings.Contains(lowered, keyword) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, match{name: category.Name, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	names := make([]string, 0, len(matches))
	for _, matched := range matches {
		names = append(names, matched.name)
	}
	return names
}

// ActivationCommand returns the activate_* tool name for a category.
func ActivationCommand(category string) string {
	switch category {
	case CategoryWorkspace:
		return "activate_workspace_tools"
	case CategoryAnalysis:
		return "activate_analysis_tools"
	case CategoryModeling:
		return "activate_modeling_tools"
	case CategoryPipelines:
		return "activate_pipeline_tools"
	case CategoryBackups:
		return "activate_backup_tools"
	default:
		return ""
	}
}

// HintForTool builds the activation-required error text for a call to an
// inactive tool.
func (m *Manager) HintForTool(tool string) string {
	category, ok := m.byTool[tool]
	if !ok {
		var commands []string
		for _, meta := range categories {
			if command := ActivationCommand(meta.Name); command != "" {
				commands = append(commands, fmt.Sprintf("%s (%s)", command, meta.Title))
			}
		}
		return fmt.Sprintf("Tool %q is not available. Activate a tool category first:\n  %s",
			tool, strings.Join(commands, "\n  "))
	}
	command := ActivationCommand(category)
	return fmt.Sprintf("Tool Activation Required: %q belongs to the %s category. "+
		"Run %s first, then retry your request.", tool, category, command)
}

// Summary describes the activation state for list_tool_categories.
type Summary struct {
	Categories []CategorySummary `json:"categories"`
}

type CategorySummary struct {
	Metadata
	Active bool `json:"active"`
}

func (m *Manager) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := Summary{Categories: make([]CategorySummary, 0, len(categories))}
	for _, category := range categories {
		summary.Categories = append(summary.Categories, CategorySummary{
			Metadata: category,
			Active:   m.active[category.Name],
		})
	}
	return summary
}

func categoryByName(name string) (Metadata, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, category := range categories {
		if category.Name == needle {
			return category, true
		}
	}
	return Metadata{}, false
}
