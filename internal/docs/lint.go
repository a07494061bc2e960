package docs

import (
	"fmt"
	"sort"

	"fabrik/internal/activation"
)

// Lint checks the embedded guides against the tool catalog: every tool a
// guide references must exist, and every activatable category must be
// covered by at least one guide.
func Lint() []error {
	var problems []error

	guides, err := Index()
	if err != nil {
		return []error{err}
	}

	known := make(map[string]bool)
	categories := make(map[string]bool)
	for _, category := range activation.Categories() {
		categories[category.Name] = true
		for _, tool := range category.Tools {
			known[tool] = true
		}
	}

	covered := make(map[string]bool)
	for _, guide := range guides {
		if !categories[guide.Category] {
			problems = append(problems, fmt.Errorf("guide %s: unknown category %q", guide.Slug, guide.Category))
		} else {
			covered[guide.Category] = true
		}
		for _, tool := range guide.Tools {
			if !known[tool] {
				problems = append(problems, fmt.Errorf("guide %s: unknown tool %q", guide.Slug, tool))
			}
		}
	}

	var missing []string
	for name := range categories {
		if name == activation.CategoryCore {
			continue
		}
		if !covered[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	for _, name := range missing {
		problems = append(problems, fmt.Errorf("category %q has no guide", name))
	}

	return problems
}
