// Package docs ships the embedded operator guides the MCP server exposes
// as resources.
package docs

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed guides/*.md
var guidesFS embed.FS

// Guide is one parsed guide document.
type Guide struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Tools       []string `json:"tools,omitempty"`
	Description string   `json:"description"`
	Body        string   `json:"-"`
}

type frontmatter struct {
	Title       string   `yaml:"title"`
	Category    string   `yaml:"category"`
	Tools       []string `yaml:"tools"`
	Description string   `yaml:"description"`
}

// Index returns metadata for every embedded guide, sorted by slug.
func Index() ([]Guide, error) {
	entries, err := guidesFS.ReadDir("guides")
	if err != nil {
		return nil, fmt.Errorf("read guides: %w", err)
	}
	guides := make([]Guide, 0, len(entries))
	for _, entry := range entries {
		guide, err := load(entry.Name())
		if err != nil {
			return nil, err
		}
		guide.Body = ""
		guides = append(guides, guide)
	}
	sort.Slice(guides, func(i, j int) bool { return guides[i].Slug < guides[j].Slug })
	return guides, nil
}

// Get returns one guide by slug.
func Get(slug string) (Guide, error) {
	guide, err := load(slug + ".md")
	if err != nil {
		return Guide{}, fmt.Errorf("guide %q not found", slug)
	}
	return guide, nil
}

func load(name string) (Guide, error) {
	data, err := guidesFS.ReadFile(path.Join("guides", name))
	if err != nil {
		return Guide{}, err
	}
	frontmatterBytes, body, err := splitFrontmatter(data)
	if err != nil {
		return Guide{}, fmt.Errorf("guide %s: %w", name, err)
	}
	var fm frontmatter
	if err := yaml.Unmarshal(frontmatterBytes, &fm); err != nil {
		return Guide{}, fmt.Errorf("guide %s: parse frontmatter: %w", name, err)
	}
	guide := Guide{
		Slug:        strings.TrimSuffix(name, ".md"),
		Title:       strings.TrimSpace(fm.Title),
		Category:    strings.TrimSpace(fm.Category),
		Tools:       fm.Tools,
		Description: strings.TrimSpace(fm.Description),
		Body:        strings.TrimSpace(body),
	}
	if guide.Title == "" {
		return Guide{}, fmt.Errorf("guide %s: title is required", name)
	}
	if guide.Category == "" {
		return Guide{}, fmt.Errorf("guide %s: category is required", name)
	}
	return guide, nil
}

func splitFrontmatter(data []byte) ([]byte, string, error) {
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || strings.TrimSpace(strings.TrimSuffix(lines[0], "\r")) != "---" {
		return nil, "", fmt.Errorf("missing frontmatter delimiter")
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(strings.TrimSuffix(lines[i], "\r")) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, "", fmt.Errorf("missing closing frontmatter delimiter")
	}
	return []byte(strings.Join(lines[1:end], "\n")), strings.Join(lines[end+1:], "\n"), nil
}
