package docs

import (
	"strings"
	"testing"

	"fabrik/internal/activation"
)

func TestIndexListsAllGuides(t *testing.T) {
	guides, err := Index()
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if len(guides) < 5 {
		t.Fatalf("expected at least 5 guides, got %d", len(guides))
	}
	for _, guide := range guides {
		if guide.Title == "" || guide.Category == "" || guide.Description == "" {
			t.Fatalf("incomplete guide metadata: %#v", guide)
		}
		if guide.Body != "" {
			t.Fatalf("Index should not carry bodies, got one for %s", guide.Slug)
		}
	}
}

func TestGetReturnsBody(t *testing.T) {
	guide, err := Get("tool-activation")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if guide.Title != "Tool Activation Workflow" {
		t.Fatalf("title = %q", guide.Title)
	}
	if !strings.Contains(guide.Body, "activate_workspace_tools") {
		t.Fatalf("body missing activation command")
	}
}

func TestGetUnknownSlug(t *testing.T) {
	_, err := Get("no-such-guide")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLintPasses(t *testing.T) {
	problems := Lint()
	if len(problems) != 0 {
		t.Fatalf("lint problems: %v", problems)
	}
}

func TestEveryNonCoreCategoryHasGuide(t *testing.T) {
	guides, err := Index()
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	covered := map[string]bool{}
	for _, guide := range guides {
		covered[guide.Category] = true
	}
	for _, category := range activation.Categories() {
		if category.Name == activation.CategoryCore {
			continue
		}
		if !covered[category.Name] {
			t.Fatalf("category %s has no guide", category.Name)
		}
	}
}

func TestSplitFrontmatterErrors(t *testing.T) {
	if _, _, err := splitFrontmatter([]byte("no frontmatter here")); err == nil {
		t.Fatal("expected delimiter error")
	}
	if _, _, err := splitFrontmatter([]byte("---\ntitle: x\nno close")); err == nil {
		t.Fatal("expected closing delimiter error")
	}
}
