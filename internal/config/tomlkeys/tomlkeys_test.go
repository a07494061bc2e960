package tomlkeys

import "testing"

func TestTableAndDottedKeysAreEquivalent(t *testing.T) {
	cases := []string{
		`[fabric]
rate-limit-rps = 8
`,
		`fabric.rate-limit-rps = 8
`,
	}
	for _, input := range cases {
		store, err := Decode([]byte(input))
		if err != nil {
			t.Fatalf("decode toml: %v", err)
		}
		value, ok := store.GetInt("fabric.rate-limit-rps")
		if !ok {
			t.Fatalf("expected fabric.rate-limit-rps value")
		}
		if value != 8 {
			t.Fatalf("expected 8, got %d", value)
		}
	}
}

func TestNormalizationHandlesUnderscoresAndCase(t *testing.T) {
	input := `[Backup]
RETENTION_DAYS = 14
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	value, ok := store.GetInt("backup.retention-days")
	if !ok {
		t.Fatalf("expected normalized key to resolve")
	}
	if value != 14 {
		t.Fatalf("expected 14, got %d", value)
	}
}

func TestTypePreservation(t *testing.T) {
	input := `[pipelines]
watch = true
[runs]
max-parallel = 4
engine = "local"
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	watch, ok := store.GetBool("pipelines.watch")
	if !ok || !watch {
		t.Fatalf("expected pipelines.watch true")
	}
	parallel, ok := store.GetInt("runs.max-parallel")
	if !ok || parallel != 4 {
		t.Fatalf("expected runs.max-parallel 4, got %d", parallel)
	}
	engine, ok := store.GetString("runs.engine")
	if !ok || engine != "local" {
		t.Fatalf("expected runs.engine local, got %q", engine)
	}
	if _, ok := store.GetString("runs.max-parallel"); ok {
		t.Fatalf("expected max-parallel to not be a string")
	}
}

func TestArraysArePreservedAsValues(t *testing.T) {
	input := `[bpa]
categories = ["Performance", "Maintenance"]
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	value, ok := store.flat["bpa.categories"]
	if !ok {
		t.Fatalf("expected bpa.categories key")
	}
	items, ok := value.([]any)
	if !ok {
		t.Fatalf("expected bpa.categories to be []any, got %T", value)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(items))
	}
}
