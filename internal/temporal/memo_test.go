package temporal

import (
	"strings"
	"testing"
)

func TestSerializeRunMemoRoundTrip(t *testing.T) {
	memo := &RunMemo{
		RunID:      "8f7a8f1e-3a53-4a7e-9a7e-3e8f36f7de11",
		Pipeline:   "Nightly Refresh",
		Activities: []string{"Load Sales", "Refresh Model"},
		Parameters: []string{"environment"},
	}
	payload, err := SerializeRunMemo(memo)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if strings.TrimSpace(payload) == "" {
		t.Fatalf("expected payload")
	}
	restored, err := DeserializeRunMemo(payload)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if restored.Pipeline != "Nightly Refresh" {
		t.Fatalf("expected pipeline name, got %q", restored.Pipeline)
	}
	if len(restored.Activities) != 2 || restored.Activities[0] != "Load Sales" {
		t.Fatalf("unexpected activities: %v", restored.Activities)
	}
	if len(restored.Parameters) != 1 || restored.Parameters[0] != "environment" {
		t.Fatalf("unexpected parameters: %v", restored.Parameters)
	}
}

func TestSerializeRunMemoTruncates(t *testing.T) {
	memo := &RunMemo{
		RunID:    "run",
		Pipeline: strings.Repeat("a", memoLimitBytes+100),
	}
	payload, err := SerializeRunMemo(memo)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(payload) != memoLimitBytes {
		t.Fatalf("expected %d bytes, got %d", memoLimitBytes, len(payload))
	}
	if !strings.HasSuffix(payload, "...") {
		t.Fatalf("expected truncation marker")
	}
}

func TestSerializeRunMemoNil(t *testing.T) {
	payload, err := SerializeRunMemo(nil)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if payload != "" {
		t.Fatalf("expected empty payload, got %q", payload)
	}
}

func TestDeserializeRunMemoEmpty(t *testing.T) {
	if _, err := DeserializeRunMemo("  "); err == nil {
		t.Fatalf("expected error for empty memo")
	}
}
