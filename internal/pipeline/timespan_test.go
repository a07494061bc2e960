package pipeline

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseTimespan(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"0.12:00:00", 12 * time.Hour},
		{"12:00:00", 12 * time.Hour},
		{"1.00:00:00", 24 * time.Hour},
		{"7.00:30:15", 7*24*time.Hour + 30*time.Minute + 15*time.Second},
		{"0.00:00:00", 0},
		{" 0.01:00:00 ", time.Hour},
	}
	for _, tc := range cases {
		parsed, err := ParseTimespan(tc.in)
		if err != nil {
			t.Fatalf("ParseTimespan(%q): %v", tc.in, err)
		}
		if parsed.Duration() != tc.want {
			t.Errorf("ParseTimespan(%q) = %v, want %v", tc.in, parsed.Duration(), tc.want)
		}
	}
}

func TestParseTimespanRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"12:00",
		"0.24:00:00",
		"0.12:60:00",
		"0.12:00:61",
		"-1.00:00:00",
		"0.aa:00:00",
		"twelve hours",
	}
	for _, in := range cases {
		if _, err := ParseTimespan(in); err == nil {
			t.Errorf("ParseTimespan(%q): expected error", in)
		}
	}
}

func TestTimespanRoundTripKeepsSourceText(t *testing.T) {
	parsed, err := ParseTimespan("12:30:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := parsed.String(); got != "12:30:00" {
		t.Fatalf("String() = %q, want source text", got)
	}

	payload, err := json.Marshal(parsed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `"12:30:00"` {
		t.Fatalf("marshal = %s", payload)
	}
}

func TestTimespanOfFormatsCanonically(t *testing.T) {
	ts := TimespanOf(36*time.Hour + 5*time.Minute)
	if got := ts.String(); got != "1.12:05:00" {
		t.Fatalf("String() = %q", got)
	}
	if TimespanOf(-time.Hour).Duration() != 0 {
		t.Fatal("negative duration should clamp to zero")
	}
}

func TestTimespanUnmarshalRejectsNonString(t *testing.T) {
	var ts Timespan
	err := json.Unmarshal([]byte("42"), &ts)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "string") {
		t.Fatalf("unexpected error %v", err)
	}
}
