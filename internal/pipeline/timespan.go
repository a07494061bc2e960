package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timespan is a policy timeout in the D.HH:MM:SS form the pipeline
// definition format uses ("0.12:00:00"). The day part is optional on input.
// The original source text is kept so a decoded document re-encodes
// byte-for-byte.
type Timespan struct {
	duration time.Duration
	raw      string
}

func ParseTimespan(text string) (Timespan, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Timespan{}, fmt.Errorf("invalid timespan %q: expected D.HH:MM:SS", text)
	}

	days := int64(0)
	clock := trimmed
	if before, after, ok := strings.Cut(trimmed, "."); ok {
		parsed, err := parseTimespanPart(before, "days")
		if err != nil {
			return Timespan{}, fmt.Errorf("invalid timespan %q: %w", text, err)
		}
		days = parsed
		clock = after
	}

	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return Timespan{}, fmt.Errorf("invalid timespan %q: expected D.HH:MM:SS", text)
	}
	hours, err := parseTimespanPart(parts[0], "hours")
	if err != nil {
		return Timespan{}, fmt.Errorf("invalid timespan %q: %w", text, err)
	}
	minutes, err := parseTimespanPart(parts[1], "minutes")
	if err != nil {
		return Timespan{}, fmt.Errorf("invalid timespan %q: %w", text, err)
	}
	seconds, err := parseTimespanPart(parts[2], "seconds")
	if err != nil {
		return Timespan{}, fmt.Errorf("invalid timespan %q: %w", text, err)
	}
	if hours > 23 {
		return Timespan{}, fmt.Errorf("invalid timespan %q: hours out of range", text)
	}
	if minutes > 59 {
		return Timespan{}, fmt.Errorf("invalid timespan %q: minutes out of range", text)
	}
	if seconds > 59 {
		return Timespan{}, fmt.Errorf("invalid timespan %q: seconds out of range", text)
	}

	duration := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
	return Timespan{duration: duration, raw: trimmed}, nil
}

func parseTimespanPart(part, unit string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not a number", unit)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s is negative", unit)
	}
	return value, nil
}

// TimespanOf builds a Timespan from a duration. Negative durations clamp
// to zero.
func TimespanOf(d time.Duration) Timespan {
	if d < 0 {
		d = 0
	}
	return Timespan{duration: d}
}

func (t Timespan) Duration() time.Duration {
	return t.duration
}

func (t Timespan) IsZero() bool {
	return t.duration == 0 && t.raw == ""
}

func (t Timespan) String() string {
	if t.raw != "" {
		return t.raw
	}
	remaining := t.duration
	days := remaining / (24 * time.Hour)
	remaining -= days * 24 * time.Hour
	hours := remaining / time.Hour
	remaining -= hours * time.Hour
	minutes := remaining / time.Minute
	remaining -= minutes * time.Minute
	seconds := remaining / time.Second
	return fmt.Sprintf("%d.%02d:%02d:%02d", days, hours, minutes, seconds)
}

func (t Timespan) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timespan) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("timespan must be a string: %w", err)
	}
	parsed, err := ParseTimespan(text)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
