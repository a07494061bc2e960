package bpa

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

//go:embed rules.json
var embeddedRules []byte

// Severity orders rule importance: INFO=1, WARNING=2, ERROR=3.
type Severity int

const (
	SeverityInfo    Severity = 1
	SeverityWarning Severity = 2
	SeverityError   Severity = 3
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return fmt.Sprintf("SEVERITY(%d)", int(s))
	}
}

// ParseSeverity accepts the severity names used in rules.json and the
// filter tools.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "INFO", "1":
		return SeverityInfo, nil
	case "WARNING", "2":
		return SeverityWarning, nil
	case "ERROR", "3":
		return SeverityError, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", name)
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ObjectType names the model object kind a rule applies to.
type ObjectType string

const (
	ObjectModel        ObjectType = "Model"
	ObjectTable        ObjectType = "Table"
	ObjectColumn       ObjectType = "Column"
	ObjectMeasure      ObjectType = "Measure"
	ObjectPartition    ObjectType = "Partition"
	ObjectRelationship ObjectType = "Relationship"
)

// Rule is the metadata of one best-practice rule. A rule ships in
// rules.json; whether it is enforced depends on a check function being
// registered for its ID.
type Rule struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Category      string       `json:"category"`
	Description   string       `json:"description"`
	Severity      Severity     `json:"severity"`
	Scope         []ObjectType `json:"scope"`
	FixExpression string       `json:"fixExpression,omitempty"`
}

// LoadRules reads rule metadata from path, or the embedded set when path
// is empty.
func LoadRules(path string) ([]Rule, error) {
	payload := embeddedRules
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read BPA rules: %w", err)
		}
		payload = data
	}

	var rules []Rule
	if err := json.Unmarshal(payload, &rules); err != nil {
		return nil, fmt.Errorf("parse BPA rules: %w", err)
	}

	seen := map[string]struct{}{}
	for _, rule := range rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("BPA rule without an id")
		}
		if _, duplicate := seen[rule.ID]; duplicate {
			return nil, fmt.Errorf("duplicate BPA rule id %q", rule.ID)
		}
		seen[rule.ID] = struct{}{}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}
