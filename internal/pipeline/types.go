package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ActivityTypeNotebook is the activity type the run engine knows how to
// invoke. Other types decode with opaque typeProperties.
const ActivityTypeNotebook = "TridentNotebook"

// Definition is a Fabric data-pipeline definition document.
type Definition struct {
	Name       string     `json:"name" jsonschema:"required"`
	Properties Properties `json:"properties" jsonschema:"required"`
}

type Properties struct {
	Activities []Activity `json:"activities" jsonschema:"required"`
	Parameters Parameters `json:"parameters,omitempty"`
}

type Activity struct {
	Name           string         `json:"name" jsonschema:"required"`
	Type           string         `json:"type" jsonschema:"required"`
	Description    string         `json:"description,omitempty"`
	DependsOn      []Dependency   `json:"dependsOn"`
	Policy         *Policy        `json:"policy,omitempty"`
	TypeProperties TypeProperties `json:"typeProperties"`
}

type Dependency struct {
	Activity             string      `json:"activity" jsonschema:"required"`
	DependencyConditions []Condition `json:"dependencyConditions" jsonschema:"required"`
}

// Condition names the upstream outcome a dependency waits for.
type Condition string

const (
	ConditionSucceeded Condition = "Succeeded"
	ConditionFailed    Condition = "Failed"
	ConditionSkipped   Condition = "Skipped"
	ConditionCompleted Condition = "Completed"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionSucceeded, ConditionFailed, ConditionSkipped, ConditionCompleted:
		return true
	default:
		return false
	}
}

type Policy struct {
	Timeout                Timespan `json:"timeout,omitempty"`
	Retry                  int      `json:"retry"`
	RetryIntervalInSeconds int      `json:"retryIntervalInSeconds"`
	SecureOutput           bool     `json:"secureOutput"`
	SecureInput            bool     `json:"secureInput"`
}

// Parameters declares the pipeline-level typed inputs.
type Parameters map[string]Parameter

type Parameter struct {
	Type         ParameterType `json:"type" jsonschema:"required"`
	DefaultValue any           `json:"defaultValue,omitempty"`
}

type ParameterType string

const (
	ParameterString ParameterType = "string"
	ParameterInt    ParameterType = "int"
	ParameterBool   ParameterType = "bool"
	ParameterFloat  ParameterType = "float"
)

func (t ParameterType) Valid() bool {
	switch t {
	case ParameterString, ParameterInt, ParameterBool, ParameterFloat:
		return true
	default:
		return false
	}
}

// ActivityParameters binds notebook parameters to literals or expressions.
type ActivityParameters map[string]ActivityParameter

type ActivityParameter struct {
	Value any    `json:"value"`
	Type  string `json:"type,omitempty"`
}

// Expression is the deferred-binding form of an activity parameter value.
type Expression struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

const expressionTypeTag = "Expression"

func NewExpression(text string) Expression {
	return Expression{Value: text, Type: expressionTypeTag}
}

// Expression returns the expression text when the value is deferred.
func (p ActivityParameter) Expression() (string, bool) {
	if expr, ok := p.Value.(Expression); ok {
		return expr.Value, true
	}
	return "", false
}

// Literal returns the bound value when it is not an expression.
func (p ActivityParameter) Literal() (any, bool) {
	if _, ok := p.Value.(Expression); ok {
		return nil, false
	}
	return p.Value, true
}

func (p *ActivityParameter) UnmarshalJSON(data []byte) error {
	var aux struct {
		Value json.RawMessage `json:"value"`
		Type  string          `json:"type"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Type = aux.Type
	if len(aux.Value) == 0 {
		p.Value = nil
		return nil
	}

	var expr Expression
	if err := json.Unmarshal(aux.Value, &expr); err == nil && expr.Type == expressionTypeTag {
		p.Value = expr
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(aux.Value))
	decoder.UseNumber()
	var literal any
	if err := decoder.Decode(&literal); err != nil {
		return err
	}
	p.Value = literal
	return nil
}

// TypeProperties carries the per-type activity configuration. The notebook
// fields are first-class; anything else survives decode/encode untouched
// in Extra so unfamiliar activity types round-trip.
type TypeProperties struct {
	NotebookID  string             `json:"notebookId,omitempty"`
	WorkspaceID string             `json:"workspaceId,omitempty"`
	Parameters  ActivityParameters `json:"parameters,omitempty"`
	SessionTag  string             `json:"sessionTag,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var notebookPropertyKeys = map[string]struct{}{
	"notebookId":  {},
	"workspaceId": {},
	"parameters":  {},
	"sessionTag":  {},
}

func (tp *TypeProperties) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*tp = TypeProperties{}
	if payload, ok := raw["notebookId"]; ok {
		if err := json.Unmarshal(payload, &tp.NotebookID); err != nil {
			return fmt.Errorf("notebookId: %w", err)
		}
	}
	if payload, ok := raw["workspaceId"]; ok {
		if err := json.Unmarshal(payload, &tp.WorkspaceID); err != nil {
			return fmt.Errorf("workspaceId: %w", err)
		}
	}
	if payload, ok := raw["parameters"]; ok {
		if err := json.Unmarshal(payload, &tp.Parameters); err != nil {
			return fmt.Errorf("parameters: %w", err)
		}
	}
	if payload, ok := raw["sessionTag"]; ok {
		if err := json.Unmarshal(payload, &tp.SessionTag); err != nil {
			return fmt.Errorf("sessionTag: %w", err)
		}
	}
	for key, payload := range raw {
		if _, known := notebookPropertyKeys[key]; known {
			continue
		}
		if tp.Extra == nil {
			tp.Extra = map[string]json.RawMessage{}
		}
		tp.Extra[key] = payload
	}
	return nil
}

func (tp TypeProperties) MarshalJSON() ([]byte, error) {
	var out bytes.Buffer
	out.WriteByte('{')
	first := true
	write := func(key string, payload []byte) {
		if !first {
			out.WriteByte(',')
		}
		first = false
		keyJSON, _ := json.Marshal(key)
		out.Write(keyJSON)
		out.WriteByte(':')
		out.Write(payload)
	}

	if tp.NotebookID != "" {
		payload, err := json.Marshal(tp.NotebookID)
		if err != nil {
			return nil, err
		}
		write("notebookId", payload)
	}
	if tp.WorkspaceID != "" {
		payload, err := json.Marshal(tp.WorkspaceID)
		if err != nil {
			return nil, err
		}
		write("workspaceId", payload)
	}
	if len(tp.Parameters) > 0 {
		payload, err := json.Marshal(tp.Parameters)
		if err != nil {
			return nil, err
		}
		write("parameters", payload)
	}
	if tp.SessionTag != "" {
		payload, err := json.Marshal(tp.SessionTag)
		if err != nil {
			return nil, err
		}
		write("sessionTag", payload)
	}

	extraKeys := make([]string, 0, len(tp.Extra))
	for key := range tp.Extra {
		extraKeys = append(extraKeys, key)
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		write(key, tp.Extra[key])
	}

	out.WriteByte('}')
	return out.Bytes(), nil
}

// IsNotebook reports whether the activity targets a Fabric notebook.
func (a Activity) IsNotebook() bool {
	return a.Type == ActivityTypeNotebook
}

// ActivityNames returns the declared activity names in document order.
func (d *Definition) ActivityNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Properties.Activities))
	for _, activity := range d.Properties.Activities {
		names = append(names, activity.Name)
	}
	return names
}

// Activity finds a declared activity by name.
func (d *Definition) Activity(name string) (Activity, bool) {
	if d == nil {
		return Activity{}, false
	}
	for _, activity := range d.Properties.Activities {
		if activity.Name == name {
			return activity, true
		}
	}
	return Activity{}, false
}

// normalize makes optional collections non-nil so encode output is stable.
func (d *Definition) normalize() {
	if d == nil {
		return
	}
	d.Name = strings.TrimSpace(d.Name)
	if d.Properties.Activities == nil {
		d.Properties.Activities = []Activity{}
	}
	for i := range d.Properties.Activities {
		if d.Properties.Activities[i].DependsOn == nil {
			d.Properties.Activities[i].DependsOn = []Dependency{}
		}
	}
}
