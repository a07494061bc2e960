package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type ValidationKind string

const (
	ValidationBadRequest ValidationKind = "bad_request"
	ValidationConflict   ValidationKind = "conflict"
)

type ValidationError struct {
	Kind    ValidationKind
	Path    string
	Message string
}

func (err *ValidationError) Error() string {
	if err == nil {
		return ""
	}
	if err.Path == "" {
		return err.Message
	}
	return fmt.Sprintf("%s: %s", err.Path, err.Message)
}

func badRequest(path, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: ValidationBadRequest, Path: path, Message: fmt.Sprintf(format, args...)}
}

func conflict(path, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: ValidationConflict, Path: path, Message: fmt.Sprintf(format, args...)}
}

var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

const (
	// Service bounds on the retry interval, applied when retries are on.
	minRetryIntervalSeconds = 30
	maxRetryIntervalSeconds = 86400
)

// Validate checks the semantic invariants of a definition: unique activity
// names, resolvable dependencies, policy bounds, notebook bindings,
// parameter declarations, and an acyclic graph. The first violation is
// returned as a *ValidationError.
func Validate(d *Definition) error {
	if d == nil {
		return badRequest("", "pipeline definition is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return badRequest("name", "pipeline name is required")
	}

	if err := validateParameters(d.Properties.Parameters); err != nil {
		return err
	}

	declared := map[string]int{}
	for index, activity := range d.Properties.Activities {
		path := activityPath(index)
		name := strings.TrimSpace(activity.Name)
		if name == "" {
			return badRequest(path+".name", "activity name is required")
		}
		if firstIndex, exists := declared[name]; exists {
			return conflict(path+".name", "duplicate activity name %q (first declared at activity %d)", name, firstIndex)
		}
		declared[name] = index
	}

	for index, activity := range d.Properties.Activities {
		path := activityPath(index)
		if strings.TrimSpace(activity.Type) == "" {
			return badRequest(path+".type", "activity type is required")
		}
		if err := validateDependencies(activity, path, declared); err != nil {
			return err
		}
		if err := validatePolicy(activity.Policy, path+".policy"); err != nil {
			return err
		}
		if err := validateNotebookProperties(activity, path+".typeProperties", d.Properties.Parameters); err != nil {
			return err
		}
	}

	if cycle := NewGraph(d).Cycle(); len(cycle) > 0 {
		return conflict("properties.activities", "dependency cycle: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

func validateDependencies(activity Activity, path string, declared map[string]int) error {
	for index, dependency := range activity.DependsOn {
		dependencyPath := fmt.Sprintf("%s.dependsOn[%d]", path, index)
		target := strings.TrimSpace(dependency.Activity)
		if target == "" {
			return badRequest(dependencyPath+".activity", "dependency activity is required")
		}
		if _, ok := declared[target]; !ok {
			return conflict(dependencyPath+".activity", "unknown activity %q", target)
		}
		if target == activity.Name {
			return conflict(dependencyPath+".activity", "activity %q depends on itself", target)
		}
		if len(dependency.DependencyConditions) == 0 {
			return badRequest(dependencyPath+".dependencyConditions", "at least one dependency condition is required")
		}
		for conditionIndex, condition := range dependency.DependencyConditions {
			if !condition.Valid() {
				return badRequest(
					fmt.Sprintf("%s.dependencyConditions[%d]", dependencyPath, conditionIndex),
					"unknown dependency condition %q", condition)
			}
		}
	}
	return nil
}

func validatePolicy(policy *Policy, path string) error {
	if policy == nil {
		return nil
	}
	if policy.Timeout.Duration() < 0 {
		return badRequest(path+".timeout", "timeout must not be negative")
	}
	if policy.Retry < 0 {
		return badRequest(path+".retry", "retry must not be negative")
	}
	if policy.RetryIntervalInSeconds < 0 {
		return badRequest(path+".retryIntervalInSeconds", "retry interval must not be negative")
	}
	if policy.Retry > 0 {
		if policy.RetryIntervalInSeconds < minRetryIntervalSeconds || policy.RetryIntervalInSeconds > maxRetryIntervalSeconds {
			return badRequest(path+".retryIntervalInSeconds",
				"retry interval must be between %d and %d seconds when retry is set",
				minRetryIntervalSeconds, maxRetryIntervalSeconds)
		}
	}
	return nil
}

func validateNotebookProperties(activity Activity, path string, parameters Parameters) error {
	if !activity.IsNotebook() {
		return nil
	}
	tp := activity.TypeProperties
	if strings.TrimSpace(tp.NotebookID) == "" {
		return badRequest(path+".notebookId", "notebookId is required for %s activities", ActivityTypeNotebook)
	}
	if !guidPattern.MatchString(tp.NotebookID) {
		return badRequest(path+".notebookId", "notebookId %q is not a GUID", tp.NotebookID)
	}
	if strings.TrimSpace(tp.WorkspaceID) == "" {
		return badRequest(path+".workspaceId", "workspaceId is required for %s activities", ActivityTypeNotebook)
	}
	if !guidPattern.MatchString(tp.WorkspaceID) {
		return badRequest(path+".workspaceId", "workspaceId %q is not a GUID", tp.WorkspaceID)
	}

	for name, parameter := range tp.Parameters {
		parameterPath := fmt.Sprintf("%s.parameters.%s", path, name)
		if parameter.Type != "" && !ParameterType(parameter.Type).Valid() {
			return badRequest(parameterPath+".type", "unknown parameter type %q", parameter.Type)
		}
		expr, ok := parameter.Expression()
		if !ok {
			continue
		}
		ref, ok := ParseParameterRef(expr)
		if !ok {
			return badRequest(parameterPath+".value", "unsupported expression %q", expr)
		}
		if _, declared := parameters[ref]; !declared {
			return badRequest(parameterPath+".value", "expression references undeclared pipeline parameter %q", ref)
		}
	}
	return nil
}

func validateParameters(parameters Parameters) error {
	for name, parameter := range parameters {
		path := "properties.parameters." + name
		if strings.TrimSpace(name) == "" {
			return badRequest("properties.parameters", "parameter name is required")
		}
		if !parameter.Type.Valid() {
			return badRequest(path+".type", "unknown parameter type %q", parameter.Type)
		}
		if parameter.DefaultValue == nil {
			continue
		}
		if err := checkParameterValue(parameter.Type, parameter.DefaultValue); err != nil {
			return badRequest(path+".defaultValue", "%v", err)
		}
	}
	return nil
}

func checkParameterValue(parameterType ParameterType, value any) error {
	switch parameterType {
	case ParameterString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case ParameterBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
	case ParameterInt:
		if !isIntegerValue(value) {
			return fmt.Errorf("expected int, got %v", formatValue(value))
		}
	case ParameterFloat:
		if !isNumericValue(value) {
			return fmt.Errorf("expected float, got %v", formatValue(value))
		}
	}
	return nil
}

func isIntegerValue(value any) bool {
	switch typed := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		return typed == float64(int64(typed))
	case json.Number:
		_, err := typed.Int64()
		return err == nil
	default:
		return false
	}
}

func isNumericValue(value any) bool {
	switch typed := value.(type) {
	case int, int32, int64, float32, float64:
		return true
	case json.Number:
		_, err := typed.Float64()
		return err == nil
	default:
		return false
	}
}

func formatValue(value any) string {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(payload)
}

func activityPath(index int) string {
	return fmt.Sprintf("properties.activities[%d]", index)
}
