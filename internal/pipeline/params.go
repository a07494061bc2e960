package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// parameterRefPattern matches the one expression form pipeline documents
// use for parameter binding: @pipeline().parameters.Name.
var parameterRefPattern = regexp.MustCompile(`^@pipeline\(\)\.parameters\.([A-Za-z_][A-Za-z0-9_]*)$`)

// interpolationPattern matches @{pipeline().parameters.Name} segments
// embedded inside string expressions.
var interpolationPattern = regexp.MustCompile(`@\{pipeline\(\)\.parameters\.([A-Za-z_][A-Za-z0-9_]*)\}`)

// ParseParameterRef extracts the pipeline parameter name from a
// whole-value expression such as "@pipeline().parameters.RetentionDays".
func ParseParameterRef(expression string) (string, bool) {
	match := parameterRefPattern.FindStringSubmatch(strings.TrimSpace(expression))
	if match == nil {
		return "", false
	}
	return match[1], true
}

// ResolveParameters computes the effective pipeline parameter values from
// the declared defaults and caller overrides. Overrides for undeclared
// parameters and type-mismatched overrides are rejected.
func ResolveParameters(d *Definition, overrides map[string]any) (map[string]any, error) {
	if d == nil {
		return nil, badRequest("", "pipeline definition is required")
	}
	declared := d.Properties.Parameters

	for name := range overrides {
		if _, ok := declared[name]; !ok {
			return nil, badRequest("parameters."+name, "pipeline does not declare parameter %q", name)
		}
	}

	resolved := make(map[string]any, len(declared))
	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		parameter := declared[name]
		value := parameter.DefaultValue
		if override, ok := overrides[name]; ok {
			value = override
		}
		if value == nil {
			return nil, badRequest("parameters."+name, "parameter %q has no default and no override", name)
		}
		if err := checkParameterValue(parameter.Type, value); err != nil {
			return nil, badRequest("parameters."+name, "%v", err)
		}
		resolved[name] = value
	}
	return resolved, nil
}

// EvalActivityParameters resolves an activity's parameter bindings
// against the effective pipeline parameter values: literals pass through,
// whole-value expressions substitute the referenced parameter, and string
// expressions with @{...} segments interpolate.
func EvalActivityParameters(a Activity, params map[string]any) (map[string]any, error) {
	bindings := a.TypeProperties.Parameters
	if len(bindings) == 0 {
		return map[string]any{}, nil
	}

	out := make(map[string]any, len(bindings))
	for name, binding := range bindings {
		expr, ok := binding.Expression()
		if !ok {
			literal, _ := binding.Literal()
			out[name] = literal
			continue
		}
		value, err := evalExpression(expr, params)
		if err != nil {
			return nil, fmt.Errorf("activity %q parameter %q: %w", a.Name, name, err)
		}
		out[name] = value
	}
	return out, nil
}

func evalExpression(expression string, params map[string]any) (any, error) {
	if ref, ok := ParseParameterRef(expression); ok {
		value, declared := params[ref]
		if !declared {
			return nil, fmt.Errorf("undeclared pipeline parameter %q", ref)
		}
		return value, nil
	}

	if interpolationPattern.MatchString(expression) {
		var missing string
		replaced := interpolationPattern.ReplaceAllStringFunc(expression, func(segment string) string {
			ref := interpolationPattern.FindStringSubmatch(segment)[1]
			value, declared := params[ref]
			if !declared {
				missing = ref
				return segment
			}
			return fmt.Sprint(value)
		})
		if missing != "" {
			return nil, fmt.Errorf("undeclared pipeline parameter %q", missing)
		}
		return replaced, nil
	}

	return nil, fmt.Errorf("unsupported expression %q", expression)
}
