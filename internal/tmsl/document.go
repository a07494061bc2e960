package tmsl

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Clean normalizes a raw TMSL string: line endings, surrounding
// whitespace, and the double-encoded form agents produce when they pass
// a JSON document through another JSON string.
func Clean(raw string) (string, error) {
	cleaned := strings.ReplaceAll(raw, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", fmt.Errorf("empty TMSL document")
	}

	if json.Valid([]byte(cleaned)) {
		// A bare JSON string is a double-encoded document.
		if strings.HasPrefix(cleaned, `"`) {
			var inner string
			if err := json.Unmarshal([]byte(cleaned), &inner); err == nil {
				if json.Valid([]byte(inner)) {
					return strings.TrimSpace(inner), nil
				}
			}
		}
		return cleaned, nil
	}

	// Escaped-but-unquoted payloads: unescape and retry.
	unescaped := strings.ReplaceAll(cleaned, `\"`, `"`)
	unescaped = strings.ReplaceAll(unescaped, `\\`, `\`)
	if json.Valid([]byte(unescaped)) {
		return unescaped, nil
	}
	return "", fmt.Errorf("invalid TMSL JSON")
}

// Parse cleans and unmarshals a raw TMSL string into a document.
func Parse(raw string) (map[string]any, error) {
	cleaned, err := Clean(raw)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("invalid TMSL JSON: %w", err)
	}
	return doc, nil
}

// Model locates the model object inside a TMSL document: either at the
// top level or under a createOrReplace.database envelope.
func Model(doc map[string]any) (map[string]any, bool) {
	if model, ok := asMap(doc["model"]); ok {
		return model, true
	}
	if envelope, ok := asMap(doc["createOrReplace"]); ok {
		if database, ok := asMap(envelope["database"]); ok {
			if model, ok := asMap(database["model"]); ok {
				return model, true
			}
		}
	}
	return nil, false
}

// TableScope returns the table object of a single-table
// createOrReplace document.
func TableScope(doc map[string]any) (map[string]any, bool) {
	envelope, ok := asMap(doc["createOrReplace"])
	if !ok {
		return nil, false
	}
	return asMap(envelope["table"])
}

func asMap(value any) (map[string]any, bool) {
	m, ok := value.(map[string]any)
	return m, ok
}

func asSlice(value any) ([]any, bool) {
	s, ok := value.([]any)
	return s, ok
}

// objects returns the array field key of m as object entries, skipping
// non-object members.
func objects(m map[string]any, key string) []map[string]any {
	raw, ok := asSlice(m[key])
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if object, ok := asMap(entry); ok {
			out = append(out, object)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	value, _ := m[key].(string)
	return value
}

// ExpressionString joins the string-or-array form TMSL expressions take.
func ExpressionString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []any:
		parts := make([]string, 0, len(typed))
		for _, part := range typed {
			parts = append(parts, fmt.Sprint(part))
		}
		return strings.Join(parts, " ")
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}
