package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"fabrik/internal/config/tomlkeys"
	"fabrik/internal/logging"
)

// SyncDefaults adds settings keys introduced by newer releases to the file at
// path, keeping every value the user already set. A missing file is created
// from the embedded defaults. Returns true when the file was written.
func SyncDefaults(path string, logger *logging.Logger) (bool, error) {
	defaultsStore, err := tomlkeys.Decode(defaultsTOML)
	if err != nil {
		return false, fmt.Errorf("parse embedded defaults: %w", err)
	}

	existingPayload, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, err
		}
		payload, err := renderSettingsTOML(defaultsStore.Flat())
		if err != nil {
			return false, err
		}
		if err := writeFileAtomic(path, 0o644, bytes.NewReader(payload)); err != nil {
			return false, err
		}
		if logger != nil {
			logger.Info("settings file created", map[string]string{"path": path})
		}
		return true, nil
	}

	existingStore, err := tomlkeys.Decode(existingPayload)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	merged, missing := mergeSettings(defaultsStore.Flat(), existingStore.Flat())
	if !missing {
		return false, nil
	}
	payload, err := renderSettingsTOML(merged)
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(path, 0o644, bytes.NewReader(payload)); err != nil {
		return false, err
	}
	if logger != nil {
		logger.Info("settings file updated with new defaults", map[string]string{"path": path})
	}
	return true, nil
}

// mergeSettings keeps existing values, fills gaps from defaults, and keeps
// keys the defaults do not know about. missing reports whether any default
// key was absent from existing.
func mergeSettings(defaults, existing map[string]any) (map[string]any, bool) {
	merged := make(map[string]any)
	missing := false
	for key, value := range defaults {
		if existingValue, ok := existing[key]; ok {
			merged[key] = existingValue
			continue
		}
		merged[key] = value
		missing = true
	}
	for key, value := range existing {
		if _, ok := merged[key]; ok {
			continue
		}
		merged[key] = value
	}
	return merged, missing
}

func renderSettingsTOML(values map[string]any) ([]byte, error) {
	sections := make(map[string]map[string]any)
	root := make(map[string]any)
	for key, value := range values {
		parts := strings.SplitN(key, ".", 2)
		if len(parts) == 1 {
			root[parts[0]] = value
			continue
		}
		section := parts[0]
		field := parts[1]
		if _, ok := sections[section]; !ok {
			sections[section] = make(map[string]any)
		}
		sections[section][field] = value
	}

	var out bytes.Buffer
	if err := writeTOMLSection(&out, "", root); err != nil {
		return nil, err
	}

	sectionNames := make([]string, 0, len(sections))
	for section := range sections {
		sectionNames = append(sectionNames, section)
	}
	sort.Strings(sectionNames)
	for _, section := range sectionNames {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("[")
		out.WriteString(section)
		out.WriteString("]\n")
		if err := writeTOMLSection(&out, section, sections[section]); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

func writeTOMLSection(out *bytes.Buffer, prefix string, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, err := formatTOMLValue(values[key])
		if err != nil {
			if prefix == "" {
				return fmt.Errorf("format %s: %w", key, err)
			}
			return fmt.Errorf("format %s.%s: %w", prefix, key, err)
		}
		out.WriteString(key)
		out.WriteString(" = ")
		out.WriteString(value)
		out.WriteString("\n")
	}
	return nil
}

func formatTOMLValue(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return strconv.Quote(typed), nil
	case bool:
		return strconv.FormatBool(typed), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	case int:
		return strconv.FormatInt(int64(typed), 10), nil
	case int32:
		return strconv.FormatInt(int64(typed), 10), nil
	case int16:
		return strconv.FormatInt(int64(typed), 10), nil
	case int8:
		return strconv.FormatInt(int64(typed), 10), nil
	case uint64:
		return strconv.FormatUint(typed, 10), nil
	case uint:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(typed), 10), nil
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(typed), 'g', -1, 32), nil
	case time.Time:
		return typed.Format(time.RFC3339Nano), nil
	case []any:
		return formatTOMLArray(typed)
	default:
		return "", fmt.Errorf("unsupported type %T", value)
	}
}

func formatTOMLArray(values []any) (string, error) {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		formatted, err := formatTOMLValue(value)
		if err != nil {
			return "", err
		}
		parts = append(parts, formatted)
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}
