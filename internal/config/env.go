package config

import (
	"strconv"
	"strings"
)

const envPrefix = "FABRIK_"

// Reserved environment variables that configure the process itself rather
// than a settings key.
var reservedEnv = map[string]struct{}{
	"FABRIK_CONFIG":            {},
	"FABRIK_EVENT_DEBUG":       {},
	"FABRIK_CLIENT_SECRET":     {},
	"FABRIK_BACKUP_ACCESS_KEY": {},
	"FABRIK_BACKUP_SECRET_KEY": {},
}

// EnvOverrides converts FABRIK_* environment entries into a settings
// override map. FABRIK_SERVER_PORT=9000 becomes server.port = 9000. The
// first underscore separates the section, the rest belong to the key.
func EnvOverrides(environ []string) map[string]any {
	overrides := make(map[string]any)
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		if _, reserved := reservedEnv[name]; reserved {
			continue
		}
		trimmed := strings.TrimPrefix(name, envPrefix)
		section, rest, ok := strings.Cut(trimmed, "_")
		if !ok || section == "" || rest == "" {
			continue
		}
		key := strings.ToLower(section) + "." + strings.ToLower(strings.ReplaceAll(rest, "_", "-"))
		overrides[key] = coerceEnvValue(value)
	}
	return overrides
}

func coerceEnvValue(value string) any {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	if parsed, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return parsed
	}
	return trimmed
}
