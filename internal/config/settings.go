package config

import (
	"os"
	"path/filepath"
	"strings"

	"fabrik/internal/config/tomlkeys"
)

// Source records where the effective value of a key came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
)

type Settings struct {
	Server   ServerSettings
	Fabric   FabricSettings
	Temporal TemporalSettings
	Runs     RunSettings
	Backup   BackupSettings
	Pipeline PipelineSettings
	BPA      BPASettings

	Sources map[string]Source
}

type ServerSettings struct {
	Bind      string
	Port      int64
	AuthToken string
	LogLevel  string
	LogBuffer int64
}

type FabricSettings struct {
	APIBase         string
	PowerBIBase     string
	TenantID        string
	ClientID        string
	ClientSecretEnv string
	TokenEnv        string
	RateLimitRPS    int64
	RateBurst       int64
	TimeoutSeconds  int64
}

type TemporalSettings struct {
	Enabled        bool
	Host           string
	Namespace      string
	TaskQueue      string
	StartDevServer bool
}

type RunSettings struct {
	Engine                string
	MaxParallel           int64
	DefaultTimeoutMinutes int64
	DataDir               string
}

type BackupSettings struct {
	Dir              string
	RetentionDays    int64
	CompressionLevel int64
	Bucket           string
	Endpoint         string
	Prefix           string
	UseSSL           bool
	AccessKeyEnv     string
	SecretKeyEnv     string
}

type PipelineSettings struct {
	Dir   string
	Watch bool
}

type BPASettings struct {
	RulesPath   string
	MinSeverity string
}

// LoadSettings layers the embedded defaults, the optional settings file, and
// explicit overrides (normally from the environment, see EnvOverrides).
func LoadSettings(path string, overrides map[string]any) (Settings, error) {
	defaultsStore, err := tomlkeys.Decode(defaultsTOML)
	if err != nil {
		return Settings{}, err
	}
	defaults := defaultsStore.Flat()
	values := defaultsStore.Flat()
	sources := make(map[string]Source, len(values))
	for key := range values {
		sources[key] = SourceDefault
	}

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, err
			}
		} else {
			store, err := tomlkeys.Decode(payload)
			if err != nil {
				return Settings{}, err
			}
			for key, value := range store.Flat() {
				values[key] = value
				sources[key] = SourceFile
			}
		}
	}

	for key, value := range overrides {
		normalized := tomlkeys.NormalizeKey(key)
		if normalized == "" {
			continue
		}
		values[normalized] = value
		sources[normalized] = SourceEnv
	}

	settings := Settings{Sources: sources}

	settings.Server.Bind = stringSetting(values, "server.bind", "127.0.0.1")
	settings.Server.Port = intSetting(values, "server.port", 8766)
	settings.Server.AuthToken = stringSetting(values, "server.auth-token", "")
	settings.Server.LogLevel = stringSetting(values, "server.log-level", "info")
	settings.Server.LogBuffer = intSetting(values, "server.log-buffer", 1000)

	settings.Fabric.APIBase = stringSetting(values, "fabric.api-base", "")
	settings.Fabric.PowerBIBase = stringSetting(values, "fabric.powerbi-base", "")
	settings.Fabric.TenantID = stringSetting(values, "fabric.tenant-id", "")
	settings.Fabric.ClientID = stringSetting(values, "fabric.client-id", "")
	settings.Fabric.ClientSecretEnv = stringSetting(values, "fabric.client-secret-env", "FABRIK_CLIENT_SECRET")
	settings.Fabric.TokenEnv = stringSetting(values, "fabric.token-env", "FABRIC_TOKEN")
	settings.Fabric.RateLimitRPS = intSetting(values, "fabric.rate-limit-rps", 8)
	settings.Fabric.RateBurst = intSetting(values, "fabric.rate-burst", 16)
	settings.Fabric.TimeoutSeconds = intSetting(values, "fabric.timeout-seconds", 30)

	settings.Temporal.Enabled = boolSetting(values, "temporal.enabled", false)
	settings.Temporal.Host = stringSetting(values, "temporal.host", "127.0.0.1:7233")
	settings.Temporal.Namespace = stringSetting(values, "temporal.namespace", "default")
	settings.Temporal.TaskQueue = stringSetting(values, "temporal.task-queue", "fabrik-pipeline-runs")
	settings.Temporal.StartDevServer = boolSetting(values, "temporal.start-dev-server", false)

	settings.Runs.Engine = stringSetting(values, "runs.engine", "local")
	settings.Runs.MaxParallel = intSetting(values, "runs.max-parallel", 4)
	settings.Runs.DefaultTimeoutMinutes = intSetting(values, "runs.default-timeout-minutes", 60)
	settings.Runs.DataDir = stringSetting(values, "runs.data-dir", ".fabrik")

	settings.Backup.Dir = stringSetting(values, "backup.dir", "")
	settings.Backup.RetentionDays = intSetting(values, "backup.retention-days", 30)
	settings.Backup.CompressionLevel = intSetting(values, "backup.compression-level", 3)
	settings.Backup.Bucket = stringSetting(values, "backup.bucket", "")
	settings.Backup.Endpoint = stringSetting(values, "backup.endpoint", "")
	settings.Backup.Prefix = stringSetting(values, "backup.prefix", "fabrik-backups")
	settings.Backup.UseSSL = boolSetting(values, "backup.use-ssl", true)
	settings.Backup.AccessKeyEnv = stringSetting(values, "backup.access-key-env", "FABRIK_BACKUP_ACCESS_KEY")
	settings.Backup.SecretKeyEnv = stringSetting(values, "backup.secret-key-env", "FABRIK_BACKUP_SECRET_KEY")

	settings.Pipeline.Dir = stringSetting(values, "pipelines.dir", "pipelines")
	settings.Pipeline.Watch = boolSetting(values, "pipelines.watch", true)

	settings.BPA.RulesPath = stringSetting(values, "bpa.rules-path", "")
	settings.BPA.MinSeverity = stringSetting(values, "bpa.min-severity", "INFO")

	return normalizeSettings(settings, defaults), nil
}

func normalizeSettings(settings Settings, defaults map[string]any) Settings {
	if settings.Server.Port <= 0 || settings.Server.Port > 65535 {
		settings.Server.Port = intSetting(defaults, "server.port", 8766)
	}
	if settings.Server.LogBuffer <= 0 {
		settings.Server.LogBuffer = intSetting(defaults, "server.log-buffer", 1000)
	}
	if settings.Fabric.RateLimitRPS <= 0 {
		settings.Fabric.RateLimitRPS = intSetting(defaults, "fabric.rate-limit-rps", 8)
	}
	if settings.Fabric.RateBurst < settings.Fabric.RateLimitRPS {
		settings.Fabric.RateBurst = settings.Fabric.RateLimitRPS
	}
	if settings.Fabric.TimeoutSeconds <= 0 {
		settings.Fabric.TimeoutSeconds = intSetting(defaults, "fabric.timeout-seconds", 30)
	}
	if settings.Runs.MaxParallel <= 0 {
		settings.Runs.MaxParallel = 1
	}
	if settings.Runs.MaxParallel > 64 {
		settings.Runs.MaxParallel = 64
	}
	if settings.Runs.DefaultTimeoutMinutes <= 0 {
		settings.Runs.DefaultTimeoutMinutes = intSetting(defaults, "runs.default-timeout-minutes", 60)
	}
	switch settings.Runs.Engine {
	case "local", "temporal":
	default:
		settings.Runs.Engine = "local"
	}
	if settings.Backup.RetentionDays < 0 {
		settings.Backup.RetentionDays = 0
	}
	if settings.Backup.CompressionLevel < 1 || settings.Backup.CompressionLevel > 19 {
		settings.Backup.CompressionLevel = intSetting(defaults, "backup.compression-level", 3)
	}
	if strings.TrimSpace(settings.Backup.Dir) == "" {
		settings.Backup.Dir = filepath.Join(settings.Runs.DataDir, "backups")
	}
	return settings
}

func intSetting(values map[string]any, key string, fallback int64) int64 {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := asInt64(value); ok {
		return parsed
	}
	return fallback
}

func stringSetting(values map[string]any, key string, fallback string) string {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(string); ok {
		return strings.TrimSpace(parsed)
	}
	return fallback
}

func boolSetting(values map[string]any, key string, fallback bool) bool {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(bool); ok {
		return parsed
	}
	return fallback
}

func asInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int16:
		return int64(typed), true
	case int8:
		return int64(typed), true
	case uint64:
		return int64(typed), true
	case uint:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	case uint16:
		return int64(typed), true
	case uint8:
		return int64(typed), true
	case float64:
		if typed == float64(int64(typed)) {
			return int64(typed), true
		}
	case float32:
		if typed == float32(int64(typed)) {
			return int64(typed), true
		}
	}
	return 0, false
}
