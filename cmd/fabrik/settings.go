package main

import (
	"net/http"
	"os"
	"time"

	"fabrik/internal/config"
	"fabrik/internal/fabric"
	"fabrik/internal/logging"
)

const defaultConfigFile = "fabrik.toml"

// loadSettings resolves the effective configuration: embedded defaults,
// then the settings file (FABRIK_CONFIG or ./fabrik.toml), then FABRIK_*
// environment overrides.
func loadSettings() (config.Settings, error) {
	path := os.Getenv("FABRIK_CONFIG")
	if path == "" {
		path = defaultConfigFile
	}
	return config.LoadSettings(path, config.EnvOverrides(os.Environ()))
}

// newFabricClient builds a Fabric REST client from the settings, or
// returns nil when no credentials are configured.
func newFabricClient(settings config.FabricSettings, logger *logging.Logger) (*fabric.Client, error) {
	auth := fabric.AuthConfig{
		Token:        os.Getenv(settings.TokenEnv),
		TenantID:     settings.TenantID,
		ClientID:     settings.ClientID,
		ClientSecret: os.Getenv(settings.ClientSecretEnv),
	}
	if auth.Token == "" && auth.TenantID == "" && auth.ClientID == "" {
		return nil, nil
	}
	return fabric.NewClient(fabric.Config{
		Auth:              auth,
		FabricBaseURL:     settings.APIBase,
		PowerBIBaseURL:    settings.PowerBIBase,
		RequestsPerSecond: float64(settings.RateLimitRPS),
		HTTPClient:        &http.Client{Timeout: time.Duration(settings.TimeoutSeconds) * time.Second},
		Logger:            logger,
	})
}

// quietLogger keeps command output clean: warnings and errors only,
// written to the in-memory buffer rather than stdout.
func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.NewBuffer(64), logging.LevelWarning)
}
