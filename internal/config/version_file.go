package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"fabrik/internal/version"
)

var ErrVersionFileMissing = errors.New("version file not found")

const majorMismatchMessage = "Breaking changes detected. Back up the config directory and rerun init with --force."
const minorMismatchMessage = "Installed assets may be outdated. Review .new files after init."

func LoadVersionFile(path string) (version.Info, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return version.Info{}, ErrVersionFileMissing
		}
		return version.Info{}, err
	}
	var info version.Info
	if err := json.Unmarshal(payload, &info); err != nil {
		return version.Info{}, err
	}
	return info, nil
}

func WriteVersionFile(path string, info version.Info) error {
	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	payload = append(payload, '\n')
	return os.WriteFile(path, payload, 0o644)
}

func CheckCompatibility(installed, current version.Info) error {
	if installed.Major != current.Major {
		return fmt.Errorf("incompatible major version: %d.%d.%d -> %d.%d.%d. %s",
			installed.Major, installed.Minor, installed.Patch,
			current.Major, current.Minor, current.Patch, majorMismatchMessage)
	}
	if installed.Minor != current.Minor {
		log.Print(minorMismatchMessage)
	}
	return nil
}
