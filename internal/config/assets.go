package config

import (
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
)

//go:embed assets
var assetsFS embed.FS

const assetsRoot = "assets"
const manifestName = "manifest.json"

var ErrManifestMissing = errors.New("asset manifest not found")

// LoadManifest returns the embedded asset manifest: relative path -> sha256.
func LoadManifest() (map[string]string, error) {
	return loadManifestFrom(assetsFS, assetsRoot+"/"+manifestName)
}

func loadManifestFrom(source fs.FS, path string) (map[string]string, error) {
	payload, err := fs.ReadFile(source, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrManifestMissing
		}
		return nil, err
	}
	manifest := make(map[string]string)
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}
