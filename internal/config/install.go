package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"fabrik/internal/logging"
	"fabrik/internal/version"
)

const baselineName = ".fabrik-baseline.json"
const versionFileName = ".fabrik-version.json"

var ErrBaselineMissing = errors.New("baseline manifest not found")

// AssetAction is the outcome chosen for a single asset during install.
type AssetAction int

const (
	AssetInstall AssetAction = iota
	AssetKeep
	AssetSkip
	AssetConflict
)

type AssetDecisionInput struct {
	DestExists  bool
	HasBaseline bool
	LocalHash   string
	OldHash     string
	NewHash     string
}

// DecideAsset picks what to do with a previously installed asset. Locally
// modified files are never overwritten; a conflicting upstream change lands
// next to the file with a .new suffix instead.
func DecideAsset(input AssetDecisionInput) AssetAction {
	if !input.DestExists {
		return AssetInstall
	}
	if !input.HasBaseline {
		return AssetKeep
	}
	if input.LocalHash == input.NewHash {
		return AssetSkip
	}
	if input.LocalHash == input.OldHash {
		return AssetInstall
	}
	if input.NewHash == input.OldHash {
		return AssetKeep
	}
	return AssetConflict
}

type InstallResult struct {
	Installed []string
	Kept      []string
	Skipped   []string
	Conflicts []string
}

type Installer struct {
	Logger *logging.Logger
}

// Install writes the embedded assets into destDir, honoring local edits via
// the baseline manifest, then records the new baseline and tool version.
func (i *Installer) Install(destDir string) (InstallResult, error) {
	result := InstallResult{}

	manifest, err := LoadManifest()
	if err != nil {
		return result, err
	}

	if err := i.checkInstalledVersion(destDir); err != nil {
		return result, err
	}

	baseline, err := loadBaseline(destDir)
	hasBaseline := err == nil
	if err != nil && !errors.Is(err, ErrBaselineMissing) {
		return result, err
	}

	paths := make([]string, 0, len(manifest))
	for relPath := range manifest {
		paths = append(paths, relPath)
	}
	sort.Strings(paths)

	for _, relPath := range paths {
		newHash := manifest[relPath]
		destPath := filepath.Join(destDir, filepath.FromSlash(relPath))

		input := AssetDecisionInput{HasBaseline: hasBaseline, NewHash: newHash, OldHash: baseline[relPath]}
		if info, statErr := os.Stat(destPath); statErr == nil {
			if info.IsDir() {
				return result, fmt.Errorf("destination is a directory: %s", destPath)
			}
			input.DestExists = true
			input.LocalHash, err = hashFile(destPath)
			if err != nil {
				return result, fmt.Errorf("hash existing file: %w", err)
			}
		} else if !os.IsNotExist(statErr) {
			return result, fmt.Errorf("stat destination: %w", statErr)
		}

		switch DecideAsset(input) {
		case AssetSkip:
			result.Skipped = append(result.Skipped, relPath)
			i.logDebug("asset up-to-date", map[string]string{"path": destPath})
		case AssetKeep:
			result.Kept = append(result.Kept, relPath)
			i.logWarn("keeping locally modified asset", map[string]string{"path": destPath})
		case AssetConflict:
			if err := i.writeAsset(relPath, destPath+".new"); err != nil {
				return result, err
			}
			result.Conflicts = append(result.Conflicts, relPath)
			i.logWarn("asset changed locally and upstream, wrote .new", map[string]string{"path": destPath})
		case AssetInstall:
			if err := i.writeAsset(relPath, destPath); err != nil {
				return result, err
			}
			result.Installed = append(result.Installed, relPath)
			i.logInfo("asset installed", map[string]string{"path": destPath})
		}
	}

	if err := writeBaseline(destDir, manifest); err != nil {
		return result, err
	}
	if err := WriteVersionFile(filepath.Join(destDir, versionFileName), version.Get()); err != nil {
		return result, err
	}
	return result, nil
}

func (i *Installer) checkInstalledVersion(destDir string) error {
	installed, err := LoadVersionFile(filepath.Join(destDir, versionFileName))
	if err != nil {
		if errors.Is(err, ErrVersionFileMissing) {
			return nil
		}
		return err
	}
	return CheckCompatibility(installed, version.Get())
}

func (i *Installer) writeAsset(relPath, destPath string) error {
	sourcePath := path.Join(assetsRoot, relPath)
	sourceInfo, err := fs.Stat(assetsFS, sourcePath)
	if err != nil {
		return fmt.Errorf("stat source asset: %w", err)
	}
	if sourceInfo.IsDir() {
		return fmt.Errorf("source asset is a directory: %s", sourcePath)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	source, err := assetsFS.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open source asset: %w", err)
	}
	defer source.Close()

	if err := writeFileAtomic(destPath, 0o644, source); err != nil {
		return fmt.Errorf("write asset: %w", err)
	}
	return nil
}

func loadBaseline(destDir string) (map[string]string, error) {
	payload, err := os.ReadFile(filepath.Join(destDir, baselineName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBaselineMissing
		}
		return nil, err
	}
	baseline := make(map[string]string)
	if err := json.Unmarshal(payload, &baseline); err != nil {
		return nil, err
	}
	return baseline, nil
}

func writeBaseline(destDir string, baseline map[string]string) error {
	if baseline == nil {
		baseline = map[string]string{}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	payload, err := json.Marshal(baseline)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	return os.WriteFile(filepath.Join(destDir, baselineName), payload, 0o644)
}

func writeFileAtomic(destPath string, mode fs.FileMode, reader io.Reader) error {
	dir := filepath.Dir(destPath)
	tempFile, err := os.CreateTemp(dir, ".fabrik-asset-*")
	if err != nil {
		return err
	}
	defer func() {
		tempFile.Close()
		os.Remove(tempFile.Name())
	}()

	if _, err := io.Copy(tempFile, reader); err != nil {
		return err
	}
	if err := tempFile.Sync(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tempFile.Name(), destPath); err != nil {
		return err
	}
	return os.Chmod(destPath, mode)
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (i *Installer) logDebug(message string, fields map[string]string) {
	if i == nil || i.Logger == nil {
		return
	}
	i.Logger.Debug(message, fields)
}

func (i *Installer) logInfo(message string, fields map[string]string) {
	if i == nil || i.Logger == nil {
		return
	}
	i.Logger.Info(message, fields)
}

func (i *Installer) logWarn(message string, fields map[string]string) {
	if i == nil || i.Logger == nil {
		return
	}
	i.Logger.Warn(message, fields)
}
