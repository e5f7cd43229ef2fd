// Package assets locates on-disk model and phoneme-table assets for the
// local STT/TTS backends. Fetching and SHA-256 pinned-table verification of
// those assets is out of scope for this repo; this package only resolves
// the path a warm-up call should load from and reports ErrModelMissing in
// the shape main expects when it isn't there.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir returns the cache directory for a given asset category (e.g. "tts",
// "stt"), rooted under the user's home directory.
func Dir(category string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "vocalrelay", category), nil
}

// Resolve returns the path to name under category, erroring if the asset
// is not present on disk.
func Resolve(category, name string) (string, error) {
	dir, err := Dir(category)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("asset %q not found under %q: %w", name, dir, err)
	}
	return path, nil
}

// Available reports whether name is present under category, without
// erroring - used for "model missing" feature-detection that shouldn't
// escalate to a hard error until the caller has decided it actually needs
// the asset.
func Available(category, name string) bool {
	_, err := Resolve(category, name)
	return err == nil
}
