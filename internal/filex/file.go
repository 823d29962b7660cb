// Package filex manages the daemon's on-disk data directory.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDataDir is where the sqlite database lives unless the DSN points
// elsewhere.
const DefaultDataDir = "driftguard"

// EnsureDataDir creates name under the working directory and returns its
// absolute path. An empty name means DefaultDataDir. Creating an already
// existing directory is a no-op; a regular file in the way is an error.
func EnsureDataDir(name string) (string, error) {
	if name == "" {
		name = DefaultDataDir
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	dir := filepath.Join(cwd, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("data dir %s: %w", dir, err)
	}
	return dir, nil
}
