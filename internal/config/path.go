package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shepherdwind/bean-talk/internal/common"
)

// ExpandPath resolves $VAR references and a leading "~" in a configured path.
func ExpandPath(path string) string {
	path = os.ExpandEnv(strings.TrimSpace(path))
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// EnsureFileDirs checks that no path names a directory and creates missing
// parent directories.
func EnsureFileDirs(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			return fmt.Errorf("%w: empty file path", common.ErrMissingConfig)
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return fmt.Errorf("%w: %s is a directory", common.ErrInvalidConfig, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	return nil
}
