package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDir = "remq"

// DefaultDataDir picks where the pebble store lives when no data_dir is set.
// REMQ_DATA_DIR wins, then XDG_DATA_HOME, then the platform convention under
// the user's home. Without a home directory it is ./data.
func DefaultDataDir() string {
	if dir := os.Getenv("REMQ_DATA_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	for _, dir := range platformDirs(home) {
		if isDir(filepath.Dir(dir)) {
			return dir
		}
	}
	return filepath.Join(home, "."+appDir)
}

// platformDirs lists candidate data dirs in preference order. A candidate is
// used when its parent exists.
func platformDirs(home string) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", appDir)}
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return []string{filepath.Join(local, appDir)}
		}
		return []string{filepath.Join(home, "AppData", "Local", appDir)}
	default:
		return []string{filepath.Join(home, ".local", "share", appDir)}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
