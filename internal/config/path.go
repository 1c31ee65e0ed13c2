package config

import (
	"os"
	"path/filepath"
	goruntime "runtime"
)

// fallbackDataDir is used when no home directory can be determined.
const fallbackDataDir = "./seglog-data"

// DefaultDataDir returns the data directory used when Config.DataDir is empty:
// $XDG_DATA_HOME/seglog when set, /var/lib/seglog for root on Linux, the
// platform's per-user application data directory otherwise.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "seglog")
	}
	return platformDataDir(goruntime.GOOS, os.Geteuid())
}

func platformDataDir(goos string, euid int) string {
	if goos == "linux" && euid == 0 && isDir("/var/lib") {
		return "/var/lib/seglog"
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return fallbackDataDir
	}
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Seglog")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "Seglog")
		}
		return filepath.Join(home, "AppData", "Local", "Seglog")
	default:
		return filepath.Join(home, ".local", "share", "seglog")
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
