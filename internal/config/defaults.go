package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "chatproofd"

// DataDir returns the directory holding the journal.
// CHATPROOF_DATA_DIR overrides the platform default.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/chatproofd/
//   - Linux:   $XDG_DATA_HOME/chatproofd/ or ~/.local/share/chatproofd/
//   - Windows: %APPDATA%\chatproofd\
func DataDir() string {
	if v := os.Getenv("CHATPROOF_DATA_DIR"); v != "" {
		return v
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		return filepath.Join(homeDir(), "AppData", "Roaming", appName)
	default:
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
}

// ConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/chatproofd/
//   - Linux:   $XDG_CONFIG_HOME/chatproofd/ or ~/.config/chatproofd/
//   - Windows: %APPDATA%\chatproofd\
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin", "windows":
		return DataDir()
	default:
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
}

// LogDir returns the platform-specific log directory.
func LogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", appName)
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName, "logs")
		}
		return filepath.Join(DataDir(), "logs")
	default:
		return xdgDir("XDG_STATE_HOME", ".local", "state")
	}
}

func xdgDir(env string, fallback ...string) string {
	if v := os.Getenv(env); v != "" {
		return filepath.Join(v, appName)
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, appName)...)
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return home
}
