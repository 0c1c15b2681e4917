package config

import (
	"os"
	"path/filepath"

	"scribe-desktop/internal/domain"
)

// AppDirName is the per-user state directory below the home directory.
const AppDirName = ".scribe-desktop"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	stateDir := filepath.Join(homeDir, AppDirName)

	return domain.Settings{
		FFmpegDir:       "",
		OutputDir:       "",
		Model:           domain.ModelLarge,
		Language:        domain.LanguageAuto,
		Device:          domain.DeviceCUDA,
		Backend:         domain.BackendPython,
		PythonCommand:   "python3",
		ModelDir:        filepath.Join(stateDir, "models"),
		Threads:         12,
		ProbeTimeoutSec: 5,
		TickIntervalMS:  200,
		Log: domain.LogSettings{
			Level:  "info",
			Format: "text",
			Path:   filepath.Join(stateDir, "scribe.log"),
			Stdout: false,
		},
	}
}

// SettingsPath returns the default settings file location.
func SettingsPath(homeDir string) string {
	return filepath.Join(homeDir, AppDirName, "settings.toml")
}

// LocalBinDir is searched for tools before PATH.
func LocalBinDir(homeDir string) string {
	return filepath.Join(homeDir, AppDirName, "bin")
}
