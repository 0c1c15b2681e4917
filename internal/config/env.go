package config

import (
	"os"
	"strings"

	"scribe-desktop/internal/domain"
)

// ApplyEnv overrides settings from SCRIBE_* environment variables.
func ApplyEnv(cfg domain.Settings) domain.Settings {
	if v, ok := os.LookupEnv("SCRIBE_FFMPEG_DIR"); ok {
		cfg.FFmpegDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("SCRIBE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SCRIBE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SCRIBE_BACKEND"); v != "" {
		cfg.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("SCRIBE_PYTHON"); v != "" {
		cfg.PythonCommand = v
	}
	return cfg
}

// Normalize trims user inputs and restores defaults for invalid selections.
func Normalize(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	cfg.FFmpegDir = strings.TrimSpace(cfg.FFmpegDir)
	cfg.OutputDir = strings.TrimSpace(cfg.OutputDir)
	cfg.ModelDir = strings.TrimSpace(cfg.ModelDir)
	cfg.PythonCommand = strings.TrimSpace(cfg.PythonCommand)
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))

	if size, ok := domain.ParseModelSize(string(cfg.Model)); ok {
		cfg.Model = size
	} else {
		cfg.Model = defaults.Model
	}
	if lang, ok := domain.ParseLanguage(string(cfg.Language)); ok {
		cfg.Language = lang
	} else {
		cfg.Language = domain.LanguageAuto
	}
	if device, ok := domain.ParseDevice(string(cfg.Device)); ok {
		cfg.Device = device
	} else {
		cfg.Device = defaults.Device
	}
	if cfg.Backend != domain.BackendPython && cfg.Backend != domain.BackendWhisperCpp {
		cfg.Backend = defaults.Backend
	}
	if cfg.PythonCommand == "" {
		cfg.PythonCommand = defaults.PythonCommand
	}
	if cfg.Threads <= 0 {
		cfg.Threads = defaults.Threads
	}
	if cfg.ProbeTimeoutSec <= 0 {
		cfg.ProbeTimeoutSec = defaults.ProbeTimeoutSec
	}
	if cfg.TickIntervalMS <= 0 {
		cfg.TickIntervalMS = defaults.TickIntervalMS
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if strings.TrimSpace(cfg.Log.Format) == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if strings.TrimSpace(cfg.Log.Path) == "" {
		cfg.Log.Path = defaults.Log.Path
	}
	return cfg
}
