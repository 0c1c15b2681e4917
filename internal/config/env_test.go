package config

import (
	"testing"

	"scribe-desktop/internal/domain"
)

// TestApplyEnvOverrides verifies SCRIBE_* variables win over file values.
func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SCRIBE_FFMPEG_DIR", " /opt/ffmpeg ")
	t.Setenv("SCRIBE_LOG_LEVEL", "debug")
	t.Setenv("SCRIBE_LOG_FORMAT", "json")
	t.Setenv("SCRIBE_BACKEND", "WhisperCpp")
	t.Setenv("SCRIBE_PYTHON", "uv run python")

	cfg := ApplyEnv(DefaultSettings())

	if cfg.FFmpegDir != "/opt/ffmpeg" {
		t.Fatalf("ffmpeg dir = %q", cfg.FFmpegDir)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("logging overrides failed: %+v", cfg.Log)
	}
	if cfg.Backend != domain.BackendWhisperCpp {
		t.Fatalf("backend = %q", cfg.Backend)
	}
	if cfg.PythonCommand != "uv run python" {
		t.Fatalf("python = %q", cfg.PythonCommand)
	}
}

// TestNormalizeRestoresInvalidSelections checks selector sanitizing.
func TestNormalizeRestoresInvalidSelections(t *testing.T) {
	cfg := DefaultSettings()
	cfg.Model = "huge"
	cfg.Language = "German"
	cfg.Device = "gpu"
	cfg.Backend = "mystery"
	cfg.Threads = 0
	cfg.TickIntervalMS = -1
	cfg.OutputDir = "  /out  "

	got := Normalize(cfg)
	if got.Model != domain.ModelLarge {
		t.Fatalf("model = %q", got.Model)
	}
	if got.Language != domain.LanguageGerman {
		t.Fatalf("language = %q", got.Language)
	}
	if got.Device != domain.DeviceCUDA {
		t.Fatalf("device = %q", got.Device)
	}
	if got.Backend != domain.BackendPython {
		t.Fatalf("backend = %q", got.Backend)
	}
	if got.Threads != 12 || got.TickIntervalMS != 200 {
		t.Fatalf("numeric defaults not restored: %+v", got)
	}
	if got.OutputDir != "/out" {
		t.Fatalf("output dir = %q", got.OutputDir)
	}
}
