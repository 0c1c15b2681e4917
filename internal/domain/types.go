// Package domain holds the types shared across the application.
package domain

import "time"

// JobStatus tracks the lifecycle of a single transcription run.
type JobStatus string

const (
	JobStatusIdle    JobStatus = "idle"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// JobRequest is one user-configured transcription task. It is not
// modified once a run has started.
type JobRequest struct {
	InputPath  string    `json:"inputPath"`
	ModelSize  ModelSize `json:"modelSize"`
	Language   Language  `json:"language"`
	Device     Device    `json:"device"`
	OutputPath string    `json:"outputPath,omitempty"`
}

// Job stores the current run identity, request and lifecycle status.
type Job struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Request    JobRequest `json:"request"`
	StartedAt  time.Time  `json:"startedAt,omitempty"`
	FinishedAt time.Time  `json:"finishedAt,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	FFmpegDir       string      `toml:"ffmpeg_dir" json:"ffmpegDir"`
	OutputDir       string      `toml:"output_dir" json:"outputDir"`
	Model           ModelSize   `toml:"model" json:"model"`
	Language        Language    `toml:"language" json:"language"`
	Device          Device      `toml:"device" json:"device"`
	Backend         string      `toml:"backend" json:"backend"`
	PythonCommand   string      `toml:"python_command" json:"pythonCommand"`
	ModelDir        string      `toml:"model_dir" json:"modelDir"`
	Threads         int         `toml:"threads" json:"threads"`
	ProbeTimeoutSec float64     `toml:"probe_timeout_sec" json:"probeTimeoutSec"`
	TickIntervalMS  int         `toml:"tick_interval_ms" json:"tickIntervalMs"`
	Log             LogSettings `toml:"log" json:"log"`
}

// LogSettings configures the application log sink.
type LogSettings struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	Path   string `toml:"path" json:"path"`
	Stdout bool   `toml:"stdout" json:"stdout"`
}

const (
	BackendPython     = "python"
	BackendWhisperCpp = "whispercpp"
)
