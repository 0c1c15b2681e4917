package domain

import "time"

// DiagnosticStatus indicates whether a single startup check passed.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusWarn DiagnosticStatus = "warn"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one startup check result with optional hint.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DiagnosticReport aggregates startup checks for UI and API responses.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Items       []DiagnosticItem `json:"items"`
}

// ModelOption describes one model size and whether a local whisper.cpp
// model file exists for it.
type ModelOption struct {
	Size        ModelSize `json:"size"`
	Name        string    `json:"name"`
	FileName    string    `json:"fileName"`
	SizeLabel   string    `json:"sizeLabel,omitempty"`
	Description string    `json:"description,omitempty"`
	Available   bool      `json:"available"`
	LocalPath   string    `json:"localPath,omitempty"`
}
