// Package speech adapts external speech-recognition runtimes to a small
// load/transcribe interface.
package speech

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"scribe-desktop/internal/command"
	"scribe-desktop/internal/domain"
)

var (
	// ErrUnsupportedLanguage is returned for language tags the model cannot use.
	ErrUnsupportedLanguage = errors.New("unsupported language code")
	// ErrUnsupportedModel is returned for unknown model sizes.
	ErrUnsupportedModel = errors.New("unsupported model size")
	// ErrBackendUnavailable is returned when the runtime cannot be started.
	ErrBackendUnavailable = errors.New("speech backend unavailable")
)

// Model is a loaded speech model. Close releases the runtime and is safe
// to call more than once.
type Model interface {
	Transcribe(ctx context.Context, path string, language domain.Language, fp16 bool) (string, error)
	Close() error
}

// Loader loads models for a size and device and reports accelerator support.
type Loader interface {
	Name() string
	AcceleratorAvailable(ctx context.Context) bool
	Load(ctx context.Context, size domain.ModelSize, device domain.Device) (Model, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend       string
	PythonCommand string
	ModelDir      string
	Threads       int
	LookPath      func(string) (string, error)
	Env           func() []string
	Logger        logrus.FieldLogger
}

// NewLoader builds the loader for cfg.Backend.
func NewLoader(cfg Config) (Loader, error) {
	switch cfg.Backend {
	case "", domain.BackendPython:
		return NewPythonLoader(cfg)
	case domain.BackendWhisperCpp:
		return newCppLoader(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrBackendUnavailable, cfg.Backend)
	}
}

// CommandError carries the external command log of a failed step.
type CommandError struct {
	Message string
	Log     command.Log
	Err     error
}

// Error implements error.
func (e *CommandError) Error() string {
	if e.Log.Command == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (cmd=%s exit=%d)", e.Message, e.Log.Command, e.Log.ExitCode)
}

// Unwrap exposes the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}
