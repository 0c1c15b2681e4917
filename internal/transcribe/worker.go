// Package transcribe runs one speech model invocation in the background and
// reports a single outcome.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"scribe-desktop/internal/command"
	"scribe-desktop/internal/domain"
	"scribe-desktop/internal/logging"
	"scribe-desktop/internal/speech"
)

// Stage names one step of a transcription run.
type Stage string

const (
	StageValidating   Stage = "validating"
	StageLoading      Stage = "loading"
	StageTranscribing Stage = "transcribing"
)

// FallbackNote is reported when an accelerated device was requested but is
// unavailable and the run continues on cpu.
const FallbackNote = "CUDA not available, falling back to cpu"

// Request contains one job and its execution callbacks. Callbacks run on
// the worker goroutine.
type Request struct {
	Job     domain.JobRequest
	OnStage func(stage Stage, device domain.Device)
	OnNote  func(note string)
}

// Outcome is the single terminal result of a run. Err is nil on success.
type Outcome struct {
	Text    string
	Device  domain.Device
	Elapsed time.Duration
	Err     error
}

// WorkerError is a stage-aware error with optional command context.
type WorkerError struct {
	Stage      Stage       `json:"stage"`
	Message    string      `json:"message"`
	CommandLog command.Log `json:"commandLog"`
	Err        error       `json:"-"`
}

// Error formats worker failures for logs and UI.
func (e *WorkerError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *WorkerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Handle tracks one started run.
type Handle struct {
	done chan Outcome
}

// Done delivers exactly one Outcome.
func (h *Handle) Done() <-chan Outcome {
	return h.done
}

// Worker runs speech models off the caller's goroutine.
type Worker struct {
	mu     sync.RWMutex
	loader speech.Loader
	logger logrus.FieldLogger
	stat   func(name string) (os.FileInfo, error)
	now    func() time.Time
}

// NewWorker creates a worker backed by loader.
func NewWorker(loader speech.Loader, logger logrus.FieldLogger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		loader: loader,
		logger: logger,
		stat:   os.Stat,
		now:    time.Now,
	}
}

// SetLoader swaps the backend used by subsequent runs.
func (w *Worker) SetLoader(loader speech.Loader) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loader = loader
}

// Start runs req in a new goroutine. Cancelling ctx aborts the run; the
// Outcome is still delivered.
func (w *Worker) Start(ctx context.Context, req Request) *Handle {
	h := &Handle{done: make(chan Outcome, 1)}
	go func() {
		h.done <- w.Run(ctx, req)
	}()
	return h
}

// Run executes one transcription synchronously.
func (w *Worker) Run(ctx context.Context, req Request) Outcome {
	started := w.now()
	out := w.run(ctx, req)
	out.Elapsed = w.now().Sub(started)

	entry := w.logger.WithFields(logrus.Fields{
		"input":   req.Job.InputPath,
		"model":   req.Job.ModelSize,
		"device":  out.Device,
		"elapsed": out.Elapsed.Round(time.Millisecond).String(),
	})
	if out.Err != nil {
		entry.WithError(out.Err).Warn("transcription failed")
	} else {
		entry.WithField("chars", len(out.Text)).Info("transcription finished")
	}
	return out
}

func (w *Worker) run(ctx context.Context, req Request) Outcome {
	w.mu.RLock()
	loader := w.loader
	w.mu.RUnlock()

	job := req.Job
	emitStage(req.OnStage, StageValidating, job.Device)

	if strings.TrimSpace(job.InputPath) == "" {
		return failure(StageValidating, "input media path is required", nil)
	}
	if _, err := w.stat(job.InputPath); err != nil {
		return failure(StageValidating, fmt.Sprintf("cannot access input media: %s", job.InputPath), err)
	}
	if !job.ModelSize.Valid() {
		err := fmt.Errorf("%w: %q", speech.ErrUnsupportedModel, job.ModelSize)
		return failure(StageValidating, err.Error(), err)
	}
	language, ok := domain.ParseLanguage(string(job.Language))
	if !ok {
		err := fmt.Errorf("%w: %q", speech.ErrUnsupportedLanguage, job.Language)
		return failure(StageValidating, err.Error(), err)
	}
	if loader == nil {
		return failure(StageLoading, "no speech backend configured", speech.ErrBackendUnavailable)
	}

	device := w.resolveDevice(ctx, loader, job.Device, req.OnNote)

	emitStage(req.OnStage, StageLoading, device)
	w.logger.WithFields(logrus.Fields{
		"backend": loader.Name(),
		"model":   job.ModelSize,
		"device":  device,
	}).Debug("loading model")
	model, err := loader.Load(ctx, job.ModelSize, device)
	if err != nil {
		out := failure(StageLoading, fmt.Sprintf("failed to load model %s: %v", job.ModelSize, err), err)
		out.Device = device
		return out
	}
	defer func() {
		if cerr := model.Close(); cerr != nil {
			w.logger.WithError(cerr).Warn("model close failed")
		}
	}()

	emitStage(req.OnStage, StageTranscribing, device)
	text, err := model.Transcribe(ctx, job.InputPath, language, device == domain.DeviceCUDA)
	if err != nil {
		out := failure(StageTranscribing, err.Error(), err)
		var cmdErr *speech.CommandError
		if errors.As(err, &cmdErr) {
			out.Err.(*WorkerError).CommandLog = cmdErr.Log
		}
		out.Device = device
		return out
	}

	return Outcome{Text: strings.TrimSpace(text), Device: device}
}

// resolveDevice substitutes cpu when an accelerator is requested but absent.
func (w *Worker) resolveDevice(ctx context.Context, loader speech.Loader, requested domain.Device, onNote func(string)) domain.Device {
	switch requested {
	case domain.DeviceCPU:
		return domain.DeviceCPU
	case domain.DeviceAuto, "":
		if loader.AcceleratorAvailable(ctx) {
			return domain.DeviceCUDA
		}
		return domain.DeviceCPU
	default:
		if loader.AcceleratorAvailable(ctx) {
			return requested
		}
		w.logger.WithField("requested", requested).Warn("accelerator unavailable, using cpu")
		if onNote != nil {
			onNote(FallbackNote)
		}
		return domain.DeviceCPU
	}
}

func failure(stage Stage, message string, err error) Outcome {
	return Outcome{Err: &WorkerError{Stage: stage, Message: message, Err: err}}
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(Stage, domain.Device), stage Stage, device domain.Device) {
	if cb != nil {
		cb(stage, device)
	}
}

// NewWorkerForTests constructs a worker with injectable dependencies.
func NewWorkerForTests(
	loader speech.Loader,
	stat func(name string) (os.FileInfo, error),
	now func() time.Time,
) *Worker {
	w := NewWorker(loader, logging.Discard())
	if stat != nil {
		w.stat = stat
	}
	if now != nil {
		w.now = now
	}
	return w
}
