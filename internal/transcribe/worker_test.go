package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"scribe-desktop/internal/command"
	"scribe-desktop/internal/domain"
	"scribe-desktop/internal/speech"
)

// fakeLoader records load calls and hands out fakeModels.
type fakeLoader struct {
	mu          sync.Mutex
	accelerator bool
	loadErr     error
	text        string
	transErr    error
	loads       []domain.Device
	models      []*fakeModel
}

func (f *fakeLoader) Name() string { return "fake" }

func (f *fakeLoader) AcceleratorAvailable(context.Context) bool { return f.accelerator }

func (f *fakeLoader) Load(ctx context.Context, size domain.ModelSize, device domain.Device) (speech.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, device)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	m := &fakeModel{text: f.text, err: f.transErr}
	f.models = append(f.models, m)
	return m, nil
}

type fakeModel struct {
	text     string
	err      error
	fp16     bool
	language domain.Language
	closed   int
}

func (m *fakeModel) Transcribe(ctx context.Context, path string, language domain.Language, fp16 bool) (string, error) {
	m.fp16 = fp16
	m.language = language
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *fakeModel) Close() error {
	m.closed++
	return nil
}

func inputFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.mp4")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func job(path string, device domain.Device) domain.JobRequest {
	return domain.JobRequest{
		InputPath: path,
		ModelSize: domain.ModelBase,
		Language:  domain.LanguageAuto,
		Device:    device,
	}
}

// TestWorkerRunSuccessOnCUDA checks the happy path with fp16 enabled.
func TestWorkerRunSuccessOnCUDA(t *testing.T) {
	loader := &fakeLoader{accelerator: true, text: "  hello world \n"}
	w := NewWorkerForTests(loader, nil, nil)

	var stages []Stage
	out := w.Run(context.Background(), Request{
		Job:     job(inputFile(t), domain.DeviceCUDA),
		OnStage: func(s Stage, _ domain.Device) { stages = append(stages, s) },
	})
	if out.Err != nil {
		t.Fatalf("Run() error = %v", out.Err)
	}
	if out.Text != "hello world" {
		t.Fatalf("text = %q", out.Text)
	}
	if out.Device != domain.DeviceCUDA {
		t.Fatalf("device = %q", out.Device)
	}
	if !loader.models[0].fp16 {
		t.Fatalf("fp16 should be enabled on cuda")
	}
	if loader.models[0].closed != 1 {
		t.Fatalf("model closed %d times, want 1", loader.models[0].closed)
	}
	want := []Stage{StageValidating, StageLoading, StageTranscribing}
	if strings.Join(stageStrings(stages), ",") != strings.Join(stageStrings(want), ",") {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
}

// TestWorkerFallsBackToCPU reports a note and disables fp16.
func TestWorkerFallsBackToCPU(t *testing.T) {
	loader := &fakeLoader{accelerator: false, text: "bonjour"}
	w := NewWorkerForTests(loader, nil, nil)

	var notes []string
	out := w.Run(context.Background(), Request{
		Job:    job(inputFile(t), domain.DeviceCUDA),
		OnNote: func(n string) { notes = append(notes, n) },
	})
	if out.Err != nil {
		t.Fatalf("Run() error = %v", out.Err)
	}
	if out.Device != domain.DeviceCPU || loader.loads[0] != domain.DeviceCPU {
		t.Fatalf("device = %q, loads = %v", out.Device, loader.loads)
	}
	if len(notes) != 1 || notes[0] != FallbackNote {
		t.Fatalf("notes = %v", notes)
	}
	if loader.models[0].fp16 {
		t.Fatalf("fp16 must be off on cpu")
	}
}

// TestWorkerAutoDeviceIsSilent picks a device without emitting a note.
func TestWorkerAutoDeviceIsSilent(t *testing.T) {
	for _, accel := range []bool{true, false} {
		loader := &fakeLoader{accelerator: accel, text: "x"}
		w := NewWorkerForTests(loader, nil, nil)
		notes := 0
		out := w.Run(context.Background(), Request{
			Job:    job(inputFile(t), domain.DeviceAuto),
			OnNote: func(string) { notes++ },
		})
		want := domain.DeviceCPU
		if accel {
			want = domain.DeviceCUDA
		}
		if out.Device != want || notes != 0 {
			t.Fatalf("accel=%v: device = %q notes = %d", accel, out.Device, notes)
		}
	}
}

// TestWorkerValidationFailures never loads a model.
func TestWorkerValidationFailures(t *testing.T) {
	path := inputFile(t)
	cases := []struct {
		name   string
		mutate func(*domain.JobRequest)
		target error
	}{
		{name: "missing input", mutate: func(j *domain.JobRequest) { j.InputPath = filepath.Join(t.TempDir(), "nope.mp4") }, target: os.ErrNotExist},
		{name: "bad model", mutate: func(j *domain.JobRequest) { j.ModelSize = "huge" }, target: speech.ErrUnsupportedModel},
		{name: "bad language", mutate: func(j *domain.JobRequest) { j.Language = "xx" }, target: speech.ErrUnsupportedLanguage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loader := &fakeLoader{}
			w := NewWorkerForTests(loader, nil, nil)
			j := job(path, domain.DeviceCPU)
			tc.mutate(&j)

			out := w.Run(context.Background(), Request{Job: j})
			if !errors.Is(out.Err, tc.target) {
				t.Fatalf("err = %v, want %v", out.Err, tc.target)
			}
			var werr *WorkerError
			if !errors.As(out.Err, &werr) || werr.Stage != StageValidating {
				t.Fatalf("expected validating WorkerError, got %v", out.Err)
			}
			if len(loader.loads) != 0 {
				t.Fatalf("model must not be loaded")
			}
		})
	}
}

// TestWorkerTranscribeFailureClosesModel ensures the model is released on error.
func TestWorkerTranscribeFailureClosesModel(t *testing.T) {
	loader := &fakeLoader{transErr: errors.New("CUDA out of memory")}
	w := NewWorkerForTests(loader, nil, nil)

	out := w.Run(context.Background(), Request{Job: job(inputFile(t), domain.DeviceCPU)})
	var werr *WorkerError
	if !errors.As(out.Err, &werr) || werr.Stage != StageTranscribing {
		t.Fatalf("expected transcribing WorkerError, got %v", out.Err)
	}
	if werr.Message != "CUDA out of memory" {
		t.Fatalf("message = %q", werr.Message)
	}
	if loader.models[0].closed != 1 {
		t.Fatalf("model closed %d times, want 1", loader.models[0].closed)
	}
}

// TestWorkerCarriesCommandLog surfaces preprocessing command output.
func TestWorkerCarriesCommandLog(t *testing.T) {
	log := command.Log{Command: "ffmpeg", ExitCode: 1, Stderr: "Invalid data"}
	loader := &fakeLoader{transErr: &speech.CommandError{Message: "ffmpeg audio conversion failed", Log: log, Err: errors.New("exit status 1")}}
	w := NewWorkerForTests(loader, nil, nil)

	out := w.Run(context.Background(), Request{Job: job(inputFile(t), domain.DeviceCPU)})
	var werr *WorkerError
	if !errors.As(out.Err, &werr) {
		t.Fatalf("expected WorkerError, got %v", out.Err)
	}
	if werr.CommandLog.Command != "ffmpeg" || werr.CommandLog.Stderr != "Invalid data" {
		t.Fatalf("command log = %+v", werr.CommandLog)
	}
	if !strings.Contains(werr.Error(), "cmd=ffmpeg exit=1") {
		t.Fatalf("Error() = %q", werr.Error())
	}
}

// TestWorkerLoadFailure reports the loading stage.
func TestWorkerLoadFailure(t *testing.T) {
	loader := &fakeLoader{loadErr: speech.ErrBackendUnavailable}
	w := NewWorkerForTests(loader, nil, nil)

	out := w.Run(context.Background(), Request{Job: job(inputFile(t), domain.DeviceCPU)})
	var werr *WorkerError
	if !errors.As(out.Err, &werr) || werr.Stage != StageLoading {
		t.Fatalf("expected loading WorkerError, got %v", out.Err)
	}
	if !errors.Is(out.Err, speech.ErrBackendUnavailable) {
		t.Fatalf("expected wrapped ErrBackendUnavailable, got %v", out.Err)
	}
}

// TestWorkerStartDeliversExactlyOnce reads the single outcome from the handle.
func TestWorkerStartDeliversExactlyOnce(t *testing.T) {
	loader := &fakeLoader{text: "done"}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	now := func() time.Time {
		calls++
		return start.Add(time.Duration(calls) * time.Second)
	}
	w := NewWorkerForTests(loader, nil, now)

	h := w.Start(context.Background(), Request{Job: job(inputFile(t), domain.DeviceCPU)})
	select {
	case out := <-h.Done():
		if out.Err != nil || out.Text != "done" {
			t.Fatalf("outcome = %+v", out)
		}
		if out.Elapsed != time.Second {
			t.Fatalf("elapsed = %v", out.Elapsed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}

	select {
	case out := <-h.Done():
		t.Fatalf("unexpected second outcome %+v", out)
	case <-time.After(50 * time.Millisecond):
	}
}

// blockingLoader waits in Load until the run is cancelled.
type blockingLoader struct {
	fakeLoader
	entered chan struct{}
}

func (b *blockingLoader) Load(ctx context.Context, size domain.ModelSize, device domain.Device) (speech.Model, error) {
	close(b.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

// TestWorkerStartCancelledContext still delivers a loading failure.
func TestWorkerStartCancelledContext(t *testing.T) {
	loader := &blockingLoader{entered: make(chan struct{})}
	w := NewWorkerForTests(loader, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	h := w.Start(ctx, Request{Job: job(inputFile(t), domain.DeviceCPU)})
	<-loader.entered
	cancel()

	select {
	case out := <-h.Done():
		var werr *WorkerError
		if !errors.As(out.Err, &werr) || werr.Stage != StageLoading {
			t.Fatalf("outcome = %+v, want loading failure", out)
		}
		if !errors.Is(out.Err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", out.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}
}

// TestWorkerLogsBackendName records which backend loaded the model.
func TestWorkerLogsBackendName(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	w := NewWorker(&fakeLoader{text: "ok"}, logger)

	if out := w.Run(context.Background(), Request{Job: job(inputFile(t), domain.DeviceCPU)}); out.Err != nil {
		t.Fatalf("run: %v", out.Err)
	}
	for _, entry := range hook.AllEntries() {
		if entry.Message == "loading model" {
			if entry.Data["backend"] != "fake" || entry.Data["device"] != domain.DeviceCPU {
				t.Fatalf("fields = %v", entry.Data)
			}
			return
		}
	}
	t.Fatal("loading model entry missing")
}

func stageStrings(stages []Stage) []string {
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		out = append(out, string(s))
	}
	return out
}
