package speech

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "embed" // helper script

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"

	"scribe-desktop/internal/domain"
)

//go:embed assets/whisper_helper.py
var helperScript []byte

const (
	deviceProbeTimeout = 90 * time.Second
	closeGrace         = 5 * time.Second
	maxResponseBytes   = 64 << 20
	stderrTailBytes    = 8 << 10
)

type helperRequest struct {
	AudioFile string `json:"audio_file"`
	Language  string `json:"language,omitempty"`
	FP16      bool   `json:"fp16"`
}

type helperResponse struct {
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PythonLoader runs models through an embedded openai-whisper helper script.
type PythonLoader struct {
	command  []string
	threads  int
	lookPath func(string) (string, error)
	env      func() []string
	logger   logrus.FieldLogger

	mu    sync.Mutex
	accel *bool
}

// NewPythonLoader parses cfg.PythonCommand with shell quoting rules.
func NewPythonLoader(cfg Config) (*PythonLoader, error) {
	parts, err := shlex.Split(cfg.PythonCommand)
	if err != nil {
		return nil, fmt.Errorf("parse python command: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: python command is empty", ErrBackendUnavailable)
	}
	l := &PythonLoader{
		command:  parts,
		threads:  cfg.Threads,
		lookPath: cfg.LookPath,
		env:      cfg.Env,
		logger:   cfg.Logger,
	}
	if l.lookPath == nil {
		l.lookPath = exec.LookPath
	}
	if l.env == nil {
		l.env = os.Environ
	}
	if l.logger == nil {
		l.logger = logrus.StandardLogger()
	}
	return l, nil
}

// Name implements Loader.
func (l *PythonLoader) Name() string {
	return domain.BackendPython
}

// AcceleratorAvailable asks the helper whether torch sees a CUDA device.
// A successful answer is cached for the loader's lifetime.
func (l *PythonLoader) AcceleratorAvailable(ctx context.Context) bool {
	l.mu.Lock()
	if l.accel != nil {
		v := *l.accel
		l.mu.Unlock()
		return v
	}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, deviceProbeTimeout)
	defer cancel()

	cmd, cleanup, err := l.helperCommand(ctx, "--probe-device")
	if err != nil {
		l.logger.WithError(err).Warn("device probe could not start")
		return false
	}
	defer cleanup()

	out, err := cmd.Output()
	if err != nil {
		l.logger.WithError(err).Warn("device probe failed")
		return false
	}
	var resp struct {
		CUDA  bool   `json:"cuda"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(lastLine(string(out))), &resp); err != nil {
		l.logger.WithError(err).Warn("device probe returned invalid output")
		return false
	}
	if resp.Error != "" {
		l.logger.WithField("detail", resp.Error).Debug("device probe reported an error")
	}

	l.mu.Lock()
	l.accel = &resp.CUDA
	l.mu.Unlock()
	return resp.CUDA
}

// Load starts a helper process that keeps the model resident until Close.
// ctx bounds the wait for the READY handshake only.
func (l *PythonLoader) Load(ctx context.Context, size domain.ModelSize, device domain.Device) (Model, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, size)
	}
	cmd, cleanup, err := l.helperCommand(context.Background(),
		"--serve",
		"--model", string(size),
		"--device", string(device),
		"--threads", strconv.Itoa(l.threads),
	)
	if err != nil {
		return nil, err
	}

	m, err := startHelper(cmd, cleanup)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	resp, err := m.readResponse(ctx)
	if err != nil {
		m.kill()
		_ = m.Close()
		return nil, fmt.Errorf("load model %s on %s: %w", size, device, err)
	}
	if resp.Status != "READY" {
		_ = m.Close()
		return nil, fmt.Errorf("load model %s on %s: %s", size, device, resp.Error)
	}
	l.logger.WithFields(logrus.Fields{"model": size, "device": device}).Info("model loaded")
	return m, nil
}

func (l *PythonLoader) helperCommand(ctx context.Context, args ...string) (*exec.Cmd, func(), error) {
	bin, err := l.lookPath(l.command[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: python runtime %q not found: %v", ErrBackendUnavailable, l.command[0], err)
	}
	script, cleanup, err := writeHelperScript()
	if err != nil {
		return nil, nil, err
	}
	full := append(append([]string{}, l.command[1:]...), script)
	full = append(full, args...)
	cmd := exec.CommandContext(ctx, bin, full...)
	cmd.Env = l.env()
	return cmd, cleanup, nil
}

func writeHelperScript() (string, func(), error) {
	f, err := os.CreateTemp("", "scribe-whisper-*.py")
	if err != nil {
		return "", nil, fmt.Errorf("create helper script: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := f.Write(helperScript); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write helper script: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write helper script: %w", err)
	}
	return path, cleanup, nil
}

type pythonModel struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *tailBuffer
	lines   chan []byte
	stop    chan struct{}
	done    chan struct{}
	cleanup func()

	mu        sync.Mutex
	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error
}

func startHelper(cmd *exec.Cmd, cleanup func()) (*pythonModel, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	m := &pythonModel{
		cmd:     cmd,
		stdin:   stdin,
		stderr:  stderr,
		lines:   make(chan []byte),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		cleanup: cleanup,
	}
	go m.readLoop(stdout)
	return m, nil
}

func (m *pythonModel) readLoop(r io.Reader) {
	defer close(m.done)
	defer close(m.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxResponseBytes)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		select {
		case m.lines <- line:
		case <-m.stop:
			return
		}
	}
}

func (m *pythonModel) readResponse(ctx context.Context) (helperResponse, error) {
	for {
		select {
		case <-ctx.Done():
			return helperResponse{}, ctx.Err()
		case line, ok := <-m.lines:
			if !ok {
				return helperResponse{}, m.exitError()
			}
			var resp helperResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				// Stray output from third-party libraries.
				continue
			}
			if resp.Status == "" {
				continue
			}
			return resp, nil
		}
	}
}

func (m *pythonModel) exitError() error {
	_ = m.wait()
	tail := strings.TrimSpace(m.stderr.String())
	if tail == "" {
		return errors.New("whisper helper exited unexpectedly")
	}
	return fmt.Errorf("whisper helper exited unexpectedly: %s", lastLine(tail))
}

// Transcribe implements Model. Requests are serialized per process.
func (m *pythonModel) Transcribe(ctx context.Context, path string, language domain.Language, fp16 bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(helperRequest{AudioFile: path, Language: language.Code(), FP16: fp16})
	if err != nil {
		return "", err
	}
	if _, err := m.stdin.Write(append(data, '\n')); err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	resp, err := m.readResponse(ctx)
	if err != nil {
		if ctx.Err() != nil {
			m.kill()
		}
		return "", err
	}
	if resp.Status != "OK" {
		msg := resp.Error
		if msg == "" {
			msg = "transcription failed"
		}
		return "", errors.New(msg)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (m *pythonModel) kill() {
	if m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
	}
}

// wait reaps the process once stdout is drained, killing it if it lingers.
func (m *pythonModel) wait() error {
	m.waitOnce.Do(func() {
		select {
		case <-m.done:
		case <-time.After(closeGrace):
			m.kill()
			<-m.done
		}
		m.waitErr = m.cmd.Wait()
	})
	return m.waitErr
}

// Close shuts the helper down. Exit statuses are not reported.
func (m *pythonModel) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stop)
		_ = m.stdin.Close()
		if werr := m.wait(); werr != nil {
			var exitErr *exec.ExitError
			if !errors.As(werr, &exitErr) {
				err = werr
			}
		}
		m.cleanup()
	})
	return err
}

type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append([]byte(nil), b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
