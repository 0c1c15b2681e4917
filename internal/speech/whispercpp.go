//go:build whisper

package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/sirupsen/logrus"

	"scribe-desktop/internal/command"
	"scribe-desktop/internal/domain"
)

// cppLoader runs GGML models in-process through the whisper.cpp bindings.
type cppLoader struct {
	modelDir string
	threads  int
	lookPath func(string) (string, error)
	env      func() []string
	logger   logrus.FieldLogger
}

func newCppLoader(cfg Config) (Loader, error) {
	if strings.TrimSpace(cfg.ModelDir) == "" {
		return nil, fmt.Errorf("%w: model directory is not configured", ErrBackendUnavailable)
	}
	l := &cppLoader{
		modelDir: cfg.ModelDir,
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

func (l *cppLoader) Name() string {
	return domain.BackendWhisperCpp
}

// AcceleratorAvailable is false: the bindings are built for CPU.
func (l *cppLoader) AcceleratorAvailable(context.Context) bool {
	return false
}

func (l *cppLoader) Load(ctx context.Context, size domain.ModelSize, device domain.Device) (Model, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, size)
	}
	ffmpegPath, err := l.lookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %v", ErrBackendUnavailable, err)
	}
	modelPath := filepath.Join(l.modelDir, size.GGMLFileName())
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file for %s not found: %s", size, modelPath)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	l.logger.WithFields(logrus.Fields{"model": size, "path": modelPath, "device": device}).Info("model loaded")
	return &cppModel{
		model:   model,
		threads: l.threads,
		prep:    newPreprocessor(ffmpegPath, &command.Exec{Env: l.env()}),
	}, nil
}

type cppModel struct {
	model   whisper.Model
	threads int
	prep    *preprocessor

	closeOnce sync.Once
	closeErr  error
}

// Transcribe ignores fp16; precision is fixed by the GGML file.
func (m *cppModel) Transcribe(ctx context.Context, path string, language domain.Language, _ bool) (string, error) {
	samples, err := m.prep.samples(ctx, path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := m.model.NewContext()
	if err != nil {
		return "", err
	}
	if m.threads > 0 {
		wctx.SetThreads(uint(m.threads))
	}

	lang := cppLanguage(language)
	if err := wctx.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", err
	}
	return joinSegments(wctx.NextSegment)
}

// cppLanguage maps a language to the code whisper.cpp expects.
func cppLanguage(language domain.Language) string {
	if code := language.Code(); code != "" {
		return code
	}
	return "auto"
}

// joinSegments concatenates segment text until next reports io.EOF.
func joinSegments(next func() (whisper.Segment, error)) (string, error) {
	var b strings.Builder
	for {
		seg, err := next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		b.WriteString(seg.Text)
		if !strings.HasSuffix(seg.Text, " ") {
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (m *cppModel) Close() error {
	m.closeOnce.Do(func() { m.closeErr = m.model.Close() })
	return m.closeErr
}
