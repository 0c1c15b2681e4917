// Package diagnostics checks external tools and paths the app depends on.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"

	"scribe-desktop/internal/command"
	"scribe-desktop/internal/domain"
)

const versionTimeout = 5 * time.Second

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	runner     command.Runner
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker that resolves tools with lookPath and
// executes them with runner.
func NewChecker(lookPath func(string) (string, error), runner command.Runner) *Checker {
	return &Checker{
		lookPath:   lookPath,
		runner:     runner,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkMediaTool(),
		c.checkProbeTool(),
		c.checkRuntime(settings),
		c.checkOutputDir(settings.OutputDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// MediaToolAvailable returns nil when ffmpeg resolves and runs.
func (c *Checker) MediaToolAvailable() error {
	path, err := c.lookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()
	if _, err := c.runner.Run(ctx, path, "-version"); err != nil {
		return fmt.Errorf("ffmpeg could not be executed: %w", err)
	}
	return nil
}

// checkMediaTool verifies ffmpeg, without which no run can start.
func (c *Checker) checkMediaTool() domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "tool_ffmpeg", Name: "ffmpeg"}
	if err := c.MediaToolAvailable(); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = err.Error()
		item.Hint = "Install ffmpeg or set ffmpeg_dir in settings to the folder containing the binary."
		return item
	}
	path, _ := c.lookPath("ffmpeg")
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkProbeTool verifies ffprobe; without it progress is indeterminate.
func (c *Checker) checkProbeTool() domain.DiagnosticItem {
	path, err := c.lookPath("ffprobe")
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_ffprobe",
			Name:    "ffprobe",
			Status:  domain.DiagnosticStatusWarn,
			Message: "Tool not found: ffprobe",
			Hint:    "Progress will be shown without a remaining-time estimate.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_ffprobe",
		Name:    "ffprobe",
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkRuntime verifies the configured speech backend can be started.
func (c *Checker) checkRuntime(settings domain.Settings) domain.DiagnosticItem {
	if settings.Backend == domain.BackendWhisperCpp {
		return c.checkModelDir(settings.ModelDir)
	}

	item := domain.DiagnosticItem{ID: "speech_runtime", Name: "Python runtime"}
	parts, err := shlex.Split(settings.PythonCommand)
	if err != nil || len(parts) == 0 {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Invalid python command: %q", settings.PythonCommand)
		item.Hint = "Set python_command in settings, for example \"python3\"."
		return item
	}
	path, err := c.lookPath(parts[0])
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Python interpreter not found: %s", parts[0])
		item.Hint = "Install Python with the openai-whisper package or point python_command at a virtualenv interpreter."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkModelDir validates the whisper.cpp model directory.
func (c *Checker) checkModelDir(modelDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "model_dir",
		Name: "Model directory",
	}

	if strings.TrimSpace(modelDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Model directory is empty."
		item.Hint = "Set model_dir to a directory containing ggml model files."
		return item
	}

	info, err := c.stat(modelDir)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Model directory does not exist: %s", modelDir)
		} else {
			item.Message = fmt.Sprintf("Cannot access model directory: %s", modelDir)
		}
		item.Hint = "Download a whisper.cpp model and configure model_dir in settings."
		return item
	}
	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Model path is not a directory: %s", modelDir)
		item.Hint = "Point model_dir at the folder that holds ggml-*.bin files."
		return item
	}

	entries, err := c.readDir(modelDir)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read model directory: %s", modelDir)
		item.Hint = "Check permissions for the model directory."
		return item
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasPrefix(name, "ggml-") && filepath.Ext(name) == ".bin" {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Model directory is valid: %s", modelDir)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("No model files found in directory: %s", modelDir)
	item.Hint = "Place a ggml-<size>.bin model file in this directory."
	return item
}

// checkOutputDir validates output directory existence and write access.
// An empty directory means transcripts are written next to the input.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = "Transcripts are saved next to the input file."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for transcripts."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	runner command.Runner,
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		runner:     runner,
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
