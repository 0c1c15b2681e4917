// Package bootstrap wires the desktop application and its UI bindings.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"scribe-desktop/internal/command"
	"scribe-desktop/internal/config"
	"scribe-desktop/internal/diagnostics"
	"scribe-desktop/internal/domain"
	"scribe-desktop/internal/jobs"
	"scribe-desktop/internal/logging"
	"scribe-desktop/internal/probe"
	"scribe-desktop/internal/session"
	"scribe-desktop/internal/speech"
	"scribe-desktop/internal/toolpath"
	"scribe-desktop/internal/transcribe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const shutdownTimeout = 10 * time.Second

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp3;*.wav;*.m4a;*.mp4;*.mkv;*.webm;*.ogg;*.flac;*.mov;*.aac",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var transcriptDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Text file",
		Pattern:     "*.txt",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// Options controls App construction. Zero values select the per-user
// defaults below the home directory.
type Options struct {
	Store     config.Store
	HomeDir   string
	Assets    fs.FS
	Logger    *logrus.Logger
	Overrides func(*domain.Settings)
}

// App wires configuration, the session controller and UI runtime callbacks.
type App struct {
	Store   config.Store
	Session *session.Controller

	logger    *logrus.Logger
	resolver  *toolpath.Resolver
	checker   *diagnostics.Checker
	worker    *transcribe.Worker
	events    *jobs.EventBus
	homeDir   string
	assets    fs.FS
	overrides func(*domain.Settings)

	mu          sync.Mutex
	settings    domain.Settings
	diagnostics domain.DiagnosticReport
	runtimeCtx  context.Context
	onEvent     func(jobs.Event)
}

// optionsResponse lists the language and device selectors and current
// defaults. Models come from GetModelOptions.
type optionsResponse struct {
	Languages []domain.Option   `json:"languages"`
	Devices   []domain.Option   `json:"devices"`
	Defaults  domain.JobRequest `json:"defaults"`
}

// New builds the application with persisted settings and startup diagnostics.
func New(opts Options) (*App, error) {
	homeDir := opts.HomeDir
	if homeDir == "" {
		var err error
		homeDir, err = os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve user home: %w", err)
		}
	}

	store := opts.Store
	if store == nil {
		store = config.NewTOMLStore(config.SettingsPath(homeDir))
	}
	settings, err := loadSettings(store, opts.Overrides)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = logging.Configure(settings.Log)
		if err != nil {
			return nil, fmt.Errorf("configure logging: %w", err)
		}
	}

	a := &App{
		Store:     store,
		logger:    logger,
		resolver:  toolpath.New(settings.FFmpegDir, config.LocalBinDir(homeDir)),
		events:    jobs.NewEventBus(1000),
		homeDir:   homeDir,
		assets:    opts.Assets,
		overrides: opts.Overrides,
		settings:  settings,
	}
	runner := resolverRunner{resolver: a.resolver}
	a.checker = diagnostics.NewChecker(a.resolver.LookPath, runner)
	a.worker = transcribe.NewWorker(a.newLoader(settings), logger.WithField("component", "worker"))

	prober := probe.Chain{
		probe.NewFFProbe(a.resolver.LookPath, runner, probeTimeout(settings), logger.WithField("component", "probe")),
		probe.WAVHeader{},
	}
	a.Session = session.NewController(session.Options{
		Prober:  prober,
		Worker:  a.worker,
		Prereq:  a.checker,
		Events:  a.events,
		Logger:  logger.WithField("component", "session"),
		Config:  runConfig(settings),
		OnEvent: a.emit,
	})
	a.diagnostics = a.checker.Run(settings)

	logger.WithFields(logrus.Fields{
		"backend":    settings.Backend,
		"ffmpeg_dir": settings.FFmpegDir,
		"failures":   a.diagnostics.HasFailures,
	}).Info("application initialized")
	return a, nil
}

func loadSettings(store config.Store, overrides func(*domain.Settings)) (domain.Settings, error) {
	settings, err := store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings)
	if overrides != nil {
		overrides(&settings)
	}
	return config.Normalize(settings), nil
}

func (a *App) newLoader(settings domain.Settings) speech.Loader {
	loader, err := speech.NewLoader(speech.Config{
		Backend:       settings.Backend,
		PythonCommand: settings.PythonCommand,
		ModelDir:      settings.ModelDir,
		Threads:       settings.Threads,
		LookPath:      a.resolver.LookPath,
		Env:           a.resolver.Env,
		Logger:        a.logger.WithField("component", "speech"),
	})
	if err != nil {
		a.logger.WithError(err).Warn("speech backend unavailable")
		return nil
	}
	return loader
}

func probeTimeout(settings domain.Settings) time.Duration {
	return time.Duration(settings.ProbeTimeoutSec * float64(time.Second))
}

func runConfig(settings domain.Settings) session.RunConfig {
	return session.RunConfig{
		OutputDir:    settings.OutputDir,
		TickInterval: time.Duration(settings.TickIntervalMS) * time.Millisecond,
		ProbeTimeout: probeTimeout(settings),
	}
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Scribe Desktop",
		Width:       820,
		Height:      600,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown cancels a running session and drops the runtime context.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Session.Close(ctx); err != nil {
		a.logger.WithError(err).Warn("session did not stop in time")
	}
}

// Subscribe registers fn for every session event, alongside the UI.
func (a *App) Subscribe(fn func(jobs.Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEvent = fn
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diagnostics
}

// GetSettings returns the effective settings.
func (a *App) GetSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// SaveSettings normalizes and persists settings, then applies them to the
// tool search path, the speech backend and subsequent runs.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	a.applySettings(normalized)
	return normalized, nil
}

func (a *App) applySettings(settings domain.Settings) {
	a.resolver.SetDirs(settings.FFmpegDir, config.LocalBinDir(a.homeDir))
	a.worker.SetLoader(a.newLoader(settings))
	a.Session.Configure(runConfig(settings))
	if level, err := logrus.ParseLevel(settings.Log.Level); err == nil {
		a.logger.SetLevel(level)
	}
	report := a.checker.Run(settings)

	a.mu.Lock()
	a.settings = settings
	a.diagnostics = report
	a.mu.Unlock()
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := loadSettings(a.Store, a.overrides)
	if err != nil {
		return domain.DiagnosticReport{}, err
	}
	a.applySettings(settings)
	return a.GetDiagnostics(), nil
}

// GetOptions returns the selector entries and their defaults.
func (a *App) GetOptions() optionsResponse {
	settings := a.GetSettings()
	return optionsResponse{
		Languages: domain.LanguageOptions(),
		Devices:   domain.DeviceOptions(),
		Defaults: domain.JobRequest{
			ModelSize: settings.Model,
			Language:  settings.Language,
			Device:    settings.Device,
		},
	}
}

// PickInputFile opens a native file dialog for media selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select audio/video file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputFile opens a save dialog for the transcript destination.
func (a *App) PickOutputFile(inputPath, current string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	initial := strings.TrimSpace(current)
	if initial == "" && strings.TrimSpace(inputPath) != "" {
		initial = session.OutputPathFor(domain.JobRequest{InputPath: inputPath}, a.GetSettings().OutputDir)
	}
	if initial == "" {
		initial = "transcript_output.txt"
	}

	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Save transcript as...",
		DefaultDirectory: dirOf(initial),
		DefaultFilename:  filepath.Base(initial),
		Filters:          transcriptDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for transcripts.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickFFmpegDirectory opens a native directory picker for the ffmpeg folder.
func (a *App) PickFFmpegDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select folder containing ffmpeg",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or the last transcript) in the
// file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.Session.Snapshot().OutputPath
	}
	if target == "" {
		target = a.GetSettings().OutputDir
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartTranscription fills unset selections from settings and starts a
// session. Rejections are also shown as native dialogs.
func (a *App) StartTranscription(req domain.JobRequest) (domain.Job, error) {
	job, err := a.Session.Start(a.withDefaults(req))
	if err == nil {
		return job, nil
	}

	switch {
	case errors.Is(err, session.ErrPrerequisite):
		a.showDialog(wailsruntime.ErrorDialog, "ffmpeg not found",
			"ffmpeg could not be executed.\nSet the ffmpeg folder in settings or install ffmpeg on PATH.")
	case errors.Is(err, session.ErrValidation):
		a.showDialog(wailsruntime.ErrorDialog, "Error", "Please select a valid input file.")
	case errors.Is(err, jobs.ErrJobAlreadyRunning):
		a.showDialog(wailsruntime.InfoDialog, "Info", "Transcription is already running.")
	}
	return domain.Job{}, err
}

func (a *App) withDefaults(req domain.JobRequest) domain.JobRequest {
	settings := a.GetSettings()
	if strings.TrimSpace(string(req.ModelSize)) == "" {
		req.ModelSize = settings.Model
	}
	if strings.TrimSpace(string(req.Language)) == "" {
		req.Language = settings.Language
	} else if lang, ok := domain.ParseLanguage(string(req.Language)); ok {
		req.Language = lang
	}
	if strings.TrimSpace(string(req.Device)) == "" {
		req.Device = settings.Device
	} else if device, ok := domain.ParseDevice(string(req.Device)); ok {
		req.Device = device
	}
	if size, ok := domain.ParseModelSize(string(req.ModelSize)); ok {
		req.ModelSize = size
	}
	return req
}

// CurrentStatus returns the session state rendered by the UI.
func (a *App) CurrentStatus() session.State {
	return a.Session.Snapshot()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Session.Events(sinceSeq)
}

// ResetSession returns a finished session to idle.
func (a *App) ResetSession() error {
	return a.Session.Reset()
}

// emit pushes session events to the UI and any subscriber.
func (a *App) emit(event jobs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	fn := a.onEvent
	a.mu.Unlock()

	if fn != nil {
		fn(event)
	}
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", event)
	}
}

func (a *App) showDialog(kind wailsruntime.DialogType, title, message string) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx == nil {
		return
	}
	if _, err := wailsruntime.MessageDialog(ctx, wailsruntime.MessageDialogOptions{
		Type:    kind,
		Title:   title,
		Message: message,
	}); err != nil {
		a.logger.WithError(err).Debug("message dialog failed")
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

func dirOf(path string) string {
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// resolverRunner executes tools with the resolver's search path.
type resolverRunner struct {
	resolver *toolpath.Resolver
}

func (r resolverRunner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	return (&command.Exec{Env: r.resolver.Env()}).Run(ctx, name, args...)
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
