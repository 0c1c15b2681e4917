// Package session owns one transcription session: it validates requests,
// drives the progress estimator from its own event loop, runs the worker
// and persists the transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scribe-desktop/internal/domain"
	"scribe-desktop/internal/jobs"
	"scribe-desktop/internal/probe"
	"scribe-desktop/internal/progress"
	"scribe-desktop/internal/transcribe"
)

var (
	// ErrValidation rejects a request before anything is started.
	ErrValidation = errors.New("invalid request")
	// ErrPrerequisite rejects a request when a required tool is missing.
	ErrPrerequisite = errors.New("missing prerequisite")
)

const (
	DefaultTickInterval = 200 * time.Millisecond
	DefaultProbeTimeout = probe.DefaultTimeout
)

// Prerequisites reports whether the media tool can be executed.
type Prerequisites interface {
	MediaToolAvailable() error
}

// Worker starts one transcription in the background.
type Worker interface {
	Start(ctx context.Context, req transcribe.Request) *transcribe.Handle
}

// RunConfig holds per-run tunables. Changes apply to the next run.
type RunConfig struct {
	OutputDir    string
	TickInterval time.Duration
	ProbeTimeout time.Duration
}

// Options wires a Controller. Prober and Worker are required.
type Options struct {
	Prober  probe.Prober
	Worker  Worker
	Prereq  Prerequisites
	Manager *jobs.Manager
	Events  *jobs.EventBus
	Logger  logrus.FieldLogger
	Config  RunConfig
	Now     func() time.Time
	NewID   func() string
	OnEvent func(jobs.Event)
}

// State is what the UI renders for the current session.
type State struct {
	Job        domain.Job     `json:"job"`
	Progress   *jobs.Progress `json:"progress,omitempty"`
	Message    string         `json:"message"`
	Notes      []string       `json:"notes,omitempty"`
	Device     domain.Device  `json:"device,omitempty"`
	OutputPath string         `json:"outputPath,omitempty"`
	Error      string         `json:"error,omitempty"`
	Err        error          `json:"-"`
}

// Controller runs at most one session at a time.
type Controller struct {
	prober  probe.Prober
	worker  Worker
	prereq  Prerequisites
	manager *jobs.Manager
	events  *jobs.EventBus
	logger  logrus.FieldLogger
	now     func() time.Time
	newID   func() string
	onEvent func(jobs.Event)

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	cfg     RunConfig
	state   State
	runDone chan struct{}
}

// NewController creates an idle controller.
func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Manager == nil {
		opts.Manager = jobs.NewManager()
	}
	if opts.Events == nil {
		opts.Events = jobs.NewEventBus(500)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		prober:     opts.Prober,
		worker:     opts.Worker,
		prereq:     opts.Prereq,
		manager:    opts.Manager,
		events:     opts.Events,
		logger:     opts.Logger,
		now:        opts.Now,
		newID:      opts.NewID,
		onEvent:    opts.OnEvent,
		baseCtx:    ctx,
		baseCancel: cancel,
		cfg:        withDefaults(opts.Config),
		state: State{
			Job:     opts.Manager.Current(),
			Message: "Ready.",
		},
	}
}

func withDefaults(cfg RunConfig) RunConfig {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	cfg.OutputDir = strings.TrimSpace(cfg.OutputDir)
	return cfg
}

// Configure replaces the run configuration used by subsequent runs.
func (c *Controller) Configure(cfg RunConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = withDefaults(cfg)
}

// Start validates req and launches a run. It returns as soon as the run
// is in progress; completion is observed through events or Snapshot.
func (c *Controller) Start(req domain.JobRequest) (domain.Job, error) {
	if c.manager.IsRunning() {
		return domain.Job{}, jobs.ErrJobAlreadyRunning
	}

	req.InputPath = strings.TrimSpace(req.InputPath)
	req.OutputPath = strings.TrimSpace(req.OutputPath)
	if req.Device == "" {
		req.Device = domain.DeviceAuto
	}
	if err := validateInput(req.InputPath); err != nil {
		return domain.Job{}, err
	}
	if c.prereq != nil {
		if err := c.prereq.MediaToolAvailable(); err != nil {
			return domain.Job{}, fmt.Errorf("%w: %v", ErrPrerequisite, err)
		}
	}

	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()
	outputPath := OutputPathFor(req, cfg.OutputDir)

	done := make(chan struct{})
	c.mu.Lock()
	job, err := c.manager.Start(c.newID(), req)
	if err != nil {
		c.mu.Unlock()
		return domain.Job{}, err
	}
	c.state = State{
		Job:        job,
		Progress:   jobs.NewProgress(progress.Snapshot{}),
		Message:    "Loading model and starting transcription ...",
		OutputPath: outputPath,
	}
	c.runDone = done
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"input":  req.InputPath,
		"model":  req.ModelSize,
		"device": req.Device,
		"output": outputPath,
	}).Info("transcription started")
	c.publish(jobs.Event{JobID: job.ID, Type: jobs.EventTypeStatus, Status: job.Status, Message: "Loading model and starting transcription ..."})

	go c.run(job, outputPath, cfg, done)
	return job, nil
}

func validateInput(path string) error {
	if path == "" {
		return fmt.Errorf("%w: please select a valid input file", ErrValidation)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: input file not found: %s", ErrValidation, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: input is a directory: %s", ErrValidation, path)
	}
	return nil
}

// workerMsg carries a worker callback into the event loop.
type workerMsg struct {
	note   string
	stage  transcribe.Stage
	device domain.Device
}

// run is the per-run event loop. It alone touches the estimator.
func (c *Controller) run(job domain.Job, outputPath string, cfg RunConfig, done chan struct{}) {
	defer close(done)
	log := c.logger.WithField("job_id", job.ID)

	probeCtx, cancelProbe := context.WithTimeout(c.baseCtx, cfg.ProbeTimeout)
	duration := c.prober.Probe(probeCtx, job.Request.InputPath)
	cancelProbe()
	if duration.Known {
		log.WithField("seconds", duration.Seconds).Debug("media duration probed")
	} else {
		log.Debug("media duration unavailable, progress is indeterminate")
	}

	est := progress.New(c.now(), duration.Seconds)
	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	msgs := make(chan workerMsg, 16)
	send := func(m workerMsg) {
		select {
		case msgs <- m:
		case <-c.baseCtx.Done():
		}
	}
	handle := c.worker.Start(c.baseCtx, transcribe.Request{
		Job:     job.Request,
		OnStage: func(s transcribe.Stage, d domain.Device) { send(workerMsg{stage: s, device: d}) },
		OnNote:  func(n string) { send(workerMsg{note: n}) },
	})

	for {
		select {
		case <-ticker.C:
			c.updateProgress(job.ID, est.Tick(c.now()))
		case m := <-msgs:
			c.handleWorkerMsg(job, m)
		case out := <-handle.Done():
			ticker.Stop()
			for drained := false; !drained; {
				select {
				case m := <-msgs:
					c.handleWorkerMsg(job, m)
				default:
					drained = true
				}
			}
			c.finish(job, est, out, outputPath)
			return
		}
	}
}

func (c *Controller) handleWorkerMsg(job domain.Job, m workerMsg) {
	var message string
	switch {
	case m.note != "":
		message = m.note
		c.mu.Lock()
		c.state.Notes = append(c.state.Notes, m.note)
		c.state.Message = message
		c.mu.Unlock()
		c.publish(jobs.Event{JobID: job.ID, Type: jobs.EventTypeNote, Message: message})
		return
	case m.stage == transcribe.StageLoading:
		message = fmt.Sprintf("Loading model '%s' on %s ...", job.Request.ModelSize, m.device)
	case m.stage == transcribe.StageTranscribing:
		message = "Transcribing ..."
	default:
		message = "Checking input ..."
	}

	c.mu.Lock()
	c.state.Message = message
	if m.device != domain.DeviceAuto {
		c.state.Device = m.device
	}
	c.mu.Unlock()
	c.publish(jobs.Event{
		JobID:   job.ID,
		Type:    jobs.EventTypeStatus,
		Status:  domain.JobStatusRunning,
		Stage:   string(m.stage),
		Device:  m.device,
		Message: message,
	})
}

func (c *Controller) updateProgress(jobID string, snap progress.Snapshot) {
	p := jobs.NewProgress(snap)
	c.mu.Lock()
	c.state.Progress = p
	c.mu.Unlock()
	c.emit(jobs.Event{JobID: jobID, Type: jobs.EventTypeProgress, Progress: p, Message: p.Label})
}

// finish applies the terminal outcome. The transcript is written before
// progress is finalized so a failed write never shows 100%.
func (c *Controller) finish(job domain.Job, est *progress.Estimator, out transcribe.Outcome, outputPath string) {
	log := c.logger.WithField("job_id", job.ID)

	if out.Err != nil {
		est.Stop()
		c.fail(job, est.Last(), out.Err)
		return
	}
	if err := WriteTranscript(outputPath, out.Text); err != nil {
		est.Stop()
		c.fail(job, est.Last(), fmt.Errorf("failed to write transcript: %w", err))
		return
	}

	snap := est.Finalize()
	c.updateProgress(job.ID, snap)
	message := fmt.Sprintf("Done. Transcript saved to: %s", outputPath)
	c.mu.Lock()
	if err := c.manager.Transition(domain.JobStatusDone); err != nil {
		log.WithError(err).Error("state transition failed")
	}
	c.state.Job = c.manager.Current()
	c.state.Message = message
	c.state.Error = ""
	c.state.Err = nil
	if out.Device != "" {
		c.state.Device = out.Device
	}
	c.mu.Unlock()

	log.WithFields(logrus.Fields{
		"output":  outputPath,
		"elapsed": out.Elapsed.Round(time.Millisecond).String(),
	}).Info("transcription done")
	c.publish(jobs.Event{JobID: job.ID, Type: jobs.EventTypeResult, OutputPath: outputPath, Device: out.Device, Message: message})
	c.publish(jobs.Event{JobID: job.ID, Type: jobs.EventTypeStatus, Status: domain.JobStatusDone, Message: message})
}

func (c *Controller) fail(job domain.Job, last progress.Snapshot, err error) {
	log := c.logger.WithField("job_id", job.ID)

	var werr *transcribe.WorkerError
	if errors.As(err, &werr) && werr.CommandLog.Command != "" {
		cl := werr.CommandLog
		c.publish(jobs.Event{
			JobID:    job.ID,
			Type:     jobs.EventTypeLog,
			Command:  cl.Command,
			Args:     cl.Args,
			ExitCode: cl.ExitCode,
			Stdout:   cl.Stdout,
			Stderr:   cl.Stderr,
		})
	}

	message := fmt.Sprintf("Error: %s", reason(err))
	c.mu.Lock()
	if terr := c.manager.Transition(domain.JobStatusError); terr != nil {
		log.WithError(terr).Error("state transition failed")
	}
	c.state.Job = c.manager.Current()
	c.state.Progress = jobs.NewProgress(last)
	c.state.Message = message
	c.state.Error = reason(err)
	c.state.Err = err
	c.mu.Unlock()

	log.WithError(err).Warn("transcription failed")
	c.publish(jobs.Event{JobID: job.ID, Type: jobs.EventTypeError, Message: reason(err)})
	c.publish(jobs.Event{JobID: job.ID, Type: jobs.EventTypeStatus, Status: domain.JobStatusError, Message: message})
}

// reason is the human-readable cause without the stage prefix.
func reason(err error) string {
	var werr *transcribe.WorkerError
	if errors.As(err, &werr) && werr.Message != "" {
		return werr.Message
	}
	return err.Error()
}

// Reset returns a finished session to idle. It is a no-op when idle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if err := c.manager.Reset(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = State{Job: c.manager.Current(), Message: "Ready."}
	c.mu.Unlock()
	c.publish(jobs.Event{Type: jobs.EventTypeStatus, Status: domain.JobStatusIdle, Message: "Ready."})
	return nil
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Job.Status = c.manager.Current().Status
	s.Notes = append([]string(nil), c.state.Notes...)
	return s
}

// Events returns retained events newer than seq.
func (c *Controller) Events(seq int64) []jobs.Event {
	return c.events.Since(seq)
}

// Wait blocks until the current run, if any, has finished.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.runDone
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels a running session and waits for it to settle. The
// controller accepts no further runs afterwards.
func (c *Controller) Close(ctx context.Context) error {
	c.baseCancel()
	return c.Wait(ctx)
}

// publish records an event and forwards it to the subscriber.
func (c *Controller) publish(event jobs.Event) {
	c.emit(c.events.Publish(event))
}

// emit forwards without retaining; progress ticks are not kept in history.
func (c *Controller) emit(event jobs.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if c.onEvent != nil {
		c.onEvent(event)
	}
}

// OutputPathFor returns the explicit output path or derives one from the
// input name. A derived path never overwrites the input itself.
func OutputPathFor(req domain.JobRequest, outputDir string) string {
	if p := strings.TrimSpace(req.OutputPath); p != "" {
		return p
	}
	dir := strings.TrimSpace(outputDir)
	if dir == "" {
		dir = filepath.Dir(req.InputPath)
	}
	base := filepath.Base(req.InputPath)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "transcript"
	}
	out := filepath.Join(dir, name+".txt")
	if filepath.Clean(out) == filepath.Clean(req.InputPath) {
		out = filepath.Join(dir, name+".transcript.txt")
	}
	return out
}

// WriteTranscript writes text as UTF-8 through a temp file and rename, so
// a failed write leaves no partial file behind.
func WriteTranscript(path, text string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write transcript: %w", err)
	}
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
