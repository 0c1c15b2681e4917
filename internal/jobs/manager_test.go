package jobs

import (
	"errors"
	"testing"

	"scribe-desktop/internal/domain"
)

// TestManagerLifecycle verifies normal progression to done state.
func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	if m.IsRunning() {
		t.Fatal("new manager should be idle")
	}

	req := domain.JobRequest{InputPath: "/media/talk.mp4", ModelSize: domain.ModelBase}
	job, err := m.Start("job-1", req)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.Status != domain.JobStatusRunning || job.Request.InputPath != req.InputPath || job.StartedAt.IsZero() {
		t.Fatalf("job = %+v", job)
	}
	if !m.IsRunning() {
		t.Fatal("expected running after start")
	}

	if err := m.Transition(domain.JobStatusDone); err != nil {
		t.Fatalf("transition to done: %v", err)
	}

	current := m.Current()
	if current.Status != domain.JobStatusDone {
		t.Fatalf("current status = %s, want done", current.Status)
	}
	if current.FinishedAt.IsZero() {
		t.Fatal("finished time should be recorded")
	}
}

// TestManagerRejectsSecondStart enforces the single active job invariant.
func TestManagerRejectsSecondStart(t *testing.T) {
	m := NewManager()
	if _, err := m.Start("job-1", domain.JobRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.Start("job-2", domain.JobRequest{}); !errors.Is(err, ErrJobAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, ErrJobAlreadyRunning)
	}
	if m.Current().ID != "job-1" {
		t.Fatalf("current job replaced: %+v", m.Current())
	}
}

// TestManagerRestartFromTerminal allows a new run after done or error.
func TestManagerRestartFromTerminal(t *testing.T) {
	for _, terminal := range []domain.JobStatus{domain.JobStatusDone, domain.JobStatusError} {
		m := NewManager()
		if _, err := m.Start("job-1", domain.JobRequest{}); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := m.Transition(terminal); err != nil {
			t.Fatalf("transition to %s: %v", terminal, err)
		}
		job, err := m.Start("job-2", domain.JobRequest{})
		if err != nil {
			t.Fatalf("restart from %s: %v", terminal, err)
		}
		if !job.FinishedAt.IsZero() {
			t.Fatalf("restart should clear finished time: %+v", job)
		}
	}
}

// TestManagerRejectsInvalidTransition checks state machine constraints.
func TestManagerRejectsInvalidTransition(t *testing.T) {
	m := NewManager()
	if err := m.Transition(domain.JobStatusDone); err == nil {
		t.Fatal("expected error without an active job")
	}
	if _, err := m.Start("job-1", domain.JobRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Transition(domain.JobStatusIdle); err == nil {
		t.Fatal("expected invalid transition error")
	}
}

// TestManagerReset verifies reset is rejected while running.
func TestManagerReset(t *testing.T) {
	m := NewManager()
	if err := m.Reset(); err != nil {
		t.Fatalf("reset while idle: %v", err)
	}
	if _, err := m.Start("job-1", domain.JobRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Reset(); !errors.Is(err, ErrJobAlreadyRunning) {
		t.Fatalf("reset while running error = %v", err)
	}
	if err := m.Transition(domain.JobStatusError); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := m.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := m.Current(); got.Status != domain.JobStatusIdle || got.ID != "" {
		t.Fatalf("current = %+v, want idle", got)
	}
}
