// Package jobs tracks the single active job and its event history.
package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"scribe-desktop/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// Manager tracks the single allowed active job and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
	now     func() time.Time
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
		now: time.Now,
	}
}

// Start creates a new job and moves it to running state. It is allowed
// from idle and from any terminal state.
func (m *Manager) Start(jobID string, req domain.JobRequest) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status == domain.JobStatusRunning {
		return domain.Job{}, ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		ID:        jobID,
		Status:    domain.JobStatusRunning,
		Request:   req,
		StartedAt: m.now().UTC(),
	}
	return m.current, nil
}

// Transition validates and applies state transitions for current job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.JobStatusIdle {
		return fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	if isTerminal(status) {
		m.current.FinishedAt = m.now().UTC()
	}
	return nil
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns manager to idle. It is a no-op
// when idle and rejected while a job is running.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status == domain.JobStatusRunning {
		return ErrJobAlreadyRunning
	}
	m.current = domain.Job{Status: domain.JobStatusIdle}
	return nil
}

// IsRunning reports whether a job is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status == domain.JobStatusRunning
}

func isTerminal(status domain.JobStatus) bool {
	return status == domain.JobStatusDone || status == domain.JobStatusError
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusRunning
	case domain.JobStatusRunning:
		return isTerminal(to)
	case domain.JobStatusDone, domain.JobStatusError:
		return to == domain.JobStatusRunning || to == domain.JobStatusIdle
	default:
		return false
	}
}
