package jobs

import (
	"sync"
	"time"

	"scribe-desktop/internal/domain"
	"scribe-desktop/internal/progress"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeNote     EventType = "note"
	EventTypeLog      EventType = "log"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Progress is the UI-facing form of a progress snapshot.
type Progress struct {
	Fraction       float64 `json:"fraction"`
	Percent        float64 `json:"percent"`
	ElapsedSec     float64 `json:"elapsedSec"`
	RemainingSec   float64 `json:"remainingSec"`
	RemainingKnown bool    `json:"remainingKnown"`
	Indeterminate  bool    `json:"indeterminate"`
	Final          bool    `json:"final"`
	Label          string  `json:"label"`
}

// NewProgress converts an estimator snapshot.
func NewProgress(s progress.Snapshot) *Progress {
	return &Progress{
		Fraction:       s.Fraction,
		Percent:        s.Percent(),
		ElapsedSec:     s.Elapsed.Seconds(),
		RemainingSec:   s.Remaining.Seconds(),
		RemainingKnown: s.RemainingKnown,
		Indeterminate:  s.Indeterminate,
		Final:          s.Final,
		Label:          s.Describe(),
	}
}

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq        int64            `json:"seq"`
	Timestamp  time.Time        `json:"timestamp"`
	JobID      string           `json:"jobId"`
	Type       EventType        `json:"type"`
	Status     domain.JobStatus `json:"status,omitempty"`
	Message    string           `json:"message,omitempty"`
	Progress   *Progress        `json:"progress,omitempty"`
	Stage      string           `json:"stage,omitempty"`
	Device     domain.Device    `json:"device,omitempty"`
	Command    string           `json:"command,omitempty"`
	Args       []string         `json:"args,omitempty"`
	ExitCode   int              `json:"exitCode,omitempty"`
	Stdout     string           `json:"stdout,omitempty"`
	Stderr     string           `json:"stderr,omitempty"`
	OutputPath string           `json:"outputPath,omitempty"`
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
