// Package progress fabricates a believable progress signal for work that
// reports none. The estimate is driven purely by wall-clock time and a
// guessed total; it never claims completion by itself.
package progress

import (
	"fmt"
	"math"
	"time"
)

const (
	// Factor scales media duration into expected processing time.
	Factor = 1.2
	// Cap is the highest fraction the estimator reports on its own. The
	// remainder is reserved for the jump on real completion.
	Cap = 0.98
	// IndeterminateTau is the time constant of the creep used when the
	// total is unknown: 60s of assumed media times Factor.
	IndeterminateTau = 72 * time.Second
)

// Snapshot is the estimator output for one tick.
type Snapshot struct {
	Elapsed        time.Duration `json:"elapsed"`
	Fraction       float64       `json:"fraction"`
	Remaining      time.Duration `json:"remaining"`
	RemainingKnown bool          `json:"remainingKnown"`
	Indeterminate  bool          `json:"indeterminate"`
	Final          bool          `json:"final"`
}

// Percent returns the fraction scaled to 0..100.
func (s Snapshot) Percent() float64 {
	return s.Fraction * 100
}

// Describe renders the status line shown under the progress bar.
func (s Snapshot) Describe() string {
	switch {
	case s.Final:
		return "Finished"
	case s.RemainingKnown:
		return fmt.Sprintf("Running ... estimated ~%d s remaining", int(s.Remaining.Seconds()))
	default:
		return fmt.Sprintf("Running ... %d s elapsed", int(s.Elapsed.Seconds()))
	}
}

// Estimator turns elapsed time into a monotonically non-decreasing
// fraction. It is not safe for concurrent use; the owning event loop
// serializes Tick, Stop and Finalize.
type Estimator struct {
	start   time.Time
	total   time.Duration
	last    Snapshot
	stopped bool
}

// New starts an estimator at start for media of the given length in
// seconds. Zero, negative or non-finite lengths select indeterminate mode.
func New(start time.Time, mediaSeconds float64) *Estimator {
	e := &Estimator{start: start}
	if mediaSeconds > 0 && !math.IsInf(mediaSeconds, 0) && !math.IsNaN(mediaSeconds) {
		e.total = time.Duration(mediaSeconds * Factor * float64(time.Second))
	}
	e.last = Snapshot{
		Indeterminate:  e.total <= 0,
		RemainingKnown: e.total > 0,
		Remaining:      e.total,
	}
	return e
}

// EstimatedTotal returns duration × Factor, or false in indeterminate mode.
func (e *Estimator) EstimatedTotal() (time.Duration, bool) {
	return e.total, e.total > 0
}

// Indeterminate reports whether no usable total is known.
func (e *Estimator) Indeterminate() bool {
	return e.total <= 0
}

// Tick computes the snapshot at now. After Stop or Finalize it returns the
// last snapshot unchanged.
func (e *Estimator) Tick(now time.Time) Snapshot {
	if e.stopped {
		return e.last
	}

	elapsed := now.Sub(e.start)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed < e.last.Elapsed {
		elapsed = e.last.Elapsed
	}

	snap := Snapshot{Elapsed: elapsed}
	if e.total > 0 {
		snap.Fraction = math.Min(elapsed.Seconds()/e.total.Seconds(), Cap)
		snap.Remaining = e.total - elapsed
		if snap.Remaining < 0 {
			snap.Remaining = 0
		}
		snap.RemainingKnown = true
	} else {
		snap.Fraction = Cap * (1 - math.Exp(-elapsed.Seconds()/IndeterminateTau.Seconds()))
		snap.Indeterminate = true
	}

	if snap.Fraction < e.last.Fraction {
		snap.Fraction = e.last.Fraction
	}
	if snap.Fraction >= 1 {
		snap.Fraction = Cap
	}

	e.last = snap
	return snap
}

// Last returns the most recent snapshot.
func (e *Estimator) Last() Snapshot {
	return e.last
}

// Stop freezes the estimator. Stopping twice is a no-op.
func (e *Estimator) Stop() {
	e.stopped = true
}

// Stopped reports whether Stop or Finalize was called.
func (e *Estimator) Stopped() bool {
	return e.stopped
}

// Finalize reports completion: fraction exactly 1 and nothing remaining.
// Only the owner of the run calls this, on a successful outcome.
func (e *Estimator) Finalize() Snapshot {
	e.last.Fraction = 1
	e.last.Remaining = 0
	e.last.RemainingKnown = true
	e.last.Final = true
	e.stopped = true
	return e.last
}
