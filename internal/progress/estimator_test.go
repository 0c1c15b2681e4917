package progress

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// TestEstimatedTotalUsesFactor verifies duration × 1.2.
func TestEstimatedTotalUsesFactor(t *testing.T) {
	e := New(t0, 600)
	total, ok := e.EstimatedTotal()
	if !ok || total != 720*time.Second {
		t.Fatalf("total = %s, %v; want 720s", total, ok)
	}
}

// TestHalfwayAt360Seconds covers the 600s media scenario.
func TestHalfwayAt360Seconds(t *testing.T) {
	e := New(t0, 600)
	snap := e.Tick(t0.Add(360 * time.Second))

	if math.Abs(snap.Fraction-0.5) > 1e-9 {
		t.Fatalf("fraction = %f, want 0.5", snap.Fraction)
	}
	if !snap.RemainingKnown || snap.Remaining != 360*time.Second {
		t.Fatalf("remaining = %s (known=%v), want 360s", snap.Remaining, snap.RemainingKnown)
	}
	if snap.Describe() != "Running ... estimated ~360 s remaining" {
		t.Fatalf("describe = %q", snap.Describe())
	}
}

// TestFractionCappedBelowOne checks the estimator never self-reports completion.
func TestFractionCappedBelowOne(t *testing.T) {
	e := New(t0, 10)
	snap := e.Tick(t0.Add(time.Hour))
	if snap.Fraction != Cap {
		t.Fatalf("fraction = %f, want cap %f", snap.Fraction, Cap)
	}
	if snap.Remaining != 0 {
		t.Fatalf("remaining = %s, want 0", snap.Remaining)
	}
}

// TestFractionIncreasesUntilCap checks monotonic growth over a timeline.
func TestFractionIncreasesUntilCap(t *testing.T) {
	e := New(t0, 100)
	prev := -1.0
	for s := 0; s <= 200; s += 5 {
		snap := e.Tick(t0.Add(time.Duration(s) * time.Second))
		if snap.Fraction >= 1 {
			t.Fatalf("fraction reached %f at %ds", snap.Fraction, s)
		}
		want := math.Min(float64(s)/120, Cap)
		if math.Abs(snap.Fraction-want) > 1e-9 {
			t.Fatalf("fraction at %ds = %f, want %f", s, snap.Fraction, want)
		}
		if snap.Fraction < Cap && snap.Fraction <= prev {
			t.Fatalf("fraction not strictly increasing at %ds: %f <= %f", s, snap.Fraction, prev)
		}
		prev = snap.Fraction
	}
}

// TestIndeterminateModeForUnknownDurations covers zero, negative and NaN inputs.
func TestIndeterminateModeForUnknownDurations(t *testing.T) {
	for _, d := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		e := New(t0, d)
		if !e.Indeterminate() {
			t.Fatalf("duration %v should be indeterminate", d)
		}
		if _, ok := e.EstimatedTotal(); ok {
			t.Fatalf("duration %v should have no total", d)
		}

		prev := -1.0
		for _, elapsed := range []time.Duration{0, time.Second, time.Minute, time.Hour, 1000 * time.Hour} {
			snap := e.Tick(t0.Add(elapsed))
			if !snap.Indeterminate || snap.RemainingKnown {
				t.Fatalf("unexpected snapshot: %+v", snap)
			}
			if snap.Fraction >= 1 || snap.Fraction < prev {
				t.Fatalf("fraction %f at %s violates bounds (prev %f)", snap.Fraction, elapsed, prev)
			}
			prev = snap.Fraction
		}
	}
}

// TestClockGoingBackwardsKeepsFraction checks the never-decreases invariant.
func TestClockGoingBackwardsKeepsFraction(t *testing.T) {
	e := New(t0, 100)
	first := e.Tick(t0.Add(60 * time.Second))
	second := e.Tick(t0.Add(30 * time.Second))
	if second.Fraction < first.Fraction {
		t.Fatalf("fraction decreased: %f -> %f", first.Fraction, second.Fraction)
	}
	if before := e.Tick(t0.Add(-time.Minute)); before.Fraction < first.Fraction {
		t.Fatalf("fraction decreased before start: %f", before.Fraction)
	}
}

// TestStopIsIdempotentAndFreezes verifies ticks after stop are no-ops.
func TestStopIsIdempotentAndFreezes(t *testing.T) {
	e := New(t0, 100)
	snap := e.Tick(t0.Add(12 * time.Second))
	e.Stop()
	e.Stop()

	if !e.Stopped() {
		t.Fatal("expected stopped")
	}
	after := e.Tick(t0.Add(90 * time.Second))
	if after != snap {
		t.Fatalf("tick after stop changed snapshot: %+v -> %+v", snap, after)
	}
	if after.Fraction == 1 {
		t.Fatal("stop must not force completion")
	}
}

// TestFinalizeForcesCompletion checks the only path to exactly 1.0.
func TestFinalizeForcesCompletion(t *testing.T) {
	e := New(t0, 0)
	e.Tick(t0.Add(5 * time.Second))
	final := e.Finalize()

	if final.Fraction != 1 || !final.Final || final.Remaining != 0 {
		t.Fatalf("final snapshot = %+v", final)
	}
	if e.Tick(t0.Add(time.Hour)).Fraction != 1 {
		t.Fatal("tick after finalize should keep 1.0")
	}
	if final.Describe() != "Finished" {
		t.Fatalf("describe = %q", final.Describe())
	}
}

// TestInitialSnapshot checks the state before the first tick.
func TestInitialSnapshot(t *testing.T) {
	snap := New(t0, 50).Last()
	if snap.Fraction != 0 || snap.Remaining != 60*time.Second || !snap.RemainingKnown {
		t.Fatalf("initial snapshot = %+v", snap)
	}
	if New(t0, 0).Last().Describe() != "Running ... 0 s elapsed" {
		t.Fatalf("indeterminate describe = %q", New(t0, 0).Last().Describe())
	}
}
