// Package probe estimates media duration with external tools and file headers.
package probe

import (
	"context"
	"math"
)

// Estimate is a probed media duration. A zero Estimate is unavailable.
type Estimate struct {
	Seconds float64 `json:"seconds"`
	Known   bool    `json:"known"`
}

// Unavailable is the advisory "could not determine" result.
func Unavailable() Estimate {
	return Estimate{}
}

// Seconds wraps a duration. Zero, negative and non-finite values are
// reported as unavailable.
func Seconds(s float64) Estimate {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return Unavailable()
	}
	return Estimate{Seconds: s, Known: true}
}

// Prober reports the duration of a media file. Implementations never fail:
// anything that prevents a measurement yields Unavailable.
type Prober interface {
	Probe(ctx context.Context, path string) Estimate
}

// Chain tries probers in order and returns the first known estimate.
type Chain []Prober

// Probe implements Prober.
func (c Chain) Probe(ctx context.Context, path string) Estimate {
	for _, p := range c {
		if ctx.Err() != nil {
			break
		}
		if est := p.Probe(ctx, path); est.Known {
			return est
		}
	}
	return Unavailable()
}
