package fetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// sourceDelays are the hand-picked inter-request delays per source (spec
// §4.1: "each source has a hand-picked delay in the 0.3-2.0s range").
// Adzuna's stricter ~24 req/min cap is expressed separately below.
var sourceDelays = map[string]time.Duration{
	"greenhouse":      300 * time.Millisecond,
	"lever":           400 * time.Millisecond,
	"ashby":           500 * time.Millisecond,
	"workable":        600 * time.Millisecond,
	"smartrecruiters": 800 * time.Millisecond,
	"google":          1 * time.Second,
	"adzuna":          2500 * time.Millisecond,
}

// NewSourceLimiter returns a token-bucket limiter honoring the per-source
// delay, or the Adzuna-specific 24 req/min cap.
func NewSourceLimiter(source string) *rate.Limiter {
	if source == "adzuna" {
		return rate.NewLimiter(rate.Every(time.Minute/24), 1)
	}
	delay, ok := sourceDelays[source]
	if !ok {
		delay = 500 * time.Millisecond
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Wait blocks until the limiter permits one more request, honoring ctx
// cancellation (spec §5: "all such suspension points must honor
// cancellation propagated from the caller").
func Wait(ctx context.Context, limiter *rate.Limiter) error {
	return limiter.Wait(ctx)
}
