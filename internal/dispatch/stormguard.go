package dispatch

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/types"
)

// StormGuard suppresses a channel that is sending too often. A channel
// that delivers more than maxSends notifications inside the sliding
// window is muted until its send rate drops back below the limit.
type StormGuard struct {
	log      zerolog.Logger
	maxSends int
	window   time.Duration
	now      func() time.Time

	mu         sync.Mutex
	history    map[types.Channel][]time.Time
	suppressed map[types.Channel]bool
}

// NewStormGuard creates a guard allowing maxSends deliveries per channel
// inside the given window.
func NewStormGuard(log zerolog.Logger, maxSends int, window time.Duration) *StormGuard {
	return &StormGuard{
		log:        log.With().Str("component", "storm-guard").Logger(),
		maxSends:   maxSends,
		window:     window,
		now:        time.Now,
		history:    make(map[types.Channel][]time.Time),
		suppressed: make(map[types.Channel]bool),
	}
}

// Allow reports whether the channel may send right now. Crossing back
// under the limit lifts the suppression automatically.
func (g *StormGuard) Allow(ch types.Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	recent := g.pruneLocked(ch)
	if recent < g.maxSends {
		if g.suppressed[ch] {
			delete(g.suppressed, ch)
			g.log.Info().Str("channel", string(ch)).Msg("Channel suppression lifted")
		}
		return true
	}

	if !g.suppressed[ch] {
		g.suppressed[ch] = true
		g.log.Warn().
			Str("channel", string(ch)).
			Int("sends", recent).
			Dur("window", g.window).
			Msg("Channel sending too often, suppressing")
	}
	return false
}

// Record notes a successful delivery on the channel.
func (g *StormGuard) Record(ch types.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(ch)
	g.history[ch] = append(g.history[ch], g.now())
}

// Suppressed reports whether the channel is currently muted.
func (g *StormGuard) Suppressed(ch types.Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed[ch]
}

// pruneLocked drops timestamps outside the window and returns how many
// remain. Callers must hold mu.
func (g *StormGuard) pruneLocked(ch types.Channel) int {
	cutoff := g.now().Add(-g.window)
	timestamps := g.history[ch]
	pruned := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	if len(pruned) == 0 {
		delete(g.history, ch)
	} else {
		g.history[ch] = pruned
	}
	return len(pruned)
}
