package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/config"
	"github.com/firewatch/firewatch/internal/metrics"
	"github.com/firewatch/firewatch/internal/rules"
	"github.com/firewatch/firewatch/internal/source"
	"github.com/firewatch/firewatch/internal/types"
)

// batchLimit caps how many backlogged readings one poll cycle drains.
const batchLimit = 500

// AlertHandler receives each fired alert. The usual wiring records the
// alert in the ledger and starts dispatch. A handler error halts the
// current cycle without advancing past the failed reading, so the same
// reading is retried next cycle.
type AlertHandler func(ctx context.Context, alert types.Alert) error

// Poller drives the monitoring loop: it discovers new readings since its
// cursor, pre-filters the obviously safe ones, and runs the rest through
// rule evaluation.
type Poller struct {
	logger    zerolog.Logger
	src       source.ReadingSource
	engine    *rules.Engine
	handle    AlertHandler
	preFilter config.PreFilterConfig
	now       func() time.Time

	mu          sync.Mutex
	interval    time.Duration
	cursor      time.Time
	lastChecked time.Time
	running     bool
}

// Status is a point-in-time snapshot of the poller. LastChecked moves on
// every cycle, successful or not; LastProcessed is the cursor and only
// moves past fully handled readings, so a stalled pipeline shows as
// LastChecked advancing while LastProcessed stands still.
type Status struct {
	IsRunning     bool          `json:"is_running"`
	CheckInterval time.Duration `json:"check_interval"`
	LastChecked   time.Time     `json:"last_checked"`
	LastProcessed time.Time     `json:"last_processed"`
}

// Option configures the poller.
type Option func(*Poller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithCursor seeds the reading cursor, typically for restarts.
func WithCursor(t time.Time) Option {
	return func(p *Poller) { p.cursor = t }
}

// NewPoller creates a poller over the given reading source. The cursor
// starts at construction time so only readings newer than startup are
// considered, unless WithCursor overrides it.
func NewPoller(src source.ReadingSource, engine *rules.Engine, handle AlertHandler, cfg config.MonitorConfig, logger zerolog.Logger, opts ...Option) *Poller {
	p := &Poller{
		logger:    logger.With().Str("component", "poller").Logger(),
		src:       src,
		engine:    engine,
		handle:    handle,
		preFilter: cfg.PreFilter,
		now:       time.Now,
		interval:  cfg.CheckInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cursor.IsZero() {
		p.cursor = p.now()
	}
	return p
}

// Run executes the poll loop until ctx is cancelled. Each cycle is
// wrapped in a panic boundary so one bad reading never kills the loop.
func (p *Poller) Run(ctx context.Context) {
	p.mu.Lock()
	p.running = true
	interval := p.interval
	p.mu.Unlock()

	p.logger.Info().
		Dur("interval", interval).
		Msg("Monitoring started")

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			p.logger.Info().Msg("Monitoring stopped")
			return
		case <-timer.C:
			p.safePoll(ctx)
			timer.Reset(p.Interval())
		}
	}
}

func (p *Poller) safePoll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("poller").Inc()
			p.logger.Error().
				Interface("panic", r).
				Msg("Recovered from panic in poll cycle")
		}
	}()
	if err := p.PollOnce(ctx); err != nil {
		p.logger.Error().Err(err).Msg("Poll cycle failed")
	}
}

// PollOnce drains readings newer than the cursor, oldest first. The
// cursor only advances past a reading once it has been fully handled, so
// a downstream failure re-delivers that reading next cycle.
func (p *Poller) PollOnce(ctx context.Context) error {
	p.mu.Lock()
	cursor := p.cursor
	p.lastChecked = p.now()
	p.mu.Unlock()

	readings, err := p.src.Since(ctx, cursor, batchLimit)
	if err != nil {
		if errors.Is(err, source.ErrNoData) {
			metrics.PollCyclesTotal.WithLabelValues("ok").Inc()
			return nil
		}
		metrics.PollCyclesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("fetching readings: %w", err)
	}
	if len(readings) == 0 {
		metrics.PollCyclesTotal.WithLabelValues("ok").Inc()
		return nil
	}

	// Since returns newest first; process in arrival order.
	for i := len(readings) - 1; i >= 0; i-- {
		reading := readings[i]
		if err := p.processReading(ctx, reading); err != nil {
			metrics.PollCyclesTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("handling reading at %s: %w", reading.Timestamp.Format(time.RFC3339), err)
		}
		p.mu.Lock()
		if reading.Timestamp.After(p.cursor) {
			p.cursor = reading.Timestamp
		}
		p.mu.Unlock()
	}

	metrics.PollCyclesTotal.WithLabelValues("ok").Inc()
	return nil
}

// processReading applies the coarse pre-filter, then full evaluation.
func (p *Poller) processReading(ctx context.Context, reading types.Reading) error {
	metrics.ReadingsProcessedTotal.Inc()

	if p.withinSafeThresholds(reading) {
		metrics.ReadingsPreFilteredTotal.Inc()
		p.logger.Debug().
			Time("reading_at", reading.Timestamp).
			Float64("risk_score", reading.RiskScore).
			Float64("smoke_level", reading.SmokeLevel).
			Msg("Reading within safe thresholds, skipping evaluation")
		return nil
	}

	alerts := p.engine.Evaluate(ctx, reading)
	for _, alert := range alerts {
		if err := p.handle(ctx, alert); err != nil {
			return fmt.Errorf("alert %s: %w", alert.ID, err)
		}
	}
	return nil
}

// withinSafeThresholds is the cheap gate before rule evaluation: a
// reading below both pre-filter thresholds cannot fire the expensive
// rules, with the caveat that the thresholds are operator-set and may
// diverge from rule conditions. The config loader warns on divergence.
func (p *Poller) withinSafeThresholds(reading types.Reading) bool {
	return reading.RiskScore < p.preFilter.RiskThreshold &&
		reading.SmokeLevel < p.preFilter.SmokeThreshold
}

// TriggerManualCheck evaluates the latest reading immediately, bypassing
// both the schedule and the pre-filter. On a fully handled check the
// cursor advances past the reading so the scheduled loop does not
// process it a second time; if any alert handler fails the cursor is
// left where it was and the loop redelivers the reading.
func (p *Poller) TriggerManualCheck(ctx context.Context) (*types.Reading, []types.Alert, error) {
	reading, err := p.src.Latest(ctx)
	if err != nil {
		if errors.Is(err, source.ErrNoData) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("fetching latest reading: %w", err)
	}

	p.logger.Info().
		Time("reading_at", reading.Timestamp).
		Float64("risk_score", reading.RiskScore).
		Msg("Manual check triggered")

	metrics.ReadingsProcessedTotal.Inc()
	alerts := p.engine.Evaluate(ctx, *reading)
	for _, alert := range alerts {
		if err := p.handle(ctx, alert); err != nil {
			return reading, alerts, fmt.Errorf("alert %s: %w", alert.ID, err)
		}
	}

	p.mu.Lock()
	if reading.Timestamp.After(p.cursor) {
		p.cursor = reading.Timestamp
	}
	p.lastChecked = p.now()
	p.mu.Unlock()

	return reading, alerts, nil
}

// Status reports the current poller state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		IsRunning:     p.running,
		CheckInterval: p.interval,
		LastChecked:   p.lastChecked,
		LastProcessed: p.cursor,
	}
}

// Interval returns the current check interval.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the check interval. The new value takes effect
// after the current cycle.
func (p *Poller) SetInterval(d time.Duration) error {
	if d < config.MinCheckInterval {
		return fmt.Errorf("check interval %s below minimum %s", d, config.MinCheckInterval)
	}
	p.mu.Lock()
	old := p.interval
	p.interval = d
	p.mu.Unlock()

	p.logger.Info().
		Dur("old_interval", old).
		Dur("new_interval", d).
		Msg("Check interval updated")
	return nil
}
