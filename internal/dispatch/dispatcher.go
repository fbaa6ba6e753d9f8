package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/metrics"
	"github.com/firewatch/firewatch/internal/types"
)

// Sender delivers one alert over one channel. Implementations report
// unconfigured channels as skipped outcomes, not errors.
type Sender interface {
	Channel() types.Channel
	Send(ctx context.Context, alert types.Alert) types.DispatchOutcome
}

// Dispatcher fans an alert out across its channels concurrently. Channels
// are fully isolated: each send runs in its own goroutine with its own
// timeout and panic boundary, and Dispatch always returns exactly one
// outcome per requested channel.
type Dispatcher struct {
	logger  zerolog.Logger
	senders map[types.Channel]Sender
	timeout time.Duration
	guard   *StormGuard
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithSendTimeout bounds each per-channel delivery call.
func WithSendTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithStormGuard suppresses channels that send too often.
func WithStormGuard(guard *StormGuard) Option {
	return func(dp *Dispatcher) { dp.guard = guard }
}

// NewDispatcher creates a dispatcher over the given channel senders.
func NewDispatcher(senders []Sender, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		senders: make(map[types.Channel]Sender, len(senders)),
		timeout: 10 * time.Second,
	}
	for _, s := range senders {
		d.senders[s.Channel()] = s
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends the alert across every channel it names. All sends start
// together; a slow or failing channel never blocks another. It never
// returns an error for a per-channel failure.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) []types.DispatchOutcome {
	outcomes := make([]types.DispatchOutcome, len(alert.Channels))

	var wg sync.WaitGroup
	for i, ch := range alert.Channels {
		wg.Add(1)
		go func(i int, ch types.Channel) {
			defer wg.Done()
			outcomes[i] = d.sendOne(ctx, ch, alert)
		}(i, ch)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		status := "delivered"
		if outcome.Skipped {
			status = "skipped"
		} else if !outcome.Delivered {
			status = "failed"
		}
		metrics.DispatchTotal.WithLabelValues(string(outcome.Channel), status).Inc()
	}

	return outcomes
}

// sendOne delivers to a single channel. Panics and errors are contained
// here; the returned outcome is the only way they surface.
func (d *Dispatcher) sendOne(ctx context.Context, ch types.Channel, alert types.Alert) (outcome types.DispatchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("dispatcher").Inc()
			d.logger.Error().
				Interface("panic", r).
				Str("channel", string(ch)).
				Str("alert_id", alert.ID).
				Msg("Recovered panic in channel sender")
			outcome = types.DispatchOutcome{
				Channel: ch,
				Error:   fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	start := time.Now()
	defer func() {
		metrics.DispatchDuration.WithLabelValues(string(ch)).Observe(time.Since(start).Seconds())
	}()

	// Dashboard delivery is the alert being visible through the ledger's
	// query surface; nothing is sent.
	if ch == types.ChannelDashboard {
		return types.DispatchOutcome{
			Channel:   ch,
			Delivered: true,
			Detail:    "visible via alert ledger",
		}
	}

	if d.guard != nil && !d.guard.Allow(ch) {
		d.logger.Warn().
			Str("channel", string(ch)).
			Str("alert_id", alert.ID).
			Msg("Channel suppressed by storm guard")
		return types.DispatchOutcome{
			Channel: ch,
			Skipped: true,
			Detail:  "suppressed by storm guard",
		}
	}

	sender, ok := d.senders[ch]
	if !ok {
		d.logger.Warn().
			Str("channel", string(ch)).
			Str("alert_id", alert.ID).
			Msg("No sender configured for channel")
		return types.DispatchOutcome{
			Channel: ch,
			Skipped: true,
			Detail:  "channel not configured",
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome = sender.Send(sendCtx, alert)
	outcome.Channel = ch

	if outcome.Delivered {
		if d.guard != nil {
			d.guard.Record(ch)
		}
		d.logger.Info().
			Str("channel", string(ch)).
			Str("alert_id", alert.ID).
			Msg("Notification sent")
	} else if !outcome.Skipped {
		d.logger.Error().
			Str("channel", string(ch)).
			Str("alert_id", alert.ID).
			Str("error", outcome.Error).
			Msg("Notification failed")
	}

	return outcome
}
