package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/types"
)

// EscalateFunc is called when an unacknowledged alert escalates. The
// usual wiring re-dispatches the alert across its channels.
type EscalateFunc func(alert types.Alert)

// Escalator re-notifies high and critical alerts that nobody has
// acknowledged within the configured delay. Acknowledging or resolving
// the alert cancels its timer. Each alert escalates at most once.
type Escalator struct {
	log        zerolog.Logger
	delay      time.Duration
	onEscalate EscalateFunc

	mu     sync.Mutex
	timers map[string]context.CancelFunc // alert id -> cancel func
}

// NewEscalator creates an escalator with the given delay. A zero delay
// disables escalation entirely.
func NewEscalator(log zerolog.Logger, delay time.Duration, onEscalate EscalateFunc) *Escalator {
	return &Escalator{
		log:        log.With().Str("component", "escalation").Logger(),
		delay:      delay,
		onEscalate: onEscalate,
		timers:     make(map[string]context.CancelFunc),
	}
}

// Start begins an escalation timer for a freshly fired alert. Alerts
// below high priority never escalate.
func (e *Escalator) Start(alert types.Alert) {
	if e.delay <= 0 {
		return
	}
	if alert.Priority.Rank() < types.PriorityHigh.Rank() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cancel, ok := e.timers[alert.ID]; ok {
		cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.timers[alert.ID] = cancel

	e.log.Debug().
		Str("alert_id", alert.ID).
		Dur("delay", e.delay).
		Msg("Escalation timer started")

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.delay):
			e.log.Warn().
				Str("alert_id", alert.ID).
				Str("priority", string(alert.Priority)).
				Msg("Escalating unacknowledged alert")
			if e.onEscalate != nil {
				e.onEscalate(alert)
			}
			e.mu.Lock()
			delete(e.timers, alert.ID)
			e.mu.Unlock()
		}
	}()
}

// Cancel stops the pending escalation for an alert. Called when the
// alert is acknowledged or resolved.
func (e *Escalator) Cancel(alertID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cancel, ok := e.timers[alertID]; ok {
		cancel()
		delete(e.timers, alertID)
		e.log.Debug().Str("alert_id", alertID).Msg("Escalation cancelled")
	}
}

// Stop cancels every pending escalation timer.
func (e *Escalator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, cancel := range e.timers {
		cancel()
		delete(e.timers, id)
	}
}
