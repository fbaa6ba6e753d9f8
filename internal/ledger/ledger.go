package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/metrics"
	"github.com/firewatch/firewatch/internal/store"
	"github.com/firewatch/firewatch/internal/types"
)

// ErrNotFound indicates an unknown alert id.
var ErrNotFound = errors.New("ledger: alert not found")

// Statistics aggregates the full alert history.
type Statistics struct {
	Total      int            `json:"total_alerts"`
	Active     int            `json:"active_alerts"`
	Resolved   int            `json:"resolved_alerts"`
	ByPriority map[string]int `json:"by_priority"`
	Last24h    int            `json:"last_24h"`
}

// LifecycleFunc observes acknowledge/resolve transitions, e.g. to cancel a
// pending escalation.
type LifecycleFunc func(alertID string)

// Ledger owns the alert lifecycle: active -> acknowledged (optional) ->
// resolved. Resolved is terminal; resolved alerts leave the active index
// but stay in the history log. Record, Acknowledge, and Resolve are
// linearizable under one mutex because acknowledge/resolve arrive from
// outside the poll loop.
type Ledger struct {
	logger zerolog.Logger
	store  store.Store
	now    func() time.Time

	onAcknowledged LifecycleFunc
	onResolved     LifecycleFunc

	mu      sync.RWMutex
	active  map[string]*types.Alert
	history []*types.Alert
	byID    map[string]*types.Alert
}

// Option configures the ledger.
type Option func(*Ledger)

// WithClock overrides the ledger clock.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithAcknowledgedHook runs after a successful acknowledge.
func WithAcknowledgedHook(fn LifecycleFunc) Option {
	return func(l *Ledger) { l.onAcknowledged = fn }
}

// WithResolvedHook runs after a successful resolve.
func WithResolvedHook(fn LifecycleFunc) Option {
	return func(l *Ledger) { l.onResolved = fn }
}

// NewLedger builds a ledger on top of the durable store, rebuilding the
// active index from unresolved history entries.
func NewLedger(ctx context.Context, st store.Store, logger zerolog.Logger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		logger: logger.With().Str("component", "ledger").Logger(),
		store:  st,
		now:    time.Now,
		active: make(map[string]*types.Alert),
		byID:   make(map[string]*types.Alert),
	}
	for _, opt := range opts {
		opt(l)
	}

	history, err := st.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: rebuilding from store: %w", err)
	}
	for i := range history {
		alert := history[i]
		l.history = append(l.history, &alert)
		l.byID[alert.ID] = &alert
		if !alert.Resolved {
			l.active[alert.ID] = &alert
		}
	}
	metrics.ActiveAlerts.Set(float64(len(l.active)))

	if len(history) > 0 {
		l.logger.Info().
			Int("history", len(history)).
			Int("active", len(l.active)).
			Msg("Ledger rebuilt from store")
	}

	return l, nil
}

// Record inserts a fired alert as active and appends it to the permanent
// history log.
func (l *Ledger) Record(ctx context.Context, alert types.Alert) {
	l.mu.Lock()
	a := alert
	l.history = append(l.history, &a)
	l.byID[a.ID] = &a
	l.active[a.ID] = &a
	activeCount := len(l.active)
	l.mu.Unlock()

	metrics.ActiveAlerts.Set(float64(activeCount))

	if err := l.store.AppendAlert(ctx, alert); err != nil {
		l.logger.Error().
			Err(err).
			Str("alert_id", alert.ID).
			Msg("Failed to persist alert")
	}

	l.logger.Info().
		Str("alert_id", alert.ID).
		Str("rule_id", alert.RuleID).
		Str("priority", string(alert.Priority)).
		Msg("Alert recorded")
}

// Acknowledge transitions an active alert to acknowledged. An acknowledged
// alert stays in the active index until resolved. Returns false for an
// unknown or already-resolved alert.
func (l *Ledger) Acknowledge(ctx context.Context, alertID, by string) bool {
	l.mu.Lock()
	alert, ok := l.active[alertID]
	if !ok {
		l.mu.Unlock()
		return false
	}
	now := l.now()
	alert.Acknowledged = true
	alert.AcknowledgedBy = by
	alert.AcknowledgedAt = &now
	snapshot := *alert
	l.mu.Unlock()

	if err := l.store.UpdateAlert(ctx, snapshot); err != nil {
		l.logger.Error().
			Err(err).
			Str("alert_id", alertID).
			Msg("Failed to persist acknowledgement")
	}

	l.logger.Info().
		Str("alert_id", alertID).
		Str("by", by).
		Msg("Alert acknowledged")

	if l.onAcknowledged != nil {
		l.onAcknowledged(alertID)
	}
	return true
}

// Resolve transitions an alert to resolved and removes it from the active
// index. Resolved is terminal: further acknowledge/resolve calls on the
// same id return false, and the id never reappears in ActiveAlerts.
func (l *Ledger) Resolve(ctx context.Context, alertID, by string) bool {
	l.mu.Lock()
	alert, ok := l.active[alertID]
	if !ok {
		l.mu.Unlock()
		return false
	}
	now := l.now()
	alert.Resolved = true
	alert.ResolvedBy = by
	alert.ResolvedAt = &now
	delete(l.active, alertID)
	activeCount := len(l.active)
	snapshot := *alert
	l.mu.Unlock()

	metrics.ActiveAlerts.Set(float64(activeCount))

	if err := l.store.UpdateAlert(ctx, snapshot); err != nil {
		l.logger.Error().
			Err(err).
			Str("alert_id", alertID).
			Msg("Failed to persist resolution")
	}

	l.logger.Info().
		Str("alert_id", alertID).
		Str("by", by).
		Msg("Alert resolved")

	if l.onResolved != nil {
		l.onResolved(alertID)
	}
	return true
}

// Get returns a copy of an alert by id, from the full history.
func (l *Ledger) Get(alertID string) (types.Alert, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	alert, ok := l.byID[alertID]
	if !ok {
		return types.Alert{}, ErrNotFound
	}
	return *alert, nil
}

// ActiveAlerts returns active (including acknowledged) alerts newest
// first, optionally filtered by priority.
func (l *Ledger) ActiveAlerts(priority types.Priority) []types.Alert {
	l.mu.RLock()
	out := make([]types.Alert, 0, len(l.active))
	for _, alert := range l.active {
		if priority != "" && alert.Priority != priority {
			continue
		}
		out = append(out, *alert)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Statistics aggregates over the full history log.
func (l *Ledger) Statistics() Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Statistics{
		Total:  len(l.history),
		Active: len(l.active),
		ByPriority: map[string]int{
			string(types.PriorityLow):      0,
			string(types.PriorityMedium):   0,
			string(types.PriorityHigh):     0,
			string(types.PriorityCritical): 0,
		},
	}
	stats.Resolved = stats.Total - stats.Active

	cutoff := l.now().Add(-24 * time.Hour)
	for _, alert := range l.history {
		stats.ByPriority[string(alert.Priority)]++
		if alert.CreatedAt.After(cutoff) {
			stats.Last24h++
		}
	}
	return stats
}
