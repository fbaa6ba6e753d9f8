package rules

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/metrics"
	"github.com/firewatch/firewatch/internal/types"
)

// CooldownStore persists per-rule last-fired times so a restart cannot
// cause an immediate re-fire burst.
type CooldownStore interface {
	SetLastFired(ctx context.Context, ruleID string, t time.Time) error
}

// compiledRule pairs a rule with its parsed condition. A nil condition
// means the expression was malformed; the rule is kept but never triggers.
type compiledRule struct {
	rule types.AlertRule
	cond *Condition
}

// Engine maps readings to zero-or-more fired alerts. Evaluation is
// deterministic: rules run in registration order, and cooldown bookkeeping
// happens under one lock so duplicate deliveries of the same reading are
// safe.
type Engine struct {
	logger    zerolog.Logger
	rules     []compiledRule
	cooldowns CooldownStore
	now       func() time.Time

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithCooldownStore persists last-fired times through the given store.
func WithCooldownStore(store CooldownStore) Option {
	return func(e *Engine) { e.cooldowns = store }
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLastFired seeds cooldown state, typically from the store on restart.
func WithLastFired(seed map[string]time.Time) Option {
	return func(e *Engine) {
		for id, t := range seed {
			e.lastFired[id] = t
		}
	}
}

// NewEngine compiles the rule set. A malformed condition does not fail
// construction; the rule is registered but logged as a configuration
// warning and treated as never triggered.
func NewEngine(ruleSet []types.AlertRule, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:    logger.With().Str("component", "rule-engine").Logger(),
		rules:     make([]compiledRule, 0, len(ruleSet)),
		now:       time.Now,
		lastFired: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, rule := range ruleSet {
		cond, err := Parse(rule.Condition)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("rule_id", rule.ID).
				Msg("Malformed rule condition, rule will never trigger")
			e.rules = append(e.rules, compiledRule{rule: rule})
			continue
		}
		e.rules = append(e.rules, compiledRule{rule: rule, cond: cond})
	}

	e.logger.Info().
		Int("rule_count", len(e.rules)).
		Msg("Rule engine initialized")

	return e
}

// Rules returns the registered rule set in registration order.
func (e *Engine) Rules() []types.AlertRule {
	out := make([]types.AlertRule, len(e.rules))
	for i, cr := range e.rules {
		out[i] = cr.rule
	}
	return out
}

// Evaluate runs every enabled rule against the reading and returns the
// alerts that fired, in registration order. Evaluation never returns an
// error: a failing condition is logged and treated as not triggered for
// that rule only.
func (e *Engine) Evaluate(ctx context.Context, reading types.Reading) []types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	evalCtx := buildContext(reading)

	var fired []types.Alert
	for _, cr := range e.rules {
		rule := cr.rule
		if !rule.Enabled {
			continue
		}

		if last, ok := e.lastFired[rule.ID]; ok && rule.Cooldown > 0 {
			if now.Sub(last) < rule.Cooldown {
				metrics.RuleCooldownSkipsTotal.WithLabelValues(rule.ID).Inc()
				e.logger.Debug().
					Str("rule_id", rule.ID).
					Time("last_fired", last).
					Dur("cooldown", rule.Cooldown).
					Msg("Rule in cooldown, skipping")
				continue
			}
		}

		if cr.cond == nil {
			continue
		}

		triggered, err := cr.cond.Eval(evalCtx)
		if err != nil {
			metrics.RuleEvalErrorsTotal.WithLabelValues(rule.ID).Inc()
			e.logger.Warn().
				Err(err).
				Str("rule_id", rule.ID).
				Str("condition", rule.Condition).
				Msg("Condition evaluation failed, treating as not triggered")
			continue
		}
		if !triggered {
			continue
		}

		alert := e.buildAlert(rule, reading, now)
		e.lastFired[rule.ID] = now
		if e.cooldowns != nil {
			if err := e.cooldowns.SetLastFired(ctx, rule.ID, now); err != nil {
				e.logger.Warn().
					Err(err).
					Str("rule_id", rule.ID).
					Msg("Failed to persist cooldown state")
			}
		}

		metrics.AlertsFiredTotal.WithLabelValues(rule.ID, string(rule.Priority)).Inc()
		e.logger.Info().
			Str("rule_id", rule.ID).
			Str("alert_id", alert.ID).
			Str("priority", string(rule.Priority)).
			Msg("Alert fired")

		fired = append(fired, alert)
	}

	return fired
}

// Check is a dry run: it reports which enabled rules match the reading,
// ignoring cooldowns and without firing alerts or touching state.
func (e *Engine) Check(reading types.Reading) []string {
	evalCtx := buildContext(reading)

	var matched []string
	for _, cr := range e.rules {
		if !cr.rule.Enabled || cr.cond == nil {
			continue
		}
		triggered, err := cr.cond.Eval(evalCtx)
		if err != nil || !triggered {
			continue
		}
		matched = append(matched, cr.rule.ID)
	}
	return matched
}

func (e *Engine) buildAlert(rule types.AlertRule, reading types.Reading, now time.Time) types.Alert {
	channels := make([]types.Channel, len(rule.Channels))
	copy(channels, rule.Channels)

	return types.Alert{
		ID:        "ALERT-" + uuid.New().String()[:8],
		RuleID:    rule.ID,
		Title:     rule.Name,
		Message:   renderMessage(rule, reading),
		Priority:  rule.Priority,
		Context:   contextData(reading),
		Channels:  channels,
		CreatedAt: now,
	}
}

// buildContext maps a reading onto the fixed variable set rule conditions
// may reference. Unset optional fields get the same defaults the
// conditions were written against: rate 0, offline false, sprinkler "off",
// and a large distance sentinel (a real hotspot is never at exactly zero
// distance, so zero means unreported).
func buildContext(reading types.Reading) Context {
	sprinkler := reading.SprinklerStatus
	if sprinkler == "" {
		sprinkler = "off"
	}
	distance := reading.HotspotDistance
	if distance == 0 {
		distance = 999
	}
	return Context{
		"risk_score":       Number(reading.RiskScore),
		"temperature":      Number(reading.Temperature),
		"humidity":         Number(reading.Humidity),
		"smoke_level":      Number(reading.SmokeLevel),
		"rain_level":       Number(reading.RainLevel),
		"temp_change_rate": Number(reading.TempChangeRate),
		"node_offline":     Bool(reading.NodeOffline),
		"sprinkler_status": String(sprinkler),
		"hotspot_distance": Number(distance),
	}
}

// contextData snapshots the reading into the alert's context map.
func contextData(reading types.Reading) map[string]string {
	data := map[string]string{
		"timestamp":   reading.Timestamp.UTC().Format(time.RFC3339),
		"temperature": formatFloat(reading.Temperature),
		"humidity":    formatFloat(reading.Humidity),
		"smoke_level": formatFloat(reading.SmokeLevel),
		"rain_level":  formatFloat(reading.RainLevel),
		"risk_score":  formatFloat(reading.RiskScore),
	}
	if reading.RiskLevel != "" {
		data["risk_level"] = reading.RiskLevel
	}
	if reading.TempChangeRate != 0 {
		data["temp_change_rate"] = formatFloat(reading.TempChangeRate)
	}
	if reading.NodeOffline {
		data["node_offline"] = "true"
	}
	if reading.SprinklerStatus != "" {
		data["sprinkler_status"] = reading.SprinklerStatus
	}
	if reading.HotspotDistance != 0 {
		data["hotspot_distance"] = formatFloat(reading.HotspotDistance)
	}
	for k, v := range reading.Extra {
		data[k] = v
	}
	return data
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
