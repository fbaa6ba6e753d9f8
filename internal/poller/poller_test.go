package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/config"
	"github.com/firewatch/firewatch/internal/rules"
	"github.com/firewatch/firewatch/internal/source"
	"github.com/firewatch/firewatch/internal/types"
)

var testBase = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		CheckInterval: 10 * time.Second,
		PreFilter: config.PreFilterConfig{
			RiskThreshold:  75,
			SmokeThreshold: 2500,
		},
	}
}

func testEngine() *rules.Engine {
	return rules.NewEngine(rules.DefaultRules(75, 2500), zerolog.Nop())
}

type alertCollector struct {
	alerts []types.Alert
	err    error
}

func (c *alertCollector) handle(_ context.Context, alert types.Alert) error {
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

func reading(at time.Time, risk, smoke float64) types.Reading {
	return types.Reading{
		Timestamp:   at,
		Temperature: 38,
		Humidity:    15,
		SmokeLevel:  smoke,
		RiskScore:   risk,
	}
}

func TestPollOnceProcessesEachReadingOnce(t *testing.T) {
	src := source.NewMemorySource()
	collected := &alertCollector{}
	p := NewPoller(src, testEngine(), collected.handle, testMonitorConfig(), zerolog.Nop(),
		WithCursor(testBase))

	src.Append(reading(testBase.Add(time.Second), 80, 0))
	ctx := context.Background()

	if err := p.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	first := len(collected.alerts)
	if first == 0 {
		t.Fatal("high-risk reading fired no alerts")
	}

	// A second cycle with no new readings must not reprocess.
	if err := p.PollOnce(ctx); err != nil {
		t.Fatalf("second PollOnce: %v", err)
	}
	if len(collected.alerts) != first {
		t.Fatalf("reading processed twice: %d alerts, then %d", first, len(collected.alerts))
	}
}

func TestPollOnceProcessesBacklogInArrivalOrder(t *testing.T) {
	src := source.NewMemorySource()
	// Rules that fire on every reading make arrival order observable
	// through the alert context.
	engine := rules.NewEngine([]types.AlertRule{{
		ID:        "any",
		Name:      "Any Reading",
		Condition: "risk_score >= 0",
		Priority:  types.PriorityLow,
		Channels:  []types.Channel{types.ChannelDashboard},
		Enabled:   true,
	}}, zerolog.Nop())

	collected := &alertCollector{}
	cfg := testMonitorConfig()
	cfg.PreFilter = config.PreFilterConfig{} // disable the gate
	p := NewPoller(src, engine, collected.handle, cfg, zerolog.Nop(), WithCursor(testBase))

	src.Append(reading(testBase.Add(2*time.Second), 90, 0))
	src.Append(reading(testBase.Add(1*time.Second), 80, 0))

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(collected.alerts) != 2 {
		t.Fatalf("fired %d alerts, want 2", len(collected.alerts))
	}
	if collected.alerts[0].Context["risk_score"] != "80" {
		t.Errorf("first alert risk = %s, want 80 (oldest reading first)",
			collected.alerts[0].Context["risk_score"])
	}
}

func TestPollOncePreFiltersSafeReadings(t *testing.T) {
	src := source.NewMemorySource()
	// This rule matches the reading below, but the pre-filter gates the
	// reading out before evaluation.
	engine := rules.NewEngine([]types.AlertRule{{
		ID:        "hot",
		Name:      "Hot",
		Condition: "temperature > 30",
		Priority:  types.PriorityLow,
		Channels:  []types.Channel{types.ChannelDashboard},
		Enabled:   true,
	}}, zerolog.Nop())

	collected := &alertCollector{}
	p := NewPoller(src, engine, collected.handle, testMonitorConfig(), zerolog.Nop(),
		WithCursor(testBase))

	src.Append(reading(testBase.Add(time.Second), 10, 100))

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(collected.alerts) != 0 {
		t.Fatalf("pre-filtered reading fired %d alerts", len(collected.alerts))
	}

	// A reading over the smoke threshold passes the gate.
	src.Append(reading(testBase.Add(2*time.Second), 10, 3000))
	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("second PollOnce: %v", err)
	}
	if len(collected.alerts) != 1 {
		t.Fatalf("smoky reading fired %d alerts, want 1", len(collected.alerts))
	}
}

func TestPollOnceRetriesAfterHandlerFailure(t *testing.T) {
	src := source.NewMemorySource()
	collected := &alertCollector{err: errors.New("store unavailable")}
	p := NewPoller(src, testEngine(), collected.handle, testMonitorConfig(), zerolog.Nop(),
		WithCursor(testBase))

	src.Append(reading(testBase.Add(time.Second), 80, 0))
	ctx := context.Background()

	if err := p.PollOnce(ctx); err == nil {
		t.Fatal("PollOnce succeeded despite handler failure")
	}

	// The cursor must not have advanced past the failed reading. The
	// rule is now in cooldown, so verify redelivery through the handler
	// after clearing the failure with a fresh engine.
	collected.err = nil
	p.engine = testEngine()
	if err := p.PollOnce(ctx); err != nil {
		t.Fatalf("retry PollOnce: %v", err)
	}
	if len(collected.alerts) == 0 {
		t.Fatal("failed reading was not redelivered")
	}
}

func TestTriggerManualCheck(t *testing.T) {
	src := source.NewMemorySource()
	collected := &alertCollector{}
	p := NewPoller(src, testEngine(), collected.handle, testMonitorConfig(), zerolog.Nop(),
		WithCursor(testBase))
	ctx := context.Background()

	// No readings at all.
	if _, _, err := p.TriggerManualCheck(ctx); !errors.Is(err, source.ErrNoData) {
		t.Fatalf("TriggerManualCheck on empty log: err = %v, want ErrNoData", err)
	}

	src.Append(reading(testBase.Add(time.Second), 80, 0))

	got, alerts, err := p.TriggerManualCheck(ctx)
	if err != nil {
		t.Fatalf("TriggerManualCheck: %v", err)
	}
	if got.RiskScore != 80 {
		t.Errorf("returned reading risk = %v, want 80", got.RiskScore)
	}
	if len(alerts) == 0 {
		t.Fatal("manual check fired no alerts for high-risk reading")
	}
	if len(collected.alerts) != len(alerts) {
		t.Errorf("handler saw %d alerts, trigger returned %d", len(collected.alerts), len(alerts))
	}
}

func TestTriggerManualCheckAdvancesCursor(t *testing.T) {
	src := source.NewMemorySource()
	// Zero cooldown means any reprocessing of the same reading would
	// fire a second alert.
	engine := rules.NewEngine([]types.AlertRule{{
		ID:        "sprinkler_activated",
		Name:      "Sprinkler Activated",
		Condition: "sprinkler_status == 'on'",
		Priority:  types.PriorityHigh,
		Channels:  []types.Channel{types.ChannelDashboard},
		Cooldown:  0,
		Enabled:   true,
	}}, zerolog.Nop())

	collected := &alertCollector{}
	cfg := testMonitorConfig()
	cfg.PreFilter = config.PreFilterConfig{}
	p := NewPoller(src, engine, collected.handle, cfg, zerolog.Nop(), WithCursor(testBase))

	r := reading(testBase.Add(time.Second), 80, 0)
	r.SprinklerStatus = "on"
	src.Append(r)
	ctx := context.Background()

	if _, alerts, err := p.TriggerManualCheck(ctx); err != nil {
		t.Fatalf("TriggerManualCheck: %v", err)
	} else if len(alerts) != 1 {
		t.Fatalf("manual check fired %d alerts, want 1", len(alerts))
	}

	// The scheduled loop must not see the already-handled reading again.
	if err := p.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(collected.alerts) != 1 {
		t.Fatalf("sprinkler_activated fired %d times for one reading, want 1", len(collected.alerts))
	}
	if got := p.Status().LastProcessed; !got.Equal(r.Timestamp) {
		t.Errorf("cursor = %v, want %v", got, r.Timestamp)
	}
}

func TestTriggerManualCheckHandlerFailureKeepsCursor(t *testing.T) {
	src := source.NewMemorySource()
	collected := &alertCollector{err: errors.New("store unavailable")}
	cfg := testMonitorConfig()
	p := NewPoller(src, testEngine(), collected.handle, cfg, zerolog.Nop(), WithCursor(testBase))

	src.Append(reading(testBase.Add(time.Second), 80, 0))
	ctx := context.Background()

	if _, _, err := p.TriggerManualCheck(ctx); err == nil {
		t.Fatal("TriggerManualCheck succeeded despite handler failure")
	}
	if got := p.Status().LastProcessed; !got.Equal(testBase) {
		t.Errorf("cursor moved to %v after failed check, want %v", got, testBase)
	}

	// The loop redelivers once the failure clears.
	collected.err = nil
	p.engine = testEngine()
	if err := p.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(collected.alerts) == 0 {
		t.Fatal("failed reading was not redelivered by the loop")
	}
}

func TestSetInterval(t *testing.T) {
	p := NewPoller(source.NewMemorySource(), testEngine(), nil, testMonitorConfig(), zerolog.Nop())

	if err := p.SetInterval(2 * time.Second); err == nil {
		t.Error("SetInterval accepted an interval below the minimum")
	}
	if err := p.SetInterval(30 * time.Second); err != nil {
		t.Fatalf("SetInterval(30s): %v", err)
	}
	if got := p.Interval(); got != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", got)
	}
	if got := p.Status().CheckInterval; got != 30*time.Second {
		t.Errorf("Status().CheckInterval = %v, want 30s", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := source.NewMemorySource()
	cfg := testMonitorConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	p := NewPoller(src, testEngine(), (&alertCollector{}).handle, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// Let at least one cycle run.
	time.Sleep(30 * time.Millisecond)
	if !p.Status().IsRunning {
		t.Error("poller not marked running")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if p.Status().IsRunning {
		t.Error("poller still marked running after stop")
	}
}
