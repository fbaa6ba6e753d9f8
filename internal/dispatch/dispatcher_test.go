package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/types"
)

// stubSender is a scriptable channel sender.
type stubSender struct {
	channel types.Channel
	outcome types.DispatchOutcome
	delay   time.Duration
	panics  bool
	calls   int
}

func (s *stubSender) Channel() types.Channel { return s.channel }

func (s *stubSender) Send(ctx context.Context, alert types.Alert) types.DispatchOutcome {
	s.calls++
	if s.panics {
		panic("sender exploded")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return types.DispatchOutcome{Error: ctx.Err().Error()}
		}
	}
	return s.outcome
}

func dispatchAlert(channels ...types.Channel) types.Alert {
	return types.Alert{
		ID:       "ALERT-test0001",
		RuleID:   "critical_risk",
		Title:    "Critical Fire Risk",
		Message:  "test",
		Priority: types.PriorityCritical,
		Channels: channels,
	}
}

func outcomeFor(t *testing.T, outcomes []types.DispatchOutcome, ch types.Channel) types.DispatchOutcome {
	t.Helper()
	for _, o := range outcomes {
		if o.Channel == ch {
			return o
		}
	}
	t.Fatalf("no outcome for channel %s in %v", ch, outcomes)
	return types.DispatchOutcome{}
}

func TestDispatchFansOutToAllChannels(t *testing.T) {
	email := &stubSender{channel: types.ChannelEmail, outcome: types.DispatchOutcome{Delivered: true}}
	sms := &stubSender{channel: types.ChannelSMS, outcome: types.DispatchOutcome{Delivered: true}}

	d := NewDispatcher([]Sender{email, sms}, zerolog.Nop())
	outcomes := d.Dispatch(context.Background(), dispatchAlert(
		types.ChannelEmail, types.ChannelSMS, types.ChannelDashboard))

	if len(outcomes) != 3 {
		t.Fatalf("%d outcomes, want 3", len(outcomes))
	}
	if email.calls != 1 || sms.calls != 1 {
		t.Errorf("sender calls: email %d, sms %d, want 1 each", email.calls, sms.calls)
	}
	if o := outcomeFor(t, outcomes, types.ChannelDashboard); !o.Delivered {
		t.Errorf("dashboard outcome not delivered: %+v", o)
	}
}

func TestDispatchIsolatesFailingChannel(t *testing.T) {
	email := &stubSender{channel: types.ChannelEmail, outcome: types.DispatchOutcome{Error: "smtp down"}}
	sms := &stubSender{channel: types.ChannelSMS, outcome: types.DispatchOutcome{Delivered: true}}

	d := NewDispatcher([]Sender{email, sms}, zerolog.Nop())
	outcomes := d.Dispatch(context.Background(), dispatchAlert(types.ChannelEmail, types.ChannelSMS))

	if o := outcomeFor(t, outcomes, types.ChannelEmail); o.Delivered || o.Error == "" {
		t.Errorf("email outcome = %+v, want failure", o)
	}
	if o := outcomeFor(t, outcomes, types.ChannelSMS); !o.Delivered {
		t.Errorf("sms outcome = %+v, want delivered despite email failure", o)
	}
}

func TestDispatchContainsPanickingSender(t *testing.T) {
	bad := &stubSender{channel: types.ChannelPush, panics: true}
	good := &stubSender{channel: types.ChannelEmail, outcome: types.DispatchOutcome{Delivered: true}}

	d := NewDispatcher([]Sender{bad, good}, zerolog.Nop())
	outcomes := d.Dispatch(context.Background(), dispatchAlert(types.ChannelPush, types.ChannelEmail))

	o := outcomeFor(t, outcomes, types.ChannelPush)
	if o.Delivered || !strings.Contains(o.Error, "panic") {
		t.Errorf("panicking sender outcome = %+v, want panic error", o)
	}
	if o := outcomeFor(t, outcomes, types.ChannelEmail); !o.Delivered {
		t.Errorf("email outcome = %+v, want delivered", o)
	}
}

func TestDispatchUnconfiguredChannelSkipped(t *testing.T) {
	d := NewDispatcher(nil, zerolog.Nop())
	outcomes := d.Dispatch(context.Background(), dispatchAlert(types.ChannelSiren))

	o := outcomeFor(t, outcomes, types.ChannelSiren)
	if !o.Skipped {
		t.Errorf("outcome = %+v, want skipped", o)
	}
}

func TestDispatchSendTimeout(t *testing.T) {
	slow := &stubSender{
		channel: types.ChannelWebhook,
		delay:   time.Second,
		outcome: types.DispatchOutcome{Delivered: true},
	}
	d := NewDispatcher([]Sender{slow}, zerolog.Nop(), WithSendTimeout(20*time.Millisecond))

	start := time.Now()
	outcomes := d.Dispatch(context.Background(), dispatchAlert(types.ChannelWebhook))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("dispatch took %v, timeout not applied", elapsed)
	}

	if o := outcomeFor(t, outcomes, types.ChannelWebhook); o.Delivered {
		t.Errorf("outcome = %+v, want timeout failure", o)
	}
}

func TestDispatchStormGuardSuppression(t *testing.T) {
	email := &stubSender{channel: types.ChannelEmail, outcome: types.DispatchOutcome{Delivered: true}}
	guard := NewStormGuard(zerolog.Nop(), 2, time.Minute)
	d := NewDispatcher([]Sender{email}, zerolog.Nop(), WithStormGuard(guard))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		o := outcomeFor(t, d.Dispatch(ctx, dispatchAlert(types.ChannelEmail)), types.ChannelEmail)
		if !o.Delivered {
			t.Fatalf("send %d: outcome = %+v, want delivered", i, o)
		}
	}

	o := outcomeFor(t, d.Dispatch(ctx, dispatchAlert(types.ChannelEmail)), types.ChannelEmail)
	if !o.Skipped {
		t.Fatalf("third send outcome = %+v, want storm guard skip", o)
	}
	if email.calls != 2 {
		t.Errorf("sender called %d times, want 2", email.calls)
	}
}

type stubSirenClient struct {
	activations int
	err         error
}

func (c *stubSirenClient) Activate(context.Context, types.Alert) error {
	c.activations++
	return c.err
}

func TestSirenOnlySoundsForHighAndCritical(t *testing.T) {
	client := &stubSirenClient{}
	siren := NewSirenSender(client, zerolog.Nop())
	ctx := context.Background()

	for _, priority := range []types.Priority{types.PriorityLow, types.PriorityMedium} {
		alert := dispatchAlert(types.ChannelSiren)
		alert.Priority = priority
		o := siren.Send(ctx, alert)
		if !o.Delivered {
			t.Errorf("%s alert outcome = %+v, want delivered no-op", priority, o)
		}
	}
	if client.activations != 0 {
		t.Fatalf("siren activated %d times for low priorities", client.activations)
	}

	for _, priority := range []types.Priority{types.PriorityHigh, types.PriorityCritical} {
		alert := dispatchAlert(types.ChannelSiren)
		alert.Priority = priority
		if o := siren.Send(ctx, alert); !o.Delivered {
			t.Errorf("%s alert outcome = %+v, want delivered", priority, o)
		}
	}
	if client.activations != 2 {
		t.Fatalf("siren activated %d times, want 2", client.activations)
	}
}

func TestSirenReportsHardwareFailure(t *testing.T) {
	client := &stubSirenClient{err: errors.New("controller unreachable")}
	siren := NewSirenSender(client, zerolog.Nop())

	o := siren.Send(context.Background(), dispatchAlert(types.ChannelSiren))
	if o.Delivered || o.Error == "" {
		t.Errorf("outcome = %+v, want failure", o)
	}
}
