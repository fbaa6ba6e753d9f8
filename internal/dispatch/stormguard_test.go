package dispatch

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/types"
)

func TestStormGuardWindowSlides(t *testing.T) {
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	guard := NewStormGuard(zerolog.Nop(), 3, 5*time.Minute)
	guard.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		if !guard.Allow(types.ChannelEmail) {
			t.Fatalf("send %d disallowed under the limit", i)
		}
		guard.Record(types.ChannelEmail)
	}

	if guard.Allow(types.ChannelEmail) {
		t.Fatal("fourth send allowed inside the window")
	}
	if !guard.Suppressed(types.ChannelEmail) {
		t.Error("channel not marked suppressed")
	}

	// Other channels are unaffected.
	if !guard.Allow(types.ChannelSMS) {
		t.Error("unrelated channel suppressed")
	}

	// Once the window slides past the old sends, the channel recovers.
	current = current.Add(6 * time.Minute)
	if !guard.Allow(types.ChannelEmail) {
		t.Fatal("send disallowed after the window slid past")
	}
	if guard.Suppressed(types.ChannelEmail) {
		t.Error("suppression not lifted after recovery")
	}
}

func TestStormGuardCountsOnlyRecordedSends(t *testing.T) {
	guard := NewStormGuard(zerolog.Nop(), 1, time.Minute)

	// Allow checks without Record must not consume budget.
	for i := 0; i < 5; i++ {
		if !guard.Allow(types.ChannelPush) {
			t.Fatalf("check %d disallowed with no recorded sends", i)
		}
	}

	guard.Record(types.ChannelPush)
	if guard.Allow(types.ChannelPush) {
		t.Fatal("send allowed after budget consumed")
	}
}
