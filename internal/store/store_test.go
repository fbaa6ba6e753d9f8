package store

import (
	"context"
	"testing"
	"time"

	"github.com/firewatch/firewatch/internal/types"
)

func TestMemoryStoreHistoryAndUpdate(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"ALERT-1", "ALERT-2"} {
		err := st.AppendAlert(ctx, types.Alert{
			ID:        id,
			RuleID:    "high_risk",
			Priority:  types.PriorityHigh,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendAlert(%s): %v", id, err)
		}
	}

	updated := types.Alert{ID: "ALERT-1", RuleID: "high_risk", Priority: types.PriorityHigh, CreatedAt: base, Resolved: true, ResolvedBy: "ops"}
	if err := st.UpdateAlert(ctx, updated); err != nil {
		t.Fatalf("UpdateAlert: %v", err)
	}

	history, err := st.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("%d history entries, want 2", len(history))
	}
	if history[0].ID != "ALERT-1" || !history[0].Resolved {
		t.Errorf("history[0] = %+v, want updated ALERT-1 first", history[0])
	}
	if history[1].Resolved {
		t.Errorf("update leaked onto ALERT-2: %+v", history[1])
	}
}

func TestMemoryStoreUpdateUnknownAlert(t *testing.T) {
	st := NewMemoryStore()
	if err := st.UpdateAlert(context.Background(), types.Alert{ID: "ALERT-missing"}); err == nil {
		t.Fatal("UpdateAlert succeeded for unknown alert")
	}
}

func TestMemoryStoreLastFired(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := st.SetLastFired(ctx, "critical_risk", ts); err != nil {
		t.Fatalf("SetLastFired: %v", err)
	}

	fired, err := st.LastFired(ctx)
	if err != nil {
		t.Fatalf("LastFired: %v", err)
	}
	if got, ok := fired["critical_risk"]; !ok || !got.Equal(ts) {
		t.Errorf("LastFired = %v", fired)
	}
}
