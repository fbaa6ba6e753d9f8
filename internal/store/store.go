package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/firewatch/firewatch/internal/types"
)

// Store is the durable, append-only alert ledger plus per-rule cooldown
// state. The active-alert index and cooldowns are rebuilt from it on
// restart.
type Store interface {
	// AppendAlert appends an alert to the permanent history log.
	AppendAlert(ctx context.Context, alert types.Alert) error
	// UpdateAlert rewrites an alert's history entry after a lifecycle
	// transition.
	UpdateAlert(ctx context.Context, alert types.Alert) error
	// History returns the full alert history, oldest first.
	History(ctx context.Context) ([]types.Alert, error)
	// SetLastFired records when a rule last fired.
	SetLastFired(ctx context.Context, ruleID string, t time.Time) error
	// LastFired returns last-fired times for every rule that ever fired.
	LastFired(ctx context.Context) (map[string]time.Time, error)
	// Close releases any underlying resources.
	Close() error
}

// MemoryStore keeps the ledger in process memory. State does not survive
// restarts; used in tests and redis-less deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	history   []types.Alert
	index     map[string]int
	lastFired map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index:     make(map[string]int),
		lastFired: make(map[string]time.Time),
	}
}

// AppendAlert implements Store.
func (m *MemoryStore) AppendAlert(ctx context.Context, alert types.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index[alert.ID] = len(m.history)
	m.history = append(m.history, alert)
	return nil
}

// UpdateAlert implements Store.
func (m *MemoryStore) UpdateAlert(ctx context.Context, alert types.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[alert.ID]
	if !ok {
		return fmt.Errorf("store: unknown alert %s", alert.ID)
	}
	m.history[i] = alert
	return nil
}

// History implements Store.
func (m *MemoryStore) History(ctx context.Context) ([]types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Alert, len(m.history))
	copy(out, m.history)
	return out, nil
}

// SetLastFired implements Store.
func (m *MemoryStore) SetLastFired(ctx context.Context, ruleID string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFired[ruleID] = t
	return nil
}

// LastFired implements Store.
func (m *MemoryStore) LastFired(ctx context.Context) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]time.Time, len(m.lastFired))
	for k, v := range m.lastFired {
		out[k] = v
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
