package source

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/firewatch/firewatch/internal/types"
)

// ErrNoData indicates the reading log holds no readings yet.
var ErrNoData = errors.New("source: no readings available")

// ReadingSource is the contract against the external, append-only,
// timestamp-ordered reading log.
type ReadingSource interface {
	// Latest returns the most recent reading, or ErrNoData.
	Latest(ctx context.Context) (*types.Reading, error)
	// Since returns up to limit readings with a timestamp strictly after t,
	// newest first.
	Since(ctx context.Context, t time.Time, limit int) ([]types.Reading, error)
}

// MemorySource is an in-memory reading log for tests and redis-less
// deployments. The ingestion side appends; the poller reads.
type MemorySource struct {
	mu       sync.RWMutex
	readings []types.Reading
}

// NewMemorySource creates an empty in-memory reading log.
func NewMemorySource() *MemorySource {
	return &MemorySource{}
}

// Append adds a reading to the log.
func (m *MemorySource) Append(reading types.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, reading)
	sort.SliceStable(m.readings, func(i, j int) bool {
		return m.readings[i].Timestamp.Before(m.readings[j].Timestamp)
	})
}

// Latest implements ReadingSource.
func (m *MemorySource) Latest(ctx context.Context) (*types.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.readings) == 0 {
		return nil, ErrNoData
	}
	r := m.readings[len(m.readings)-1]
	return &r, nil
}

// Since implements ReadingSource.
func (m *MemorySource) Since(ctx context.Context, t time.Time, limit int) ([]types.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Reading
	for i := len(m.readings) - 1; i >= 0 && len(out) < limit; i-- {
		if m.readings[i].Timestamp.After(t) {
			out = append(out, m.readings[i])
		}
	}
	return out, nil
}
