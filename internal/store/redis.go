package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/firewatch/firewatch/internal/types"
)

const (
	alertsKey    = "firewatch:alerts"
	lastFiredKey = "firewatch:lastfired"
)

// RedisStore persists the alert history as a redis list (oldest first) and
// cooldown state as a hash of rule id to RFC3339 timestamp. Lifecycle
// updates rewrite the alert's entry through a per-alert hash index.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redis at addr.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: connecting to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// Client exposes the underlying connection so the reading source can share
// the pool.
func (r *RedisStore) Client() *redis.Client { return r.client }

// AppendAlert implements Store.
func (r *RedisStore) AppendAlert(ctx context.Context, alert types.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("store: encoding alert %s: %w", alert.ID, err)
	}
	pos, err := r.client.RPush(ctx, alertsKey, data).Result()
	if err != nil {
		return fmt.Errorf("store: appending alert %s: %w", alert.ID, err)
	}
	// Remember the list index for later lifecycle updates.
	if err := r.client.HSet(ctx, alertsKey+":index", alert.ID, pos-1).Err(); err != nil {
		return fmt.Errorf("store: indexing alert %s: %w", alert.ID, err)
	}
	return nil
}

// UpdateAlert implements Store.
func (r *RedisStore) UpdateAlert(ctx context.Context, alert types.Alert) error {
	raw, err := r.client.HGet(ctx, alertsKey+":index", alert.ID).Int64()
	if err == redis.Nil {
		return fmt.Errorf("store: unknown alert %s", alert.ID)
	}
	if err != nil {
		return fmt.Errorf("store: locating alert %s: %w", alert.ID, err)
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("store: encoding alert %s: %w", alert.ID, err)
	}
	if err := r.client.LSet(ctx, alertsKey, raw, data).Err(); err != nil {
		return fmt.Errorf("store: updating alert %s: %w", alert.ID, err)
	}
	return nil
}

// History implements Store.
func (r *RedisStore) History(ctx context.Context) ([]types.Alert, error) {
	raws, err := r.client.LRange(ctx, alertsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: loading alert history: %w", err)
	}
	out := make([]types.Alert, 0, len(raws))
	for _, raw := range raws {
		var alert types.Alert
		if err := json.Unmarshal([]byte(raw), &alert); err != nil {
			return nil, fmt.Errorf("store: decoding alert history entry: %w", err)
		}
		out = append(out, alert)
	}
	return out, nil
}

// SetLastFired implements Store.
func (r *RedisStore) SetLastFired(ctx context.Context, ruleID string, t time.Time) error {
	if err := r.client.HSet(ctx, lastFiredKey, ruleID, t.UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("store: persisting last-fired for %s: %w", ruleID, err)
	}
	return nil
}

// LastFired implements Store.
func (r *RedisStore) LastFired(ctx context.Context) (map[string]time.Time, error) {
	entries, err := r.client.HGetAll(ctx, lastFiredKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: loading last-fired times: %w", err)
	}
	out := make(map[string]time.Time, len(entries))
	for ruleID, raw := range entries {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("store: parsing last-fired time for %s: %w", ruleID, err)
		}
		out[ruleID] = t
	}
	return out, nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
