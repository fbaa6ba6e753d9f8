package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/firewatch/firewatch/internal/types"
)

const readingsKey = "firewatch:readings"

// RedisSource reads the ingestion layer's reading log from a redis list.
// The ingestion side LPUSHes JSON-encoded readings, so index 0 is always
// the newest sample.
type RedisSource struct {
	client *redis.Client
}

// NewRedisSource connects to the reading log at addr.
func NewRedisSource(ctx context.Context, addr string) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("source: connecting to redis at %s: %w", addr, err)
	}
	return &RedisSource{client: client}, nil
}

// NewRedisSourceFromClient wraps an existing client, sharing the connection
// pool with the alert store.
func NewRedisSourceFromClient(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

// Latest implements ReadingSource.
func (r *RedisSource) Latest(ctx context.Context) (*types.Reading, error) {
	raw, err := r.client.LIndex(ctx, readingsKey, 0).Result()
	if err == redis.Nil {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("source: fetching latest reading: %w", err)
	}
	var reading types.Reading
	if err := json.Unmarshal([]byte(raw), &reading); err != nil {
		return nil, fmt.Errorf("source: decoding reading: %w", err)
	}
	return &reading, nil
}

// Since implements ReadingSource. The log is newest-first, so the scan
// stops at the first reading at or before t.
func (r *RedisSource) Since(ctx context.Context, t time.Time, limit int) ([]types.Reading, error) {
	// Scan in pages; readings after t sit at the head of the list.
	const page = 32
	var out []types.Reading
	for start := int64(0); len(out) < limit; start += page {
		raws, err := r.client.LRange(ctx, readingsKey, start, start+page-1).Result()
		if err != nil {
			return nil, fmt.Errorf("source: scanning readings: %w", err)
		}
		if len(raws) == 0 {
			break
		}
		for _, raw := range raws {
			var reading types.Reading
			if err := json.Unmarshal([]byte(raw), &reading); err != nil {
				return nil, fmt.Errorf("source: decoding reading: %w", err)
			}
			if !reading.Timestamp.After(t) {
				return out, nil
			}
			out = append(out, reading)
			if len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Close releases the redis connection.
func (r *RedisSource) Close() error {
	return r.client.Close()
}
