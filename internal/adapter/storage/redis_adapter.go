package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atelier-gallery/atelier/internal/core/domain"
)

const (
	dedupKeyPrefix       = "once:"
	dedupKeyTTL          = 24 * time.Hour
	reconciliationKey    = "reconciliation:pending"
	reconciliationMaxLen = 1000
)

// RedisAdapter covers the two best-effort side channels: once-only marks
// for notification side effects, and the operator reconciliation queue.
// Neither participates in the financial transaction; a Redis outage
// degrades emails and operator visibility, never the ledger.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// MarkOnce returns true the first time it sees key within the TTL window.
func (r *RedisAdapter) MarkOnce(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, dedupKeyPrefix+key, 1, dedupKeyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// Push records a settlement conflict for manual reconciliation. The list
// is capped; conflicts are rare enough that hitting the cap means
// something is systemically wrong and the logs carry the same context.
func (r *RedisAdapter) Push(ctx context.Context, entry domain.ReconciliationEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode reconciliation entry: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, reconciliationKey, payload)
	pipe.LTrim(ctx, reconciliationKey, 0, reconciliationMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push reconciliation entry: %w", err)
	}
	return nil
}

// List returns the newest entries first.
func (r *RedisAdapter) List(ctx context.Context, limit int64) ([]domain.ReconciliationEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := r.client.LRange(ctx, reconciliationKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read reconciliation queue: %w", err)
	}
	entries := make([]domain.ReconciliationEntry, 0, len(raw))
	for _, item := range raw {
		var e domain.ReconciliationEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode reconciliation entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
