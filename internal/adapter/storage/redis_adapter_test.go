package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atelier-gallery/atelier/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestMarkOnce_FirstWins(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	key := fmt.Sprintf("test-mark-%d", time.Now().UnixNano())
	t.Cleanup(func() { client.Del(ctx, dedupKeyPrefix+key) })

	first, err := adapter.MarkOnce(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Error("expected first mark to win")
	}

	second, err := adapter.MarkOnce(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second {
		t.Error("expected second mark to lose")
	}
}

func TestMarkOnce_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	key := fmt.Sprintf("test-mark-concurrent-%d", time.Now().UnixNano())
	t.Cleanup(func() { client.Del(ctx, dedupKeyPrefix+key) })

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := adapter.MarkOnce(ctx, key)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if first {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins.Load())
	}
}

func TestReconciliation_PushAndList(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// The queue is shared state; snapshot the head before and after.
	marker := fmt.Sprintf("test-conflict-%d", time.Now().UnixNano())
	entry := domain.ReconciliationEntry{
		Rail:        domain.RailCard,
		ItemID:      "item-1",
		OrderID:     marker,
		ProviderRef: "pi_123",
		Reason:      "item is HIDDEN after remote charge",
		At:          time.Now(),
	}
	if err := adapter.Push(ctx, entry); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	t.Cleanup(func() { client.LRem(ctx, reconciliationKey, 0, mustJSON(t, entry)) })

	entries, err := adapter.List(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one entry")
	}
	// Newest first.
	got := entries[0]
	if got.OrderID != marker || got.Rail != domain.RailCard || got.ProviderRef != "pi_123" {
		t.Errorf("unexpected head entry: %+v", got)
	}
}

func mustJSON(t *testing.T, entry domain.ReconciliationEntry) string {
	t.Helper()
	raw, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}
