package main

import (
	"context"
	"strings"
	"sync"
)

// memoryQuotaRepo backs the rate limiter when ClickHouse is disabled.
// Counters do not survive restarts in this mode.
type memoryQuotaRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemoryQuotaRepo() *memoryQuotaRepo {
	return &memoryQuotaRepo{counts: make(map[string]int)}
}

func (r *memoryQuotaRepo) key(scope, bucket, identity string) string {
	return scope + "|" + bucket + "|" + identity
}

func (r *memoryQuotaRepo) Count(_ context.Context, scope, bucket, identity string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[r.key(scope, bucket, identity)], nil
}

func (r *memoryQuotaRepo) Increment(_ context.Context, scope, bucket, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[r.key(scope, bucket, identity)]++
	return nil
}

func (r *memoryQuotaRepo) Cleanup(_ context.Context, beforeDay string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.counts {
		parts := strings.SplitN(key, "|", 3)
		// Month buckets ("2006-01") are shorter and never match a day cutoff.
		if len(parts) == 3 && len(parts[1]) == len(beforeDay) && parts[1] < beforeDay {
			delete(r.counts, key)
		}
	}
	return nil
}
