// Package cache memoizes Technician Matcher rankings behind Redis, so a
// burst of repeat searches for the same job (dashboard polling, a
// Twilio webhook retry) doesn't re-run the weighted-sum scan over every
// worker on each request.
//
// Grounded on sady37-owlBack/owl-common/redis/client.go's
// go-redis/redis/v8 client construction (Addr/Password/DB options,
// context-scoped Ping/Close) — kept HOW, added the ranking-specific
// key/TTL/JSON-encoding layer this concern needs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fieldopsvoice/dispatch/internal/matcher"
)

// NewClient builds the shared Redis client from config.Config.RedisAddr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Ranking is the cached slice of a matcher.Rank result, keyed by
// worker ID so the caller can re-hydrate full Worker records from
// whatever fresh list it already fetched.
type Ranking struct {
	WorkerID string  `json:"worker_id"`
	Score    float64 `json:"score"`
}

// Cache wraps a redis.Client with the ranking-specific key scheme and
// TTL. A nil Client makes every method a safe no-op cache miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

func key(tenantID, jobID, departmentID string) string {
	return fmt.Sprintf("matcher:ranking:%s:%s:%s", tenantID, jobID, departmentID)
}

// Get returns the cached ranking for a job's candidate search, if any.
func (c *Cache) Get(ctx context.Context, tenantID, jobID, departmentID string) ([]Ranking, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key(tenantID, jobID, departmentID)).Bytes()
	if err != nil {
		return nil, false
	}
	var rankings []Ranking
	if err := json.Unmarshal(raw, &rankings); err != nil {
		return nil, false
	}
	return rankings, true
}

// Set stores a fresh matcher.Rank result for reuse within the TTL.
func (c *Cache) Set(ctx context.Context, tenantID, jobID, departmentID string, candidates []matcher.Candidate) {
	if c == nil || c.client == nil {
		return
	}
	rankings := make([]Ranking, len(candidates))
	for i, cand := range candidates {
		rankings[i] = Ranking{WorkerID: cand.Worker.ID, Score: cand.Score}
	}
	raw, err := json.Marshal(rankings)
	if err != nil {
		return
	}
	c.client.Set(ctx, key(tenantID, jobID, departmentID), raw, c.ttl)
}

// Invalidate drops a cached ranking, called after a booking makes it
// stale (a worker's availability/workload changed).
func (c *Cache) Invalidate(ctx context.Context, tenantID, jobID, departmentID string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, key(tenantID, jobID, departmentID))
}
