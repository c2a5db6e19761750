package llm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultHealthTTL = 30 * time.Second

// HealthChecker probes gateways with GET /models and remembers the answer
// for a TTL. Concurrent checks of the same gateway share one probe.
type HealthChecker struct {
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	results map[string]healthResult
}

type healthResult struct {
	err       error
	checkedAt time.Time
}

func NewHealthChecker(ttl time.Duration) *HealthChecker {
	if ttl <= 0 {
		ttl = DefaultHealthTTL
	}
	return &HealthChecker{ttl: ttl, now: time.Now, results: make(map[string]healthResult)}
}

// Check returns nil when the client's gateway answered its last probe.
func (h *HealthChecker) Check(ctx context.Context, c *Client) error {
	key := c.BaseURL()
	if r, ok := h.cached(key); ok {
		return r.err
	}

	_, err, _ := h.group.Do(key, func() (any, error) {
		if r, ok := h.cached(key); ok {
			return nil, r.err
		}
		_, err := c.Models(ctx)
		h.mu.Lock()
		h.results[key] = healthResult{err: err, checkedAt: h.now()}
		h.mu.Unlock()
		return nil, err
	})
	return err
}

func (h *HealthChecker) cached(key string) (healthResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.results[key]
	if !ok || h.now().Sub(r.checkedAt) > h.ttl {
		return healthResult{}, false
	}
	return r, true
}

// Reset forgets every probe result.
func (h *HealthChecker) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = make(map[string]healthResult)
}
