package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory. Buckets
// refill at Limit/Window and hold at most Limit tokens. Idle keys are evicted
// by Cleanup, which Run calls periodically.
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryLimiter creates a limiter that forgets keys idle for longer than ttl.
func NewMemoryLimiter(ttl time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		visitors: make(map[string]*visitor),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, policy Policy, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	v, ok := m.visitors[key]
	if !ok {
		every := rate.Every(policy.Window / time.Duration(max(policy.Limit, 1)))
		v = &visitor{limiter: rate.NewLimiter(every, policy.Limit)}
		m.visitors[key] = v
	}
	v.lastSeen = now

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return Decision{Allowed: false, RetryAfter: policy.Window}, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}

	return Decision{Allowed: true, Remaining: int(v.limiter.TokensAt(now))}, nil
}

// Cleanup evicts keys not seen within the ttl.
func (m *MemoryLimiter) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, v := range m.visitors {
		if now.Sub(v.lastSeen) > m.ttl {
			delete(m.visitors, k)
		}
	}
}

// Run calls Cleanup every ttl until ctx is done.
func (m *MemoryLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

func (m *MemoryLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visitors)
}
