package gateway

import (
	"sync"
	"time"
)

// ClientRateLimiter implements sliding window rate limiting for one client
type ClientRateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	requests          []time.Time
	inFlight          int
	now               func() time.Time
}

// NewClientRateLimiter creates a limiter sized for LLM-backed planning
func NewClientRateLimiter() *ClientRateLimiter {
	return NewClientRateLimiterWithLimits(20, 2)
}

// NewClientRateLimiterWithLimits creates a rate limiter with custom limits
func NewClientRateLimiterWithLimits(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		now:               time.Now,
	}
}

// TryStart admits a request if both limits allow it. The caller must call
// Finish once the admitted request completes.
func (r *ClientRateLimiter) TryStart() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight >= r.maxConcurrent {
		return false, "too many concurrent requests"
	}

	r.prune()
	if len(r.requests) >= r.requestsPerMinute {
		return false, "rate limit exceeded"
	}

	r.requests = append(r.requests, r.now())
	r.inFlight++
	return true, ""
}

// Finish releases a slot taken by TryStart
func (r *ClientRateLimiter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight > 0 {
		r.inFlight--
	}
}

// Stats returns the requests in the current window and the in-flight count
func (r *ClientRateLimiter) Stats() (requests, inFlight int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	return len(r.requests), r.inFlight
}

func (r *ClientRateLimiter) idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	return r.inFlight == 0 && len(r.requests) == 0
}

// prune drops requests older than one minute; callers hold mu
func (r *ClientRateLimiter) prune() {
	cutoff := r.now().Add(-time.Minute)
	kept := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.requests = kept
}

// RateLimiterPool keeps one limiter per remote address
type RateLimiterPool struct {
	mu                sync.Mutex
	limiters          map[string]*ClientRateLimiter
	requestsPerMinute int
	maxConcurrent     int
}

// NewRateLimiterPool creates a pool; non-positive limits fall back to the defaults
func NewRateLimiterPool(requestsPerMinute, maxConcurrent int) *RateLimiterPool {
	def := NewClientRateLimiter()
	if requestsPerMinute <= 0 {
		requestsPerMinute = def.requestsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = def.maxConcurrent
	}
	return &RateLimiterPool{
		limiters:          make(map[string]*ClientRateLimiter),
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
	}
}

// Get returns the limiter for key, creating it on first use
func (p *RateLimiterPool) Get(key string) *ClientRateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[key]
	if !ok {
		if len(p.limiters) > 1024 {
			p.sweep()
		}
		l = NewClientRateLimiterWithLimits(p.requestsPerMinute, p.maxConcurrent)
		p.limiters[key] = l
	}
	return l
}

// sweep drops idle limiters; callers hold mu
func (p *RateLimiterPool) sweep() {
	for k, l := range p.limiters {
		if l.idle() {
			delete(p.limiters, k)
		}
	}
}
