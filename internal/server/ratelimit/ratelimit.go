// Package ratelimit provides per-client token-bucket rate limiting for the
// API. Starting pipeline runs is expensive, so run endpoints get much
// stricter limits than reads.
package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Info describes the limit state returned with every decision, used for
// X-RateLimit response headers.
type Info struct {
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	lastUsed   time.Time
}

func newBucket(limit int, window time.Duration, burst int) *bucket {
	capacity := float64(limit)
	if burst > 0 {
		capacity = float64(burst)
	}
	now := time.Now()
	return &bucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: float64(limit) / window.Seconds(),
		lastRefill: now,
		lastUsed:   now,
	}
}

func (b *bucket) take() (bool, Info) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
	b.lastUsed = now

	info := Info{Limit: int(b.capacity)}
	if b.tokens >= 1 {
		b.tokens--
		info.Remaining = int(b.tokens)
		info.ResetTime = now.Add(time.Duration((b.capacity - b.tokens) / b.refillRate * float64(time.Second)))
		return true, info
	}
	wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
	info.ResetTime = now.Add(wait)
	info.RetryAfter = wait
	return false, info
}

// Limiter keys buckets by client and endpoint rule.
type Limiter struct {
	config *Config

	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	stopped bool
}

// NewLimiter builds a limiter and starts its idle-bucket cleanup loop.
func NewLimiter(config *Config) *Limiter {
	l := &Limiter{
		config:  config,
		buckets: map[string]*bucket{},
		stop:    make(chan struct{}),
	}
	if config.Enabled {
		go l.cleanupLoop()
	}
	return l
}

// Allow decides whether the client may hit the endpoint now.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || path == "/health" {
		return true, Info{}
	}

	limit, window, burst := l.config.DefaultLimit, l.config.DefaultWindow, 0
	rule := "default"
	for _, ec := range l.config.Endpoints {
		if ec.Method == method && strings.HasPrefix(path, ec.Path) {
			limit, window, burst = ec.Limit, ec.Window, ec.Burst
			rule = ec.Method + " " + ec.Path
			break
		}
	}

	key := fmt.Sprintf("%s|%s", clientID, rule)
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(limit, window, burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.take()
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * l.config.CleanupInterval)
			l.mu.Lock()
			for key, b := range l.buckets {
				b.mu.Lock()
				idle := b.lastUsed.Before(cutoff)
				b.mu.Unlock()
				if idle {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop terminates the cleanup loop. Safe to call more than once.
func (l *Limiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		close(l.stop)
	}
}
