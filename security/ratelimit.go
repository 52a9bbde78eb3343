package security

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxLimiterEntries bounds how many identifiers a RateLimiter
// tracks at once, preventing unbounded memory growth from IP churn.
const DefaultMaxLimiterEntries = 10000

// limiterEntry tracks a token bucket and its last access time
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-identifier (typically per-IP) rate limiting
// using the token bucket algorithm. Idle entries are dropped by a
// background cleanup loop; when the entry cap is hit, the stalest entry
// is evicted to make room.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*limiterEntry
	rate       int
	burst      int
	maxEntries int
	logger     *slog.Logger
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter creates a rate limiter allowing requestsPerSecond with
// the given burst per identifier, and starts its cleanup goroutine.
// Call Stop when done.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	rl := &RateLimiter{
		entries:    make(map[string]*limiterEntry),
		rate:       requestsPerSecond,
		burst:      burst,
		maxEntries: DefaultMaxLimiterEntries,
		logger:     logger,
		stop:       make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request from the given identifier is allowed.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.entries[identifier]; ok {
		entry.lastSeen = now
		return entry.limiter.Allow()
	}

	if rl.maxEntries > 0 && len(rl.entries) >= rl.maxEntries {
		rl.evictStalest()
	}

	entry := &limiterEntry{
		limiter:  rate.NewLimiter(rate.Limit(rl.rate), rl.burst),
		lastSeen: now,
	}
	rl.entries[identifier] = entry

	return entry.limiter.Allow()
}

// evictStalest removes the least recently seen entry.
// Must be called with the mutex held.
func (rl *RateLimiter) evictStalest() {
	var stalestKey string
	var stalest time.Time
	for key, entry := range rl.entries {
		if stalestKey == "" || entry.lastSeen.Before(stalest) {
			stalestKey = key
			stalest = entry.lastSeen
		}
	}
	if stalestKey != "" {
		delete(rl.entries, stalestKey)
		rl.logger.Debug("Rate limiter evicted stalest entry",
			"identifier", stalestKey,
			"current_entries", len(rl.entries))
	}
}

// cleanupLoop periodically removes idle limiters to prevent memory leaks
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(30 * time.Minute)
		case <-rl.stop:
			return
		}
	}
}

// Cleanup removes limiters that have been idle longer than maxIdleTime.
func (rl *RateLimiter) Cleanup(maxIdleTime time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range rl.entries {
		if now.Sub(entry.lastSeen) > maxIdleTime {
			delete(rl.entries, key)
			removed++
		}
	}

	if removed > 0 {
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.entries))
	}
}

// Len returns the number of identifiers currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}
