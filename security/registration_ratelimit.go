package security

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMaxRegistrationsPerWindow is the default limit for client
	// registrations per IP per window
	DefaultMaxRegistrationsPerWindow = 10

	// DefaultRegistrationWindow is the default time window for
	// registration rate limiting
	DefaultRegistrationWindow = time.Hour
)

// RegistrationLimiter applies a sliding-window limit to client
// registrations per IP address. Repeated registration attempts are a
// cheap way to exhaust storage, so the window is long and the limit low
// compared to request rate limiting.
type RegistrationLimiter struct {
	mu           sync.Mutex
	attempts     map[string][]time.Time
	maxPerWindow int
	window       time.Duration
	logger       *slog.Logger
	stop         chan struct{}
	stopOnce     sync.Once
}

// NewRegistrationLimiter creates a registration limiter and starts its
// cleanup goroutine. Zero values select the defaults. Call Stop when
// done.
func NewRegistrationLimiter(maxPerWindow int, window time.Duration, logger *slog.Logger) *RegistrationLimiter {
	if maxPerWindow <= 0 {
		maxPerWindow = DefaultMaxRegistrationsPerWindow
	}
	if window <= 0 {
		window = DefaultRegistrationWindow
	}
	if logger == nil {
		logger = slog.Default()
	}

	rl := &RegistrationLimiter{
		attempts:     make(map[string][]time.Time),
		maxPerWindow: maxPerWindow,
		window:       window,
		logger:       logger,
		stop:         make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow records a registration attempt from the given IP and reports
// whether it is within the window limit.
func (rl *RegistrationLimiter) Allow(ip string) bool {
	now := time.Now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.attempts[ip][:0]
	for _, t := range rl.attempts[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rl.maxPerWindow {
		rl.attempts[ip] = recent
		rl.logger.Warn("Client registration rate limit exceeded",
			"ip", ip,
			"attempts_in_window", len(recent),
			"limit", rl.maxPerWindow)
		return false
	}

	rl.attempts[ip] = append(recent, now)
	return true
}

// cleanupLoop periodically drops IPs with no attempts inside the window.
func (rl *RegistrationLimiter) cleanupLoop() {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RegistrationLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, times := range rl.attempts {
		recent := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}
		if len(recent) == 0 {
			delete(rl.attempts, ip)
		} else {
			rl.attempts[ip] = recent
		}
	}
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (rl *RegistrationLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}
