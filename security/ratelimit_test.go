package security

import (
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(1, 2, slog.Default())
	defer rl.Stop()

	if !rl.Allow("198.51.100.7") {
		t.Error("first request should be allowed")
	}
	if !rl.Allow("198.51.100.7") {
		t.Error("second request should be allowed within burst")
	}
	if rl.Allow("198.51.100.7") {
		t.Error("third request should exceed burst")
	}

	// independent bucket per identifier
	if !rl.Allow("198.51.100.8") {
		t.Error("different identifier should have its own bucket")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10, slog.Default())
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	if got := rl.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	time.Sleep(10 * time.Millisecond)
	rl.Cleanup(time.Nanosecond)

	if got := rl.Len(); got != 0 {
		t.Errorf("Len() after cleanup = %d, want 0", got)
	}
}

func TestRateLimiterEviction(t *testing.T) {
	rl := NewRateLimiter(10, 10, slog.Default())
	defer rl.Stop()
	rl.maxEntries = 3

	for i := 0; i < 3; i++ {
		rl.Allow(fmt.Sprintf("ip-%d", i))
		time.Sleep(time.Millisecond)
	}
	rl.Allow("ip-new")

	if got := rl.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3 after eviction", got)
	}

	rl.mu.Lock()
	_, oldest := rl.entries["ip-0"]
	_, newest := rl.entries["ip-new"]
	rl.mu.Unlock()

	if oldest {
		t.Error("stalest entry should have been evicted")
	}
	if !newest {
		t.Error("newest entry should be present")
	}
}

func TestRateLimiterStopIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Stop()
	rl.Stop()
}
