package security

import (
	"log/slog"
	"testing"
	"time"
)

func TestRegistrationLimiterAllow(t *testing.T) {
	rl := NewRegistrationLimiter(3, time.Hour, slog.Default())
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("198.51.100.7") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if rl.Allow("198.51.100.7") {
		t.Error("attempt over limit should be rejected")
	}
	if !rl.Allow("198.51.100.8") {
		t.Error("different IP should have its own window")
	}
}

func TestRegistrationLimiterWindowExpiry(t *testing.T) {
	rl := NewRegistrationLimiter(1, 20*time.Millisecond, slog.Default())
	defer rl.Stop()

	if !rl.Allow("198.51.100.7") {
		t.Fatal("first attempt should be allowed")
	}
	if rl.Allow("198.51.100.7") {
		t.Fatal("second attempt inside window should be rejected")
	}

	time.Sleep(30 * time.Millisecond)

	if !rl.Allow("198.51.100.7") {
		t.Error("attempt after window expiry should be allowed")
	}
}

func TestRegistrationLimiterDefaults(t *testing.T) {
	rl := NewRegistrationLimiter(0, 0, nil)
	defer rl.Stop()

	if rl.maxPerWindow != DefaultMaxRegistrationsPerWindow {
		t.Errorf("maxPerWindow = %d, want %d", rl.maxPerWindow, DefaultMaxRegistrationsPerWindow)
	}
	if rl.window != DefaultRegistrationWindow {
		t.Errorf("window = %v, want %v", rl.window, DefaultRegistrationWindow)
	}
}

func TestRegistrationLimiterCleanup(t *testing.T) {
	rl := NewRegistrationLimiter(5, 10*time.Millisecond, slog.Default())
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")

	time.Sleep(20 * time.Millisecond)
	rl.cleanup()

	rl.mu.Lock()
	n := len(rl.attempts)
	rl.mu.Unlock()

	if n != 0 {
		t.Errorf("attempts map has %d entries after cleanup, want 0", n)
	}
}
