package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/daytrip-ai/daytrip/internal/resilience"
)

var errBoom = errors.New("boom")

func failingBreaker(t *testing.T, failures int, opts ...resilience.BreakerOption) *resilience.Breaker {
	t.Helper()
	b := resilience.NewBreaker("test", opts...)
	for i := 0; i < failures; i++ {
		if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("Do() error = %v, want errBoom", err)
		}
	}
	return b
}

func TestBreaker_ClosedForwardsCalls(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker("test")
	called := false
	if err := b.Do(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !called {
		t.Error("fn was not called")
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := failingBreaker(t, 3, resilience.WithTripAfter(3), resilience.WithCooldown(time.Hour))

	if !b.Open() {
		t.Error("Open() = false after reaching the threshold")
	}
	err := b.Do(func() error {
		t.Error("fn was called while open")
		return nil
	})
	if !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("Do() error = %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker("test", resilience.WithTripAfter(3), resilience.WithCooldown(time.Hour))
	for i := 0; i < 2; i++ {
		_ = b.Do(func() error { return errBoom })
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	// Two more failures must not trip a threshold of three.
	for i := 0; i < 2; i++ {
		_ = b.Do(func() error { return errBoom })
	}
	if b.Open() {
		t.Error("Open() = true, want failure count reset by the success")
	}
}

func TestBreaker_ProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()

	b := failingBreaker(t, 2, resilience.WithTripAfter(2), resilience.WithCooldown(10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe Do() error = %v", err)
	}
	if b.Open() {
		t.Error("Open() = true after successful probe")
	}
}

func TestBreaker_ProbeReopensOnFailure(t *testing.T) {
	t.Parallel()

	b := failingBreaker(t, 2, resilience.WithTripAfter(2), resilience.WithCooldown(10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe Do() error = %v, want errBoom", err)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("Do() error = %v, want ErrOpen right after failed probe", err)
	}
}

func TestBreaker_SingleProbeSlot(t *testing.T) {
	t.Parallel()

	b := failingBreaker(t, 2, resilience.WithTripAfter(2), resilience.WithCooldown(10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("Allow() = false, want probe admitted after cooldown")
	}
	// The probe slot is taken until its outcome is reported.
	if b.Allow() {
		t.Error("Allow() = true, want second concurrent probe rejected")
	}
	b.Success()
	if !b.Allow() {
		t.Error("Allow() = false after the breaker closed")
	}
}
