package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestThrottle_WaitsForDelay(t *testing.T) {
	th := NewThrottle(30*time.Millisecond, 0, 0)

	start := time.Now()
	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Wait() returned after %v, want at least 30ms", elapsed)
	}
}

func TestThrottle_ZeroDelayReturnsImmediately(t *testing.T) {
	th := NewThrottle(0, 0, 0)

	start := time.Now()
	if err := th.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("Wait() took %v", elapsed)
	}
}

func TestThrottle_RateCeiling(t *testing.T) {
	th := NewThrottle(0, 20, 1)
	if th.limiter == nil || th.limiter.Limit() != rate.Limit(20) {
		t.Fatal("NewThrottle() should set a 20 rps limiter")
	}

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	// first token is free, the next two cost 50ms each
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 waits took %v, want about 100ms", elapsed)
	}
}

func TestThrottle_Unlimited(t *testing.T) {
	th := NewThrottle(0, 0, 0)
	if th.limiter != nil {
		t.Errorf("limiter = %v, want none", th.limiter.Limit())
	}
}

func TestThrottle_Cancelled(t *testing.T) {
	th := NewThrottle(time.Hour, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := th.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestThrottle_Nil(t *testing.T) {
	var th *Throttle
	if err := th.Wait(context.Background()); err != nil {
		t.Errorf("nil Wait() error = %v", err)
	}
}
