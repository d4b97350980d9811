package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{Attempts: attempts, Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2, Jitter: 0.5}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), nil, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("Do() = %v after %d calls, want nil after 1", err, calls)
	}
}

func TestDo_RecoversAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Do() = %v after %d calls", err, calls)
	}
}

func TestDo_GivesUp(t *testing.T) {
	tmp := errors.New("temporary")
	calls := 0
	err := Do(context.Background(), fastConfig(2), nil, func(context.Context) error {
		calls++
		return tmp
	})
	if !errors.Is(err, tmp) || calls != 2 {
		t.Errorf("Do() = %v after %d calls, want wrapped error after 2", err, calls)
	}
}

func TestDo_Permanent(t *testing.T) {
	bad := errors.New("bad cookie")
	calls := 0
	err := Do(context.Background(), fastConfig(5), nil, func(context.Context) error {
		calls++
		return Permanent(bad)
	})
	if !errors.Is(err, bad) || calls != 1 {
		t.Errorf("Do() = %v after %d calls, want %v after 1", err, calls, bad)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{Attempts: 10, Initial: time.Hour, Max: time.Hour, Factor: 1}
	calls := 0
	err := Do(ctx, cfg, nil, func(context.Context) error {
		calls++
		cancel()
		return errors.New("temporary")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("Do() = %v after %d calls", err, calls)
	}
}

func TestJitterBounds(t *testing.T) {
	for range 100 {
		j := jitter(100*time.Millisecond, 0.2)
		if j < -20*time.Millisecond || j > 20*time.Millisecond {
			t.Fatalf("jitter() = %v out of bounds", j)
		}
	}
	if jitter(time.Second, 0) != 0 {
		t.Error("jitter() with zero fraction")
	}
}
