// Package retry repeats failing platform calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Config of backoff.
type Config struct {
	Attempts int           `yaml:"attempts" validate:"gte=1"`
	Initial  time.Duration `yaml:"initial" validate:"gt=0"`
	Max      time.Duration `yaml:"max" validate:"gtefield=Initial"`
	Factor   float64       `yaml:"factor" validate:"gte=1"`
	// Jitter is fraction of delay randomly added or subtracted.
	Jitter float64 `yaml:"jitter" validate:"gte=0,lte=1"`
}

// DefaultConfig returns defaults suitable for interactive use.
func DefaultConfig() Config {
	return Config{
		Attempts: 3,
		Initial:  time.Second,
		Max:      10 * time.Second,
		Factor:   2,
		Jitter:   0.2,
	}
}

// permanent marks errors which should not be retried.
type permanent struct {
	err error
}

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps error so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// IsPermanent reports whether error must not be retried.
func IsPermanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var p *permanent
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns permanent error or attempts are
// exhausted.
func Do(ctx context.Context, cfg Config, log *zap.Logger, fn func(context.Context) error) error {
	if log == nil {
		log = zap.NewNop()
	}
	attempts := max(cfg.Attempts, 1)
	delay := cfg.Initial

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if attempt >= attempts {
			break
		}

		sleep := min(delay+jitter(delay, cfg.Jitter), cfg.Max)
		log.Debug("Retrying", zap.Int("attempt", attempt), zap.Duration("delay", sleep), zap.Error(err))
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(time.Duration(float64(delay)*cfg.Factor), cfg.Max)
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return 0
	}
	return time.Duration((rand.Float64()*2 - 1) * fraction * float64(d))
}
