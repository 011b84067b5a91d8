package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"coursewatch/internal/catalog"
	"coursewatch/internal/logging"
)

// SelectorConfig bounds the retry behaviour of a Selector.
type SelectorConfig struct {
	// MaxAttempts is the number of tries per strategy per cycle. Zero means 3.
	MaxAttempts int
	// BackoffBase is the delay before the first retry. Zero means 500ms.
	BackoffBase time.Duration
	// BackoffMultiplier scales the delay between retries. Values below 1
	// are treated as 2.
	BackoffMultiplier float64
	Logger            *slog.Logger
}

// Selector runs an ordered chain of strategies. It is sticky: once a
// strategy succeeds it stays preferred across cycles until it fails, so a
// source that blocks plain HTTP does not pay the probe cost every cycle.
// Transient failures are retried in place with exponential backoff and
// blocked failures fall through to the next strategy immediately; parse
// failures are surfaced to the caller, since another strategy fetching the
// same document cannot parse it any better.
type Selector struct {
	cfg        SelectorConfig
	strategies []Strategy
	sleep      func(context.Context, time.Duration) error

	mu        sync.Mutex
	preferred int
}

// NewSelector builds a Selector over the given strategies in priority order.
func NewSelector(cfg SelectorConfig, strategies ...Strategy) *Selector {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Selector{
		cfg:        cfg,
		strategies: strategies,
		sleep:      sleepCtx,
	}
}

// Fetch runs the strategy chain starting at the preferred strategy and
// returns the first successful listing. When every strategy is exhausted
// the last error is returned; it is ErrBlocked when any strategy reported
// a block, otherwise the chain's final failure.
func (s *Selector) Fetch(ctx context.Context, source Source) ([]catalog.Item, string, error) {
	if len(s.strategies) == 0 {
		return nil, "", errors.New("no fetch strategies configured")
	}

	s.mu.Lock()
	start := s.preferred
	s.mu.Unlock()

	var (
		lastErr    error
		sawBlocked bool
	)
	for offset := 0; offset < len(s.strategies); offset++ {
		idx := (start + offset) % len(s.strategies)
		strategy := s.strategies[idx]

		items, err := s.fetchWithRetry(ctx, strategy, source)
		if err == nil {
			s.mu.Lock()
			s.preferred = idx
			s.mu.Unlock()
			return items, strategy.Name(), nil
		}
		if ctx.Err() != nil {
			return nil, strategy.Name(), err
		}
		if errors.Is(err, ErrParse) {
			return nil, strategy.Name(), err
		}
		if errors.Is(err, ErrBlocked) {
			sawBlocked = true
		}
		lastErr = err
		s.cfg.Logger.Warn("strategy exhausted, falling through",
			logging.String(logging.FieldComponent, "fetch"),
			logging.String(logging.FieldStrategy, strategy.Name()),
			logging.Error(err))
	}

	if sawBlocked && !errors.Is(lastErr, ErrBlocked) {
		return nil, "", fmt.Errorf("%w: all strategies failed: %v", ErrBlocked, lastErr)
	}
	return nil, "", fmt.Errorf("all strategies failed: %w", lastErr)
}

// Reset drops the sticky preference so the next fetch starts from the
// primary strategy again. The daemon calls this after a recovery restart.
func (s *Selector) Reset() {
	s.mu.Lock()
	s.preferred = 0
	s.mu.Unlock()
}

// Preferred reports the name of the currently preferred strategy.
func (s *Selector) Preferred() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategies[s.preferred].Name()
}

func (s *Selector) fetchWithRetry(ctx context.Context, strategy Strategy, source Source) ([]catalog.Item, error) {
	delay := s.cfg.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		items, err := strategy.Fetch(ctx, source)
		if err == nil {
			return items, nil
		}
		lastErr = err
		// Only transient failures earn a retry of the same strategy.
		if !errors.Is(err, ErrTransient) || attempt == s.cfg.MaxAttempts {
			break
		}
		s.cfg.Logger.Debug("retrying after transient failure",
			logging.String(logging.FieldComponent, "fetch"),
			logging.String(logging.FieldStrategy, strategy.Name()),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(err))
		if err := s.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}
		delay = time.Duration(float64(delay) * s.cfg.BackoffMultiplier)
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
