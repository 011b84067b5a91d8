package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"coursewatch/internal/fetch"
	"coursewatch/internal/health"
	"coursewatch/internal/logging"
	"coursewatch/internal/seen"
)

// CycleSummary reports what a single cycle did.
type CycleSummary struct {
	CycleID       string
	Result        health.Result
	Strategy      string
	ItemsListed   int
	ItemsNew      int
	ItemsNotified int
	Duration      time.Duration
	Err           string
}

// executeCycle runs one fetch-diff-notify cycle under the wall-clock
// budget and records the outcome with the health monitor. Notification
// failure is not a cycle failure: the affected items stay unnotified and
// ride along with the next digest.
func (d *Daemon) executeCycle(parent context.Context) CycleSummary {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	ctx, cancel := context.WithTimeout(parent, d.cfg.CycleBudget())
	defer cancel()

	cycleID := uuid.NewString()
	started := time.Now()
	logger := d.logger.With(
		logging.String(logging.FieldComponent, "daemon"),
		logging.String(logging.FieldCycleID, cycleID))
	logger.Info("cycle started")

	summary := CycleSummary{CycleID: cycleID}
	defer func() {
		summary.Duration = time.Since(started)
		d.monitor.RecordOutcome(health.Outcome{
			CycleID:     cycleID,
			Result:      summary.Result,
			Strategy:    summary.Strategy,
			ItemsListed: summary.ItemsListed,
			ItemsNew:    summary.ItemsNew,
			Duration:    summary.Duration,
			Err:         errOrNil(summary.Err),
		})
	}()

	source := fetch.Source{
		ListingURL: d.cfg.Catalog.SourceURL,
		APIURL:     d.cfg.Catalog.APIURL,
		Category:   d.cfg.Catalog.Category,
	}
	items, strategy, err := d.selector.Fetch(ctx, source)
	summary.Strategy = strategy
	if err != nil {
		summary.Err = err.Error()
		summary.Result = classifyFetchFailure(err)
		logger.Warn("cycle fetch failed",
			logging.String(logging.FieldStrategy, strategy),
			logging.String("result", summary.Result.String()),
			logging.Error(err))
		return summary
	}
	summary.ItemsListed = len(items)

	fresh, err := d.store.DiffAndMark(ctx, items)
	if err != nil {
		summary.Err = err.Error()
		summary.Result = classifyStoreFailure(ctx, err)
		logger.Error("cycle persistence failed", logging.Error(err))
		return summary
	}
	summary.ItemsNew = len(fresh)
	summary.Result = health.Success

	// The digest carries everything still unnotified, including leftovers
	// from cycles whose delivery failed.
	pending, err := d.store.Unnotified(ctx)
	if err != nil {
		summary.Err = err.Error()
		summary.Result = classifyStoreFailure(ctx, err)
		logger.Error("cycle persistence failed", logging.Error(err))
		return summary
	}
	if len(pending) == 0 {
		logger.Info("cycle finished",
			logging.String(logging.FieldStrategy, strategy),
			logging.Int("items_listed", summary.ItemsListed),
			logging.Int("items_new", summary.ItemsNew))
		return summary
	}

	if err := d.notifier.SendDigest(ctx, pending); err != nil {
		logger.Warn("digest delivery failed, items stay pending",
			logging.Int("items_pending", len(pending)),
			logging.Error(err))
		return summary
	}

	identities := make([]string, len(pending))
	for i, record := range pending {
		identities[i] = record.Identity
	}
	if err := d.store.MarkNotified(ctx, identities); err != nil {
		// The digest went out but confirmation did not land; the next
		// digest will repeat these items rather than lose them.
		summary.Err = err.Error()
		summary.Result = classifyStoreFailure(ctx, err)
		logger.Error("failed to confirm digest delivery", logging.Error(err))
		return summary
	}
	summary.ItemsNotified = len(pending)
	d.monitor.RecordDigest()

	logger.Info("cycle finished",
		logging.String(logging.FieldStrategy, strategy),
		logging.Int("items_listed", summary.ItemsListed),
		logging.Int("items_new", summary.ItemsNew),
		logging.Int("items_notified", summary.ItemsNotified))
	return summary
}

func classifyFetchFailure(err error) health.Result {
	switch {
	case errors.Is(err, fetch.ErrBlocked):
		return health.BlockedFailure
	case errors.Is(err, seen.ErrPersistence):
		return health.FatalFailure
	default:
		// Timeouts, cancelled budgets, parse failures, and network errors
		// are all expected to clear on a later cycle.
		return health.TransientFailure
	}
}

// classifyStoreFailure keeps a store error fatal unless the cycle budget
// expired mid-write; an aborted cycle clears on the next run.
func classifyStoreFailure(ctx context.Context, err error) health.Result {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return health.TransientFailure
	}
	return health.FatalFailure
}

func errOrNil(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
