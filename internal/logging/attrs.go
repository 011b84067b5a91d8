package logging

import (
	"context"
	"log/slog"
	"time"
)

type Attr = slog.Attr

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Time(key string, value time.Time) Attr { return slog.Time(key, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// FieldComponent identifies the subsystem emitting a record; the console
// handler renders it as a message prefix.
const FieldComponent = "component"

// FieldEventType is the standardized key for machine-filterable event names.
const FieldEventType = "event_type"

// FieldErrorHint is the standardized key for operator remediation guidance.
const FieldErrorHint = "error_hint"

// FieldImpact is the standardized key for user-facing consequence of a warning.
const FieldImpact = "impact"

// FieldCycleID correlates records belonging to one polling cycle.
const FieldCycleID = "cycle_id"

// FieldStrategy names the retrieval strategy a record concerns.
const FieldStrategy = "strategy"

// NewNop returns a logger that discards all output.
func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (h NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h NoopHandler) WithGroup(string) slog.Handler { return h }
