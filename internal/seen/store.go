package seen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"coursewatch/internal/catalog"
	"coursewatch/internal/config"
)

// ErrPersistence marks store failures that survived busy retries. The
// daemon treats these as fatal because losing the seen set would re-notify
// the entire catalog.
var ErrPersistence = errors.New("seen store persistence failure")

// Record is one course the store has observed.
type Record struct {
	Identity    string
	Title       string
	URL         string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	SeenCount   int64
	Notified    bool
}

// Stats summarizes the store for status reporting.
type Stats struct {
	Total      int64
	Unnotified int64
	LastSeenAt time.Time
}

// Store persists the seen set backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the seen database under the state
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "seen.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DiffAndMark records every item in the listing and returns the ones not
// seen before, preserving listing order. Known items get their last-seen
// time and seen count refreshed; new items are inserted unnotified. The
// whole diff commits as one transaction so a crash cannot leave a listing
// half-recorded.
func (s *Store) DiffAndMark(ctx context.Context, items []catalog.Item) ([]catalog.Item, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var fresh []catalog.Item
	err := retryOnBusy(ctx, func() error {
		fresh = fresh[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin diff tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, item := range items {
			identity := item.Identity()
			res, err := tx.ExecContext(ctx,
				`UPDATE seen_courses SET last_seen_at = ?, seen_count = seen_count + 1 WHERE identity = ?`,
				now, identity)
			if err != nil {
				return fmt.Errorf("refresh seen row: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("refresh seen row: %w", err)
			}
			if affected > 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO seen_courses (identity, title, url, first_seen_at, last_seen_at, seen_count, notified)
				 VALUES (?, ?, ?, ?, ?, 1, 0)`,
				identity, nullableString(item.Title), nullableString(item.URL), now, now); err != nil {
				return fmt.Errorf("insert seen row: %w", err)
			}
			fresh = append(fresh, item)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit diff tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return fresh, nil
}

// Unnotified returns every record whose digest has not been confirmed sent,
// oldest first. Items from earlier cycles whose notification failed ride
// along with the next digest.
func (s *Store) Unnotified(ctx context.Context) ([]Record, error) {
	ctx = ensureContext(ctx)
	var records []Record
	err := retryOnBusy(ctx, func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx,
			recordColumnsQuery+` WHERE notified = 0 ORDER BY first_seen_at ASC, identity ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list unnotified: %v", ErrPersistence, err)
	}
	return records, nil
}

// MarkNotified flips the notified flag for the given identities. It is
// called only after the digest send succeeded.
func (s *Store) MarkNotified(ctx context.Context, identities []string) error {
	if len(identities) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	args := make([]any, len(identities))
	for i, id := range identities {
		args[i] = id
	}
	query := fmt.Sprintf(`UPDATE seen_courses SET notified = 1 WHERE identity IN (%s)`,
		makePlaceholders(len(identities)))
	if err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	}); err != nil {
		return fmt.Errorf("%w: mark notified: %v", ErrPersistence, err)
	}
	return nil
}

// Get fetches a single record by identity.
func (s *Store) Get(ctx context.Context, identity string) (*Record, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, recordColumnsQuery+` WHERE identity = ?`, identity)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get record: %v", ErrPersistence, err)
	}
	return &record, nil
}

// Stats reports store totals for status output.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	var (
		stats   Stats
		lastRaw sql.NullString
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT COUNT(1),
			        COALESCE(SUM(CASE WHEN notified = 0 THEN 1 ELSE 0 END), 0),
			        MAX(last_seen_at)
			 FROM seen_courses`).Scan(&stats.Total, &stats.Unnotified, &lastRaw)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %v", ErrPersistence, err)
	}
	if lastRaw.Valid {
		if t, err := parseTimeString(lastRaw.String); err == nil {
			stats.LastSeenAt = t
		}
	}
	return stats, nil
}

// List returns tracked courses ordered by most recent sighting. A
// positive limit caps the result; zero or negative returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	ctx = ensureContext(ctx)
	query := recordColumnsQuery + ` ORDER BY last_seen_at DESC, identity ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var records []Record
	err := retryOnBusy(ctx, func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", ErrPersistence, err)
	}
	return records, nil
}

// CheckHealth verifies the database is reachable and writable.
func (s *Store) CheckHealth(ctx context.Context) error {
	ctx = ensureContext(ctx)
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%w: health probe: %v", ErrPersistence, err)
	}
	return nil
}

// Prune deletes notified records last seen before the cutoff and returns
// how many were removed. Unnotified records are never pruned.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM seen_courses WHERE notified = 1 AND last_seen_at < ?`, cutoff)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", ErrPersistence, err)
	}
	return removed, nil
}

const recordColumnsQuery = `SELECT identity, title, url, first_seen_at, last_seen_at, seen_count, notified FROM seen_courses`

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		record   Record
		title    sql.NullString
		url      sql.NullString
		firstRaw string
		lastRaw  string
		notified int64
	)
	if err := scanner.Scan(&record.Identity, &title, &url, &firstRaw, &lastRaw, &record.SeenCount, &notified); err != nil {
		return Record{}, err
	}
	record.Title = title.String
	record.URL = url.String
	record.Notified = notified != 0
	if t, err := parseTimeString(firstRaw); err == nil {
		record.FirstSeenAt = t
	}
	if t, err := parseTimeString(lastRaw); err == nil {
		record.LastSeenAt = t
	}
	return record, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
