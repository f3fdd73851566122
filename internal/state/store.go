package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haleyrc/workdriver/internal/database"
)

const (
	// SeenWindow is the grace period after a user acknowledges an issue on
	// the dashboard before it resurfaces as needing attention.
	SeenWindow = 30 * time.Minute

	// NotifyThrottle is the minimum gap between desktop notifications for
	// the same identity, independent of acknowledgment.
	NotifyThrottle = 19 * time.Minute
)

// IssueState is the result of classifying an issue against the store.
type IssueState int

const (
	// Fresh: no record, or every suppression window has elapsed.
	Fresh IssueState = iota
	// Suppressed: notified within the throttle window; withheld from
	// notifications but still shown on the dashboard.
	Suppressed
	// SeenRecently: acknowledged via the dashboard within the seen window.
	SeenRecently
)

func (s IssueState) String() string {
	switch s {
	case Suppressed:
		return "suppressed"
	case SeenRecently:
		return "seen_recently"
	default:
		return "fresh"
	}
}

// seenRow is the persisted shape of a record. Timestamps are RFC3339
// strings, empty when unset.
type seenRow struct {
	Identity       string `db:"identity"`
	SeenAt         string `db:"seen_at"`
	LastNotifiedAt string `db:"last_notified_at"`
}

type record struct {
	seenAt         time.Time
	lastNotifiedAt time.Time
}

// Store tracks per-identity seen and last-notified timestamps and answers
// suppression queries. It is the only shared mutable state between the
// coordinator cycle and the dashboard's mark-seen handler, so every
// operation holds the mutex. Records are keyed on issue identity only;
// two observations of the same identity are the same logical issue.
type Store struct {
	mu      sync.Mutex
	db      database.DB // nil means in-memory only
	records map[string]record
}

// Open loads all persisted records into memory. Pass a nil db for a
// volatile store (used in tests and when persistence is disabled).
func Open(ctx context.Context, db database.DB) (*Store, error) {
	s := &Store{db: db, records: make(map[string]record)}
	if db == nil {
		return s, nil
	}

	var rows []seenRow
	if err := db.Select(ctx, &rows,
		`SELECT identity, seen_at, last_notified_at FROM seen_records`); err != nil {
		return nil, fmt.Errorf("loading seen records: %w", err)
	}
	for _, row := range rows {
		s.records[row.Identity] = record{
			seenAt:         parseTime(row.SeenAt),
			lastNotifiedAt: parseTime(row.LastNotifiedAt),
		}
	}
	return s, nil
}

// Classify reports how the issue with the given identity should be treated
// at time now. It is a pure read: calling it twice with the same store
// contents and now yields the same result.
func (s *Store) Classify(identity string, now time.Time) IssueState {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return Fresh
	}
	if !rec.seenAt.IsZero() && now.Sub(rec.seenAt) < SeenWindow {
		return SeenRecently
	}
	if !rec.lastNotifiedAt.IsZero() && now.Sub(rec.lastNotifiedAt) < NotifyThrottle {
		return Suppressed
	}
	return Fresh
}

// MarkSeen records a user acknowledgment at time now, creating the record
// if absent. Idempotent: repeated calls just refresh the window.
func (s *Store) MarkSeen(ctx context.Context, identity string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[identity]
	rec.seenAt = now
	s.records[identity] = rec
	return s.persist(ctx, identity, rec)
}

// RecordNotified records that a notification fired for identity at now.
func (s *Store) RecordNotified(ctx context.Context, identity string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[identity]
	rec.lastNotifiedAt = now
	s.records[identity] = rec
	return s.persist(ctx, identity, rec)
}

// persist writes one record through to SQLite. Callers hold s.mu. The
// write is a single upsert, so interrupting it mid-shutdown cannot leave
// partial state.
func (s *Store) persist(ctx context.Context, identity string, rec record) error {
	if s.db == nil {
		return nil
	}
	row := seenRow{
		Identity:       identity,
		SeenAt:         formatTime(rec.seenAt),
		LastNotifiedAt: formatTime(rec.lastNotifiedAt),
	}
	if err := s.db.Upsert(ctx, "seen_records", row, []string{"identity"}); err != nil {
		return fmt.Errorf("persisting seen record %s: %w", identity, err)
	}
	return nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
