package state

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haleyrc/workdriver/internal/config"
	"github.com/haleyrc/workdriver/internal/database"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), nil)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return s
}

func TestClassifyUnknownIdentityIsFresh(t *testing.T) {
	s := newMemoryStore(t)
	now := time.Now().UTC()
	if got := s.Classify("pr:o/r#1", now); got != Fresh {
		t.Fatalf("expected Fresh for unknown identity, got %v", got)
	}
}

func TestClassifyIsPure(t *testing.T) {
	s := newMemoryStore(t)
	now := time.Now().UTC()
	if err := s.MarkSeen(context.Background(), "pr:o/r#1", now); err != nil {
		t.Fatal(err)
	}
	first := s.Classify("pr:o/r#1", now)
	second := s.Classify("pr:o/r#1", now)
	if first != second {
		t.Fatalf("classify not idempotent: %v then %v", first, second)
	}
}

func TestSeenWindow(t *testing.T) {
	s := newMemoryStore(t)
	now := time.Now().UTC()

	if err := s.MarkSeen(context.Background(), "pr:o/r#2", now); err != nil {
		t.Fatal(err)
	}
	if got := s.Classify("pr:o/r#2", now); got != SeenRecently {
		t.Fatalf("expected SeenRecently immediately after MarkSeen, got %v", got)
	}
	if got := s.Classify("pr:o/r#2", now.Add(29*time.Minute)); got != SeenRecently {
		t.Fatalf("expected SeenRecently at +29m, got %v", got)
	}
	if got := s.Classify("pr:o/r#2", now.Add(31*time.Minute)); got != Fresh {
		t.Fatalf("expected Fresh at +31m, got %v", got)
	}
}

func TestNotifyThrottle(t *testing.T) {
	s := newMemoryStore(t)
	now := time.Now().UTC()

	if err := s.RecordNotified(context.Background(), "flag:p/k/staging", now); err != nil {
		t.Fatal(err)
	}
	if got := s.Classify("flag:p/k/staging", now.Add(18*time.Minute)); got != Suppressed {
		t.Fatalf("expected Suppressed at +18m, got %v", got)
	}
	if got := s.Classify("flag:p/k/staging", now.Add(19*time.Minute)); got != Fresh {
		t.Fatalf("expected Fresh at +19m, got %v", got)
	}
}

func TestSeenTakesPrecedenceOverThrottle(t *testing.T) {
	s := newMemoryStore(t)
	now := time.Now().UTC()
	ctx := context.Background()

	if err := s.RecordNotified(ctx, "pr:o/r#3", now); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSeen(ctx, "pr:o/r#3", now); err != nil {
		t.Fatal(err)
	}
	if got := s.Classify("pr:o/r#3", now.Add(10*time.Minute)); got != SeenRecently {
		t.Fatalf("expected SeenRecently when both windows are open, got %v", got)
	}
	// Seen window closed, throttle long closed: back to Fresh.
	if got := s.Classify("pr:o/r#3", now.Add(31*time.Minute)); got != Fresh {
		t.Fatalf("expected Fresh after both windows, got %v", got)
	}
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	s := newMemoryStore(t)
	now := time.Now().UTC()
	ctx := context.Background()

	if err := s.MarkSeen(ctx, "pr:o/r#4", now); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSeen(ctx, "pr:o/r#4", now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	// The second call refreshed the window.
	if got := s.Classify("pr:o/r#4", now.Add(30*time.Minute)); got != SeenRecently {
		t.Fatalf("expected refreshed window to still be open, got %v", got)
	}
}

func TestConcurrentMutationsAreNotLost(t *testing.T) {
	s := newMemoryStore(t)
	now := time.Now().UTC()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("pr:o/r#%d", i)
			_ = s.MarkSeen(ctx, id, now)
			_ = s.RecordNotified(ctx, id, now)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("pr:o/r#%d", i)
		if got := s.Classify(id, now); got != SeenRecently {
			t.Fatalf("identity %s: expected SeenRecently, got %v", id, got)
		}
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.StateConfig{Path: filepath.Join(t.TempDir(), "state.db")}

	db, err := database.New(cfg)
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	s, err := Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSeen(ctx, "pr:o/r#9", now); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordNotified(ctx, "flag:p/k/production", now); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := database.New(cfg)
	if err != nil {
		t.Fatalf("reopening db: %v", err)
	}
	defer db2.Close()
	if err := db2.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	s2, err := Open(ctx, db2)
	if err != nil {
		t.Fatal(err)
	}

	if got := s2.Classify("pr:o/r#9", now.Add(10*time.Minute)); got != SeenRecently {
		t.Fatalf("expected SeenRecently after reopen, got %v", got)
	}
	if got := s2.Classify("flag:p/k/production", now.Add(10*time.Minute)); got != Suppressed {
		t.Fatalf("expected Suppressed after reopen, got %v", got)
	}
}
