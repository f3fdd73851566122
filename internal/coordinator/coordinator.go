package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haleyrc/workdriver/internal/checks"
	"github.com/haleyrc/workdriver/internal/notify"
	"github.com/haleyrc/workdriver/internal/state"
	"github.com/haleyrc/workdriver/models"
)

// Notifier is the sink the coordinator hands its summaries to.
// *notify.Dispatcher satisfies it.
type Notifier interface {
	Notify(ctx context.Context, evt notify.Event)
}

// Snapshot is what one cycle publishes for the dashboard: the classified
// issue lists, per-check errors, and scheduling information. Suppressed
// issues are withheld from notifications but still listed here.
type Snapshot struct {
	NeedsAttention []models.Issue   `json:"needs_attention"`
	RecentlySeen   []models.Issue   `json:"recently_seen"`
	Suppressed     []models.Issue   `json:"suppressed"`
	Errors         []checks.Failure `json:"errors"`
	LastCheckAt    time.Time        `json:"last_check_at"`
	NextCheckAt    time.Time        `json:"next_check_at"`
	CycleCount     int64            `json:"cycle_count"`
}

// Options controls coordinator behaviour.
type Options struct {
	// ScheduleExpr is a robfig/cron expression driving the loop. Empty
	// disables self-scheduling (one-shot runs, tests).
	ScheduleExpr string
	// CheckTimeout bounds each check's Run per cycle.
	CheckTimeout time.Duration
	// DashboardURL is the deep link attached to notifications.
	DashboardURL string
	// OnPublish is called with every published snapshot (SSE fan-out).
	OnPublish func(Snapshot)
}

// Coordinator runs all registered checks on a schedule, classifies the
// merged results against the state store, notifies, and publishes a
// dashboard snapshot. One cycle runs at a time; a manual Trigger
// interleaves with the cron schedule through a buffered channel.
type Coordinator struct {
	checks    []checks.Check
	store     *state.Store
	notifier  Notifier
	opts      Options
	nowFn     func() time.Time
	triggerCh chan struct{}

	cron    *cron.Cron
	entryID cron.EntryID

	mu   sync.RWMutex
	snap Snapshot
}

// New creates a Coordinator over the given checks.
func New(cks []checks.Check, store *state.Store, notifier Notifier, opts Options) *Coordinator {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 30 * time.Second
	}
	return &Coordinator{
		checks:    cks,
		store:     store,
		notifier:  notifier,
		opts:      opts,
		nowFn:     func() time.Time { return time.Now().UTC() },
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger requests an immediate cycle. If one is already pending the
// signal is coalesced (at most one queued trigger).
func (c *Coordinator) Trigger() {
	select {
	case c.triggerCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the most recently published snapshot.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Run starts the coordinator loop: an initial cycle, then one cycle per
// schedule fire or Trigger call. Check failures never stop the loop;
// blocks until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.opts.ScheduleExpr != "" {
		c.cron = cron.New()
		id, err := c.cron.AddFunc(c.opts.ScheduleExpr, c.Trigger)
		if err != nil {
			return fmt.Errorf("invalid schedule expression %q: %w", c.opts.ScheduleExpr, err)
		}
		c.entryID = id
		c.cron.Start()
		defer c.cron.Stop()
	}

	slog.Info("Coordinator starting",
		"schedule", c.opts.ScheduleExpr,
		"checks", len(c.checks),
	)

	c.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Coordinator received shutdown signal")
			return nil
		case <-c.triggerCh:
			c.RunCycle(ctx)
		}
	}
}

// checkResult pairs one check's output with its slot in registration
// order so merged issues keep a stable ordering across cycles.
type checkResult struct {
	issues []models.Issue
	err    error
}

// RunCycle executes one complete cycle: run all checks concurrently,
// merge, classify, notify, publish. Returns the published snapshot.
func (c *Coordinator) RunCycle(ctx context.Context) Snapshot {
	results := make([]checkResult, len(c.checks))

	var wg sync.WaitGroup
	for i, chk := range c.checks {
		wg.Add(1)
		go func(i int, chk checks.Check) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.opts.CheckTimeout)
			defer cancel()
			issues, err := chk.Run(checkCtx)
			results[i] = checkResult{issues: issues, err: err}
		}(i, chk)
	}
	wg.Wait()

	now := c.nowFn()

	// Merge successes in registration order; collect failures.
	merged := []models.Issue{}
	failures := []checks.Failure{}
	for i, res := range results {
		if res.err != nil {
			slog.Warn("Check failed", "check", c.checks[i].Name(), "error", res.err)
			failures = append(failures, checks.Failure{
				Check: c.checks[i].Name(),
				Error: res.err.Error(),
			})
			continue
		}
		for _, issue := range res.issues {
			if issue.DetectedAt.IsZero() {
				issue.DetectedAt = now
			}
			merged = append(merged, issue)
		}
	}

	needsAttention := []models.Issue{}
	recentlySeen := []models.Issue{}
	suppressed := []models.Issue{}
	for _, issue := range merged {
		switch c.store.Classify(issue.Identity, now) {
		case state.SeenRecently:
			recentlySeen = append(recentlySeen, issue)
		case state.Suppressed:
			suppressed = append(suppressed, issue)
		default:
			needsAttention = append(needsAttention, issue)
		}
	}

	if len(needsAttention) > 0 {
		c.sendNotification(ctx, needsAttention, now)
	}

	snap := Snapshot{
		NeedsAttention: needsAttention,
		RecentlySeen:   recentlySeen,
		Suppressed:     suppressed,
		Errors:         failures,
		LastCheckAt:    now,
		NextCheckAt:    c.nextCheckAt(),
	}

	c.mu.Lock()
	snap.CycleCount = c.snap.CycleCount + 1
	c.snap = snap
	c.mu.Unlock()

	slog.Info("Cycle complete",
		"needs_attention", len(needsAttention),
		"recently_seen", len(recentlySeen),
		"suppressed", len(suppressed),
		"errors", len(failures),
	)

	if c.opts.OnPublish != nil {
		c.opts.OnPublish(snap)
	}
	return snap
}

// sendNotification composes the summary, dispatches it, and records a
// notification timestamp for every issue it covered. A nil notifier
// records nothing, so a muted run never throttles later cycles.
func (c *Coordinator) sendNotification(ctx context.Context, needsAttention []models.Issue, now time.Time) {
	if c.notifier == nil {
		return
	}
	prCount, flagCount := countByKind(needsAttention)
	c.notifier.Notify(ctx, notify.Event{
		Title:     "Work Driver",
		Body:      Summary(prCount, flagCount),
		URL:       c.opts.DashboardURL,
		PRCount:   prCount,
		FlagCount: flagCount,
	})
	for _, issue := range needsAttention {
		if err := c.store.RecordNotified(ctx, issue.Identity, now); err != nil {
			slog.Warn("Failed to record notification", "identity", issue.Identity, "error", err)
		}
	}
}

func (c *Coordinator) nextCheckAt() time.Time {
	if c.cron == nil {
		return time.Time{}
	}
	return c.cron.Entry(c.entryID).Next
}

func countByKind(issues []models.Issue) (prCount, flagCount int) {
	for _, issue := range issues {
		if issue.Category.IsPR() {
			prCount++
		} else {
			flagCount++
		}
	}
	return prCount, flagCount
}

// Summary renders the concise notification text, e.g.
// "2 PRs and 1 flag need attention".
func Summary(prCount, flagCount int) string {
	switch {
	case prCount == 0:
		return fmt.Sprintf("%d flag%s waiting", flagCount, plural(flagCount))
	case flagCount == 0:
		return fmt.Sprintf("%d PR%s %s attention", prCount, plural(prCount), needs(prCount))
	default:
		return fmt.Sprintf("%d PR%s and %d flag%s need attention",
			prCount, plural(prCount), flagCount, plural(flagCount))
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func needs(n int) string {
	if n == 1 {
		return "needs"
	}
	return "need"
}
