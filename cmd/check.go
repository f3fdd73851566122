package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haleyrc/workdriver/internal/config"
	"github.com/haleyrc/workdriver/internal/coordinator"
	"github.com/haleyrc/workdriver/internal/notify"
)

var checkNoNotify bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run all checks once and print the results",
	Long: `Runs a single cycle: polls GitHub and LaunchDarkly, classifies the
results against the persisted seen/throttle state, fires a desktop
notification for fresh issues, and prints everything to stdout.

Throttle state is shared with the serve daemon, so a one-shot check will
not re-alert issues that were notified in the last 19 minutes.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkNoNotify, "no-notify", false,
		"print results without sending a notification")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	cks, err := buildChecks(cfg)
	if err != nil {
		return err
	}

	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var notifier coordinator.Notifier
	if !checkNoNotify {
		notifier = notify.NewDispatcher(cfg.Notify)
	}

	coord := coordinator.New(cks, store, notifier, coordinator.Options{})
	snap := coord.RunCycle(ctx)

	if len(snap.NeedsAttention) == 0 && len(snap.RecentlySeen) == 0 &&
		len(snap.Suppressed) == 0 && len(snap.Errors) == 0 {
		fmt.Println("No issues found")
		return nil
	}

	if len(snap.NeedsAttention) > 0 {
		prCount, flagCount := 0, 0
		for _, issue := range snap.NeedsAttention {
			if issue.Category.IsPR() {
				prCount++
			} else {
				flagCount++
			}
		}
		fmt.Println(coordinator.Summary(prCount, flagCount))
		for _, issue := range snap.NeedsAttention {
			fmt.Printf("  %s\n    %s\n", issue.Title, issue.URL)
		}
	}
	for _, issue := range snap.RecentlySeen {
		fmt.Printf("  (seen) %s\n", issue.Title)
	}
	for _, issue := range snap.Suppressed {
		fmt.Printf("  (throttled) %s\n", issue.Title)
	}
	for _, failure := range snap.Errors {
		fmt.Printf("  check %s failed: %s\n", failure.Check, failure.Error)
	}
	return nil
}
