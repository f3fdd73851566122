package models

import "time"

// IssueCategory identifies which condition a check detected.
type IssueCategory string

const (
	CategoryPRFailingChecks      IssueCategory = "pr_failing_checks"
	CategoryPRDraftChecksPassing IssueCategory = "pr_draft_checks_passing"
	CategoryPRApprovedUnlabeled  IssueCategory = "pr_approved_unlabeled"
	CategoryPRAwaitingReview     IssueCategory = "pr_awaiting_review"
	CategoryFlagStaleRollout     IssueCategory = "flag_stale_rollout"
	CategoryFlagStagingAhead     IssueCategory = "flag_staging_ahead_of_production"
)

func (c IssueCategory) String() string { return string(c) }

// IsPR reports whether the category originates from the pull-request check.
// Used when composing notification summaries ("N PRs and M flags ...").
func (c IssueCategory) IsPR() bool {
	switch c {
	case CategoryPRFailingChecks, CategoryPRDraftChecksPassing,
		CategoryPRApprovedUnlabeled, CategoryPRAwaitingReview:
		return true
	}
	return false
}

// Issue is the common shape every check result is normalised into. No
// source-specific fields leak past this boundary; the coordinator, state
// store, and dashboard only ever see Issues.
type Issue struct {
	// Identity is stable across poll cycles for the same underlying entity
	// ("pr:owner/repo#123", "flag:project/key/env"). The state store keys
	// on it, never on transient fields.
	Identity   string        `json:"identity"`
	Category   IssueCategory `json:"category"`
	Title      string        `json:"title"`
	URL        string        `json:"url"`
	DetectedAt time.Time     `json:"detected_at"`
}
