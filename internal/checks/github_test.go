package checks

import (
	"testing"
	"time"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/haleyrc/workdriver/models"
)

func testPRCheck() *PRCheck {
	return &PRCheck{owner: "acme", repo: "widgets", readyLabel: "ready-to-merge"}
}

func TestEvaluateAuthoredFailingChecksWins(t *testing.T) {
	c := testPRCheck()
	now := time.Now().UTC()

	// Failing checks outrank every other authored category, even when the
	// PR is also approved and unlabeled.
	issue, ok := c.evaluateAuthored(prFacts{
		Number:     591209,
		Title:      "Add frobnicator",
		HasFailure: true,
		Approved:   true,
	}, now)
	if !ok {
		t.Fatal("expected an issue")
	}
	if issue.Category != models.CategoryPRFailingChecks {
		t.Fatalf("expected failing-checks category, got %s", issue.Category)
	}
	if issue.Identity != "pr:acme/widgets#591209" {
		t.Fatalf("unexpected identity %q", issue.Identity)
	}
}

func TestEvaluateAuthoredTable(t *testing.T) {
	c := testPRCheck()
	now := time.Now().UTC()

	tests := []struct {
		name     string
		facts    prFacts
		want     models.IssueCategory
		wantNone bool
	}{
		{
			name:  "draft with all checks green",
			facts: prFacts{Number: 1, Draft: true, AllComplete: true},
			want:  models.CategoryPRDraftChecksPassing,
		},
		{
			name:  "approved but missing ready label",
			facts: prFacts{Number: 2, AllComplete: true, Approved: true},
			want:  models.CategoryPRApprovedUnlabeled,
		},
		{
			name:     "approved with ready label",
			facts:    prFacts{Number: 3, AllComplete: true, Approved: true, HasReadyLabel: true},
			wantNone: true,
		},
		{
			name:     "checks still running",
			facts:    prFacts{Number: 4},
			wantNone: true,
		},
		{
			name:     "green but not approved",
			facts:    prFacts{Number: 5, AllComplete: true},
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue, ok := c.evaluateAuthored(tt.facts, now)
			if tt.wantNone {
				if ok {
					t.Fatalf("expected no issue, got %s", issue.Category)
				}
				return
			}
			if !ok {
				t.Fatal("expected an issue")
			}
			if issue.Category != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, issue.Category)
			}
		})
	}
}

func TestRollupStatuses(t *testing.T) {
	status := func(state string) *gogithub.RepoStatus {
		return &gogithub.RepoStatus{State: gogithub.Ptr(state)}
	}
	run := func(status, conclusion string) *gogithub.CheckRun {
		r := &gogithub.CheckRun{Status: gogithub.Ptr(status)}
		if conclusion != "" {
			r.Conclusion = gogithub.Ptr(conclusion)
		}
		return r
	}

	tests := []struct {
		name         string
		statuses     []*gogithub.RepoStatus
		runs         []*gogithub.CheckRun
		wantFailure  bool
		wantComplete bool
	}{
		{
			name:         "no checks at all",
			wantFailure:  false,
			wantComplete: false,
		},
		{
			name:         "all green",
			statuses:     []*gogithub.RepoStatus{status("success")},
			runs:         []*gogithub.CheckRun{run("completed", "success"), run("completed", "skipped")},
			wantFailure:  false,
			wantComplete: true,
		},
		{
			name:         "status failure",
			statuses:     []*gogithub.RepoStatus{status("failure"), status("success")},
			wantFailure:  true,
			wantComplete: false,
		},
		{
			name:         "check run failed",
			runs:         []*gogithub.CheckRun{run("completed", "failure")},
			wantFailure:  true,
			wantComplete: false,
		},
		{
			name:         "check run in progress",
			runs:         []*gogithub.CheckRun{run("in_progress", "")},
			wantFailure:  false,
			wantComplete: false,
		},
		{
			name:         "pending status",
			statuses:     []*gogithub.RepoStatus{status("pending")},
			wantFailure:  false,
			wantComplete: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasFailure, allComplete := rollupStatuses(tt.statuses, tt.runs)
			if hasFailure != tt.wantFailure || allComplete != tt.wantComplete {
				t.Fatalf("got failure=%v complete=%v, want failure=%v complete=%v",
					hasFailure, allComplete, tt.wantFailure, tt.wantComplete)
			}
		})
	}
}

func TestReviewDecisionApproved(t *testing.T) {
	review := func(user, state string) *gogithub.PullRequestReview {
		return &gogithub.PullRequestReview{
			User:  &gogithub.User{Login: gogithub.Ptr(user)},
			State: gogithub.Ptr(state),
		}
	}

	if reviewDecisionApproved(nil) {
		t.Fatal("no reviews should not be approved")
	}
	if !reviewDecisionApproved([]*gogithub.PullRequestReview{review("alice", "APPROVED")}) {
		t.Fatal("single approval should be approved")
	}
	if reviewDecisionApproved([]*gogithub.PullRequestReview{
		review("alice", "APPROVED"),
		review("bob", "CHANGES_REQUESTED"),
	}) {
		t.Fatal("outstanding changes-requested should veto approval")
	}
	// Bob later approved; his latest review wins.
	if !reviewDecisionApproved([]*gogithub.PullRequestReview{
		review("bob", "CHANGES_REQUESTED"),
		review("alice", "COMMENTED"),
		review("bob", "APPROVED"),
	}) {
		t.Fatal("superseded changes-requested should not veto")
	}
}
