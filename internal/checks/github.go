package checks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/haleyrc/workdriver/internal/config"
	"github.com/haleyrc/workdriver/models"
)

// PRCheck polls GitHub for open pull requests on the watched repository:
// PRs authored by the user and PRs where the user is a requested reviewer.
// PRs on the user's current local branch are excluded as noise.
type PRCheck struct {
	client     *gogithub.Client
	owner      string
	repo       string
	user       string
	readyLabel string
	workDir    string
}

// NewPRCheck creates a PRCheck from the given configuration.
func NewPRCheck(cfg config.GitHubConfig) (*PRCheck, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github.token is required")
	}
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("github.repo must be \"owner/name\", got %q", cfg.Repo)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	client := gogithub.NewClient(tc)

	// Support GitHub Enterprise by overriding the base URL.
	if cfg.Host != "" && cfg.Host != "github.com" {
		base := fmt.Sprintf("https://%s/api/v3/", cfg.Host)
		upload := fmt.Sprintf("https://%s/api/uploads/", cfg.Host)
		var err error
		client, err = client.WithEnterpriseURLs(base, upload)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub enterprise URLs: %w", err)
		}
	}

	readyLabel := cfg.ReadyLabel
	if readyLabel == "" {
		readyLabel = "ready-to-merge"
	}

	return &PRCheck{
		client:     client,
		owner:      owner,
		repo:       repo,
		user:       cfg.User,
		readyLabel: readyLabel,
		workDir:    cfg.WorkDir,
	}, nil
}

func (c *PRCheck) Name() string { return "github" }

// Run lists open PRs on the watched repository and emits issues for the
// ones needing attention. Authored PRs yield at most one category each;
// the awaiting-review issue is independent of those.
func (c *PRCheck) Run(ctx context.Context) ([]models.Issue, error) {
	login := c.user
	if login == "" {
		u, _, err := c.client.Users.Get(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("resolving authenticated user: %w", err)
		}
		login = u.GetLogin()
	}

	current := currentBranch(c.workDir)

	var issues []models.Issue
	now := time.Now().UTC()
	opts := &gogithub.PullRequestListOptions{
		State:       "open",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		prs, resp, err := c.client.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s/%s: %w", c.owner, c.repo, err)
		}

		for _, pr := range prs {
			if current != "" && pr.GetHead().GetRef() == current {
				continue
			}

			if pr.GetUser().GetLogin() == login {
				facts, err := c.gatherFacts(ctx, pr)
				if err != nil {
					return nil, err
				}
				if issue, ok := c.evaluateAuthored(facts, now); ok {
					issues = append(issues, issue)
				}
			}

			for _, reviewer := range pr.RequestedReviewers {
				if reviewer.GetLogin() != login {
					continue
				}
				issues = append(issues, models.Issue{
					Identity:   prIdentity(c.owner, c.repo, pr.GetNumber()),
					Category:   models.CategoryPRAwaitingReview,
					Title:      fmt.Sprintf("PR #%d '%s' awaiting your review", pr.GetNumber(), pr.GetTitle()),
					URL:        pr.GetHTMLURL(),
					DetectedAt: now,
				})
				break
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return issues, nil
}

// prFacts is everything the authored-PR rules need, gathered up front so
// the rules themselves are pure and testable.
type prFacts struct {
	Number        int
	Title         string
	URL           string
	Draft         bool
	Approved      bool
	HasReadyLabel bool
	HasFailure    bool
	AllComplete   bool
}

func (c *PRCheck) gatherFacts(ctx context.Context, pr *gogithub.PullRequest) (prFacts, error) {
	facts := prFacts{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		URL:    pr.GetHTMLURL(),
		Draft:  pr.GetDraft(),
	}
	for _, l := range pr.Labels {
		if l.GetName() == c.readyLabel {
			facts.HasReadyLabel = true
			break
		}
	}

	sha := pr.GetHead().GetSHA()
	combined, _, err := c.client.Repositories.GetCombinedStatus(ctx, c.owner, c.repo, sha, nil)
	if err != nil {
		return facts, fmt.Errorf("fetching combined status for PR #%d: %w", facts.Number, err)
	}
	runs, _, err := c.client.Checks.ListCheckRunsForRef(ctx, c.owner, c.repo, sha, nil)
	if err != nil {
		return facts, fmt.Errorf("fetching check runs for PR #%d: %w", facts.Number, err)
	}
	facts.HasFailure, facts.AllComplete = rollupStatuses(combined.Statuses, runs.CheckRuns)

	reviews, _, err := c.client.PullRequests.ListReviews(ctx, c.owner, c.repo, facts.Number, nil)
	if err != nil {
		return facts, fmt.Errorf("fetching reviews for PR #%d: %w", facts.Number, err)
	}
	facts.Approved = reviewDecisionApproved(reviews)

	return facts, nil
}

// evaluateAuthored applies the authored-PR rules in priority order. Each PR
// yields at most one authored issue per cycle.
func (c *PRCheck) evaluateAuthored(f prFacts, now time.Time) (models.Issue, bool) {
	identity := prIdentity(c.owner, c.repo, f.Number)
	switch {
	case f.HasFailure:
		return models.Issue{
			Identity:   identity,
			Category:   models.CategoryPRFailingChecks,
			Title:      fmt.Sprintf("PR #%d '%s' has failing checks", f.Number, f.Title),
			URL:        f.URL,
			DetectedAt: now,
		}, true
	case f.Draft && f.AllComplete:
		return models.Issue{
			Identity:   identity,
			Category:   models.CategoryPRDraftChecksPassing,
			Title:      fmt.Sprintf("PR #%d '%s' is draft with all checks passing", f.Number, f.Title),
			URL:        f.URL,
			DetectedAt: now,
		}, true
	case !f.Draft && f.AllComplete && f.Approved && !f.HasReadyLabel:
		return models.Issue{
			Identity:   identity,
			Category:   models.CategoryPRApprovedUnlabeled,
			Title:      fmt.Sprintf("PR #%d '%s' approved but missing %s label", f.Number, f.Title, c.readyLabel),
			URL:        f.URL,
			DetectedAt: now,
		}, true
	}
	return models.Issue{}, false
}

// rollupStatuses combines commit statuses and check runs into the two facts
// the rules care about. Statuses report state (success/pending/failure),
// check runs report status (queued/in_progress/completed) plus conclusion.
func rollupStatuses(statuses []*gogithub.RepoStatus, runs []*gogithub.CheckRun) (hasFailure, allComplete bool) {
	if len(statuses) == 0 && len(runs) == 0 {
		return false, false
	}

	allComplete = true
	for _, s := range statuses {
		switch s.GetState() {
		case "failure", "error":
			hasFailure = true
			allComplete = false
		case "success":
		default:
			allComplete = false
		}
	}
	for _, r := range runs {
		if r.GetStatus() != "completed" {
			allComplete = false
			continue
		}
		switch r.GetConclusion() {
		case "failure", "timed_out":
			hasFailure = true
			allComplete = false
		case "success", "neutral", "skipped":
		default:
			allComplete = false
		}
	}
	return hasFailure, allComplete
}

// reviewDecisionApproved reduces the review history to a decision: the
// latest review per reviewer counts, and any outstanding changes-requested
// vetoes approval.
func reviewDecisionApproved(reviews []*gogithub.PullRequestReview) bool {
	latest := make(map[string]string)
	for _, rv := range reviews {
		state := rv.GetState()
		if state != "APPROVED" && state != "CHANGES_REQUESTED" {
			continue
		}
		latest[rv.GetUser().GetLogin()] = state
	}
	approved := false
	for _, state := range latest {
		if state == "CHANGES_REQUESTED" {
			return false
		}
		if state == "APPROVED" {
			approved = true
		}
	}
	return approved
}

// currentBranch returns the checked-out branch of the local clone, or ""
// when it cannot be determined (missing clone, detached HEAD).
func currentBranch(workDir string) string {
	if workDir == "" {
		return ""
	}
	repo, err := gogit.PlainOpen(workDir)
	if err != nil {
		slog.Debug("Cannot open local repo for branch detection", "dir", workDir, "error", err)
		return ""
	}
	head, err := repo.Head()
	if err != nil || !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}

func prIdentity(owner, repo string, number int) string {
	return fmt.Sprintf("pr:%s/%s#%d", owner, repo, number)
}
