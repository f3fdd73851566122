package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haleyrc/workdriver/internal/config"
	"github.com/haleyrc/workdriver/models"
)

const (
	stagingStaleAfter    = 2 * time.Hour
	productionStaleAfter = 18 * time.Hour
)

// FlagCheck polls the LaunchDarkly REST API for boolean flags maintained
// by the configured user and reports stale partial rollouts and flags
// fully rolled out in staging but untouched in production.
type FlagCheck struct {
	client       *http.Client
	baseURL      string
	token        string
	maintainerID string
	projectKey   string
}

// NewFlagCheck creates a FlagCheck from the given configuration.
func NewFlagCheck(cfg config.LaunchDarklyConfig) (*FlagCheck, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("launchdarkly.api_token is required")
	}
	if cfg.MaintainerID == "" {
		return nil, fmt.Errorf("launchdarkly.maintainer_id is required")
	}
	projectKey := cfg.ProjectKey
	if projectKey == "" {
		projectKey = "default"
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://app.launchdarkly.com"
	}
	return &FlagCheck{
		client:       &http.Client{Timeout: 15 * time.Second},
		baseURL:      baseURL,
		token:        cfg.APIToken,
		maintainerID: cfg.MaintainerID,
		projectKey:   projectKey,
	}, nil
}

func (c *FlagCheck) Name() string { return "launchdarkly" }

// Run lists the maintainer's flags, fetches each flag's per-environment
// detail, and evaluates the rollout rules. A flag whose detail cannot be
// fetched is skipped; only the initial list call can fail the check.
func (c *FlagCheck) Run(ctx context.Context) ([]models.Issue, error) {
	listURL := fmt.Sprintf("%s/api/v2/flags/%s?filter=%s",
		c.baseURL, c.projectKey, url.QueryEscape("maintainerId:"+c.maintainerID))

	var list flagListResponse
	if err := c.getJSON(ctx, listURL, &list); err != nil {
		return nil, fmt.Errorf("fetching LaunchDarkly flags list: %w", err)
	}

	now := time.Now().UTC()
	var issues []models.Issue
	for _, flag := range list.Items {
		detailURL := fmt.Sprintf("%s/api/v2/flags/%s/%s", c.baseURL, c.projectKey, flag.Key)
		var detail flagDetail
		if err := c.getJSON(ctx, detailURL, &detail); err != nil {
			slog.Warn("Failed to fetch flag details", "flag", flag.Key, "error", err)
			continue
		}
		issues = append(issues, evaluateFlag(detail, c.projectKey, c.baseURL, now)...)
	}
	return issues, nil
}

func (c *FlagCheck) getJSON(ctx context.Context, rawURL string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("LaunchDarkly API returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// --- API payload types ---

type flagListResponse struct {
	Items []flagSummary `json:"items"`
}

type flagSummary struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type flagDetail struct {
	Key          string                     `json:"key"`
	Name         string                     `json:"name"`
	Kind         string                     `json:"kind"`
	Variations   []flagVariation            `json:"variations"`
	Environments map[string]flagEnvironment `json:"environments"`
}

type flagVariation struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

type flagEnvironment struct {
	// LastModified is a millisecond epoch; zero when the API omits it.
	LastModified int64            `json:"lastModified"`
	On           bool             `json:"on"`
	Fallthrough  *fallthroughRule `json:"fallthrough"`
}

type fallthroughRule struct {
	Rollout *rolloutRule `json:"rollout"`
}

type rolloutRule struct {
	Variations []weightedVariation `json:"variations"`
}

type weightedVariation struct {
	Variation int `json:"variation"`
	Weight    int `json:"weight"`
}

// --- rules ---

// evaluateFlag applies the rollout rules to one flag at time now.
// Non-boolean flags are skipped entirely: never reported, never erroring.
// The staging-ahead and stale-rollout categories are independent; both may
// fire for the same flag.
func evaluateFlag(detail flagDetail, projectKey, baseURL string, now time.Time) []models.Issue {
	if detail.Kind != "boolean" {
		return nil
	}

	var issues []models.Issue

	staging, stagingOK := environmentRollout(detail, "staging")
	production, productionOK := environmentRollout(detail, "production")

	if stagingOK && productionOK && staging == 100 && production == 0 {
		issues = append(issues, models.Issue{
			Identity: flagIdentity(projectKey, detail.Key, "production"),
			Category: models.CategoryFlagStagingAhead,
			Title: fmt.Sprintf("Flag '%s' rolled out to 100%% in staging, but not started in production",
				detail.Name),
			URL:        flagURL(baseURL, projectKey, detail.Key, "production"),
			DetectedAt: now,
		})
	}

	for _, envName := range []string{"staging", "production"} {
		env, ok := detail.Environments[envName]
		if !ok || env.LastModified == 0 {
			continue
		}
		staleAfter := stagingStaleAfter
		if envName == "production" {
			staleAfter = productionStaleAfter
		}
		modified := time.UnixMilli(env.LastModified)
		if now.Sub(modified) <= staleAfter {
			continue
		}
		rollout, ok := environmentRollout(detail, envName)
		if !ok || rollout <= 0 || rollout >= 100 {
			continue
		}
		issues = append(issues, models.Issue{
			Identity: flagIdentity(projectKey, detail.Key, envName),
			Category: models.CategoryFlagStaleRollout,
			Title: fmt.Sprintf("Flag '%s' in %s at partial %.0f%% rollout, not updated in %s",
				detail.Name, envName, rollout, staleLabel(staleAfter)),
			URL:        flagURL(baseURL, projectKey, detail.Key, envName),
			DetectedAt: now,
		})
	}

	return issues
}

// environmentRollout computes the percentage of traffic receiving the
// enabled variation in the named environment. The enabled variation is
// the one named "enabled", falling back to the one whose value is true.
func environmentRollout(detail flagDetail, envName string) (float64, bool) {
	env, ok := detail.Environments[envName]
	if !ok {
		return 0, false
	}
	if !env.On {
		return 0, true
	}

	enabledIdx := -1
	for i, v := range detail.Variations {
		if strings.EqualFold(v.Name, "enabled") {
			enabledIdx = i
			break
		}
	}
	if enabledIdx == -1 {
		for i, v := range detail.Variations {
			if b, ok := v.Value.(bool); ok && b {
				enabledIdx = i
				break
			}
		}
	}
	if enabledIdx == -1 {
		return 0, false
	}

	if env.Fallthrough == nil || env.Fallthrough.Rollout == nil {
		return 0, false
	}
	total := 0
	enabledWeight := 0
	for _, wv := range env.Fallthrough.Rollout.Variations {
		total += wv.Weight
		if wv.Variation == enabledIdx {
			enabledWeight = wv.Weight
		}
	}
	if total == 0 {
		return 0, true
	}
	return float64(enabledWeight) / float64(total) * 100, true
}

func staleLabel(d time.Duration) string {
	return fmt.Sprintf("%dh", int(d.Hours()))
}

func flagIdentity(project, key, env string) string {
	return fmt.Sprintf("flag:%s/%s/%s", project, key, env)
}

func flagURL(baseURL, project, key, env string) string {
	return fmt.Sprintf("%s/projects/%s/flags/%s/targeting?env=production&env=staging&selected-env=%s",
		baseURL, project, key, env)
}
