package config

// Config is the root configuration structure for workdriver.
// Serialised to ~/.workdriver/config.json.
type Config struct {
	GitHub       GitHubConfig       `mapstructure:"github"       json:"github"`
	LaunchDarkly LaunchDarklyConfig `mapstructure:"launchdarkly" json:"launchdarkly"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"     json:"schedule"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"    json:"dashboard"`
	Notify       NotifyConfig       `mapstructure:"notify"       json:"notify"`
	State        StateConfig        `mapstructure:"state"        json:"state"`
}

// GitHubConfig holds credentials and scope for the pull-request check.
type GitHubConfig struct {
	Token string `mapstructure:"token" json:"token"`
	// Host allows enterprise GitHub (e.g. github.mycompany.com).
	Host string `mapstructure:"host" json:"host"`
	// Repo is the "owner/name" of the repository being watched.
	Repo string `mapstructure:"repo" json:"repo"`
	// User is the GitHub login whose PRs and review requests are checked.
	// When empty the authenticated user is resolved from the token.
	User string `mapstructure:"user" json:"user"`
	// ReadyLabel is the label whose absence on an approved PR is reported.
	ReadyLabel string `mapstructure:"ready_label" json:"ready_label"`
	// WorkDir is the local clone of Repo, used to detect the current branch
	// so the PR you are actively working on is not reported. Empty disables
	// the exclusion.
	WorkDir string `mapstructure:"work_dir" json:"work_dir"`
}

// LaunchDarklyConfig holds credentials and scope for the feature-flag check.
type LaunchDarklyConfig struct {
	APIToken     string `mapstructure:"api_token"     json:"api_token"`
	MaintainerID string `mapstructure:"maintainer_id" json:"maintainer_id"`
	ProjectKey   string `mapstructure:"project_key"   json:"project_key"`
	// BaseURL overrides the API endpoint (useful for tests and proxies).
	BaseURL string `mapstructure:"base_url" json:"base_url"`
}

// ScheduleConfig controls how often the coordinator runs a cycle.
type ScheduleConfig struct {
	// Expr is a robfig/cron expression (default: "@every 30m").
	Expr string `mapstructure:"expr" json:"expr"`
	// CheckTimeoutSeconds bounds each check's external calls per cycle.
	CheckTimeoutSeconds int `mapstructure:"check_timeout_seconds" json:"check_timeout_seconds"`
}

// DashboardConfig controls the localhost dashboard server.
type DashboardConfig struct {
	// Port is the localhost HTTP port the dashboard listens on (default: 9845).
	Port int `mapstructure:"port" json:"port"`
}

// NotifyConfig holds settings for notification channels. The desktop
// channel needs no configuration; it is active whenever a notifier
// binary is found on PATH.
type NotifyConfig struct {
	Webhook WebhookNotifyConfig `mapstructure:"webhook" json:"webhook"`
}

// WebhookNotifyConfig configures the generic HTTP notification channel.
type WebhookNotifyConfig struct {
	URL    string `mapstructure:"url"    json:"url"`
	Secret string `mapstructure:"secret" json:"secret"`
}

// StateConfig controls where seen/throttle state is persisted.
type StateConfig struct {
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path" json:"path"`
}
