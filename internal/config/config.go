package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".workdriver"
	DefaultConfigFile = "config.json"
	DefaultStateFile  = ".workdriver/state.db"
)

// Load reads the config file and returns a populated Config. The configPath
// flag may override the default location. Environment variables override
// file values (e.g. GITHUB_TOKEN, LAUNCHDARKLY_API_TOKEN).
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about. The
	// required credentials have no defaults, so bind them explicitly or
	// GITHUB_TOKEN etc. would be ignored when no config file exists.
	for _, key := range []string{
		"github.token",
		"github.repo",
		"launchdarkly.api_token",
		"launchdarkly.maintainer_id",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
		// No config file yet; defaults plus environment carry the run.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// Validate checks that the credentials both checks need are present.
// A missing credential is fatal before the coordinator loop starts.
func (c *Config) Validate() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("github.token is required (or set GITHUB_TOKEN)")
	}
	if c.GitHub.Repo == "" {
		return fmt.Errorf("github.repo is required (\"owner/name\")")
	}
	if c.LaunchDarkly.APIToken == "" {
		return fmt.Errorf("launchdarkly.api_token is required (or set LAUNCHDARKLY_API_TOKEN)")
	}
	if c.LaunchDarkly.MaintainerID == "" {
		return fmt.Errorf("launchdarkly.maintainer_id is required (or set LAUNCHDARKLY_MAINTAINER_ID)")
	}
	return nil
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("github.host", "")
	v.SetDefault("github.ready_label", "ready-to-merge")

	v.SetDefault("launchdarkly.project_key", "default")
	v.SetDefault("launchdarkly.base_url", "https://app.launchdarkly.com")

	v.SetDefault("schedule.expr", "@every 30m")
	v.SetDefault("schedule.check_timeout_seconds", 30)

	v.SetDefault("dashboard.port", 9845)

	v.SetDefault("state.path", filepath.Join(home, DefaultStateFile))
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.State.Path = expandHome(cfg.State.Path, home)
	cfg.GitHub.WorkDir = expandHome(cfg.GitHub.WorkDir, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
