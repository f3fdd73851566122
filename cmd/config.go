package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haleyrc/workdriver/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration (secrets redacted)",
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	path, err := config.ConfigPath(cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	redacted := *cfg
	redacted.GitHub.Token = redact(cfg.GitHub.Token)
	redacted.LaunchDarkly.APIToken = redact(cfg.LaunchDarkly.APIToken)
	redacted.Notify.Webhook.Secret = redact(cfg.Notify.Webhook.Secret)

	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("Config file: %s\n%s\n", path, data)
	return nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
