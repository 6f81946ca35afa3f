package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loftlabs/loft/internal/config"
)

const configTemplate = `# loft configuration
#
# provider: anthropic | openai | gemini, optionally "provider:model"
provider: anthropic

# anthropic:
#   api_key: ${ANTHROPIC_API_KEY}
#   model: claude-sonnet-4-5
# openai:
#   model: gpt-5.2
# gemini:
#   model: gemini-3-flash-preview

# reasoning:
#   enabled: true
#   effort: medium

# session:
#   max_steps: 25

# shell:
#   timeout_seconds: 30
#   deny:
#     - "git push*"

# history:
#   data_dir: ~/.local/share/loft
`

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented config file template",
	RunE:  runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return err
	}

	fmt.Printf("config file:  %s\n", path)
	fmt.Printf("data dir:     %s\n", dataDir)
	fmt.Printf("provider:     %s\n", cfg.Provider)
	fmt.Printf("anthropic:    model=%s key=%s\n", cfg.Anthropic.Model, redactKey(cfg.Anthropic.APIKey))
	fmt.Printf("openai:       model=%s key=%s\n", cfg.OpenAI.Model, redactKey(cfg.OpenAI.APIKey))
	fmt.Printf("gemini:       model=%s key=%s\n", cfg.Gemini.Model, redactKey(cfg.Gemini.APIKey))
	fmt.Printf("reasoning:    enabled=%t effort=%s\n", cfg.Reasoning.Enabled, cfg.Reasoning.Effort)
	fmt.Printf("max steps:    %d\n", cfg.Session.MaxSteps)
	fmt.Printf("shell:        timeout=%ds deny=%d pattern(s)\n", cfg.Shell.TimeoutSeconds, len(cfg.Shell.Deny))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func redactKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
