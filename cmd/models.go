package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/loftlabs/loft/internal/llm"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models from the configured provider",
	Long: `List available models from the configured provider.

Examples:
  loft models
  loft models --provider openai
  loft models --json`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return err
	}

	lister, ok := provider.(llm.ModelLister)
	if !ok {
		return fmt.Errorf("%s does not support listing models", provider.Name())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	models, err := lister.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Created > models[j].Created })

	if modelsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	}

	for _, m := range models {
		if m.DisplayName != "" && m.DisplayName != m.ID {
			fmt.Printf("%s\t%s\n", m.ID, m.DisplayName)
			continue
		}
		fmt.Println(m.ID)
	}
	return nil
}
