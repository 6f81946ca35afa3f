package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/llm"
	"github.com/loftlabs/loft/internal/session"
	"github.com/loftlabs/loft/internal/tools"
)

var Version = "dev"

var (
	flagProvider string
	flagModel    string
	flagProject  string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "loft",
	Short: "An LLM coding assistant for your project",
	Long: `loft runs an LLM-backed assistant against the current project.
The model can read, search, and edit files and run shell commands;
every file change is tracked and reversible until you accept it.

Examples:
  loft ask "add a --verbose flag to the CLI"
  loft ask "why does TestLogin fail?" -c <conversation-id>

  loft changes                 # review pending file changes
  loft changes accept --all    # keep everything
  loft changes reject <id>     # restore one file

  loft conversations           # past conversations for this project`,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&flagProvider, "provider", "p", "", "Provider or provider:model (anthropic, openai, gemini)")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Model override for the selected provider")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "C", "", "Project directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(flagProvider, flagModel)
	return cfg, nil
}

func projectPath() (string, error) {
	if flagProject != "" {
		return flagProject, nil
	}
	return os.Getwd()
}

func newLogger() *zap.SugaredLogger {
	level := zapcore.WarnLevel
	if flagVerbose {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core).Sugar()
}

// newService wires the full stack for the current project.
func newService(cfg *config.Config) (*session.Service, error) {
	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	project, err := projectPath()
	if err != nil {
		return nil, err
	}
	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return nil, err
	}
	return session.NewService(session.Options{
		ProjectPath: project,
		DataDir:     dataDir,
		Provider:    provider,
		MaxSteps:    cfg.Session.MaxSteps,
		Shell: tools.ShellConfig{
			TimeoutSeconds: cfg.Shell.TimeoutSeconds,
			Deny:           cfg.Shell.Deny,
		},
		Log: newLogger(),
	})
}
