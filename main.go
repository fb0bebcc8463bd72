package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shibayu36/personachat/chat"
	"github.com/shibayu36/personachat/config"
	"github.com/shibayu36/personachat/llm"
	"github.com/shibayu36/personachat/logging"
	"github.com/shibayu36/personachat/memory"
	"github.com/shibayu36/personachat/persona"
	"github.com/shibayu36/personachat/theme"
)

type globalOptions struct {
	dataDir    string
	promptsDir string
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "personachat",
		Short:         "Local web chat with persona prompts and saved history",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(opts.logLevel, opts.logFormat, os.Stderr)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.dataDir, "data-dir", envOr("PERSONACHAT_DATA_DIR", defaultDataDir()), "directory holding history, themes and settings")
	flags.StringVar(&opts.promptsDir, "prompts-dir", os.Getenv("PERSONACHAT_PROMPTS_DIR"), "persona directory (default <data-dir>/prompts)")
	flags.StringVar(&opts.configPath, "config", os.Getenv("PERSONACHAT_CONFIG"), "backend settings file (default <data-dir>/.env)")
	flags.StringVar(&opts.logLevel, "log-level", envOr("PERSONACHAT_LOG_LEVEL", "info"), "log level")
	flags.StringVar(&opts.logFormat, "log-format", envOr("PERSONACHAT_LOG_FORMAT", "text"), "log format: text or json")

	root.AddCommand(
		newServeCmd(opts),
		newPersonasCmd(opts),
		newHistoryCmd(opts),
		newModelsCmd(opts),
		newThemesCmd(opts),
	)
	return root
}

// app holds the stores shared by every command.
type app struct {
	personas *persona.Store
	configs  *config.Store
	themes   *theme.Store
	history  *memory.Manager
}

func openApp(opts *globalOptions) (*app, error) {
	promptsDir := opts.promptsDir
	if promptsDir == "" {
		promptsDir = filepath.Join(opts.dataDir, "prompts")
	}
	configPath := opts.configPath
	if configPath == "" {
		configPath = filepath.Join(opts.dataDir, ".env")
	}

	history, err := memory.NewManager(filepath.Join(opts.dataDir, "history"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}

	return &app{
		personas: persona.NewStore(promptsDir),
		configs:  config.NewStore(configPath),
		themes:   theme.NewStore(filepath.Join(opts.dataDir, "themes")),
		history:  history,
	}, nil
}

// orchestrator builds a chat orchestrator configured from the saved settings.
func (a *app) orchestrator() (*chat.Orchestrator, error) {
	cfg, err := a.configs.Load()
	if err != nil {
		return nil, err
	}
	orch := chat.NewOrchestrator(a.personas, a.history, func(cfg config.Config) chat.Engine {
		return llm.NewClient(cfg)
	})
	orch.Configure(cfg)
	return orch, nil
}

func (a *app) Close() error {
	return a.history.Close()
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share", "personachat")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
