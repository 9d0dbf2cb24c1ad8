package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskmindhq/taskmind/internal/agent"
	"github.com/taskmindhq/taskmind/internal/assistant"
	"github.com/taskmindhq/taskmind/internal/learning"
	"github.com/taskmindhq/taskmind/internal/output"
	"github.com/taskmindhq/taskmind/internal/tasks"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui               *output.UI
	taskRegistry     *tasks.Registry
	learningRegistry *learning.Registry

	verbose bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "taskmind",
	Short: "taskmind - assistant-driven task and learning tracker",
	Long: `taskmind orchestrates a remote AI assistant over local task and
learning registries. Messages run through the vendor's thread/run API;
tool calls from the assistant are dispatched to the in-memory registries,
and lessons from past runs bias future prompts.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/taskmind/config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskmind %s (commit %s, built %s)\n",
				buildVersion, buildCommit, buildDate)
		},
	})
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "taskmind")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TASKMIND")
	viper.AutomaticEnv()

	// Vendor credentials also come from the conventional unprefixed vars.
	_ = viper.BindEnv("openai.api_key", "TASKMIND_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.organization", "TASKMIND_OPENAI_ORG", "OPENAI_ORG_ID")
	_ = viper.BindEnv("openai.project", "TASKMIND_OPENAI_PROJECT", "OPENAI_PROJECT_ID")

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "taskmind")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.organization", "")
	viper.SetDefault("openai.project", "")
	viper.SetDefault("assistant.id", "")
	viper.SetDefault("assistant.vector_store_id", "")
	viper.SetDefault("assistant.model", "gpt-4o")
	viper.SetDefault("assistant.temperature", 0.7)
	viper.SetDefault("assistant.max_tokens", 4096)
	viper.SetDefault("assistant.poll_interval", "1s")
	viper.SetDefault("assistant.run_timeout", "2m")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	taskRegistry = tasks.NewRegistry()
	learningRegistry = learning.NewRegistry()
}

// assistantConfig assembles the vendor client config from viper.
func assistantConfig() assistant.Config {
	return assistant.Config{
		APIKey:        viper.GetString("openai.api_key"),
		Organization:  viper.GetString("openai.organization"),
		Project:       viper.GetString("openai.project"),
		AssistantID:   viper.GetString("assistant.id"),
		VectorStoreID: viper.GetString("assistant.vector_store_id"),
		Model:         viper.GetString("assistant.model"),
		Temperature:   viper.GetFloat64("assistant.temperature"),
		MaxTokens:     viper.GetInt64("assistant.max_tokens"),
		PollInterval:  durationSetting("assistant.poll_interval", time.Second),
		RunTimeout:    durationSetting("assistant.run_timeout", 2*time.Minute),
	}
}

func durationSetting(key string, fallback time.Duration) time.Duration {
	d := viper.GetDuration(key)
	if d <= 0 {
		return fallback
	}
	return d
}

// getOrchestrator builds the assistant client and orchestrator. Fatal when
// required credentials are missing.
func getOrchestrator() (*agent.Orchestrator, error) {
	cfg := assistantConfig()

	client, err := assistant.NewClient(cfg, agent.ToolDefinitions())
	if err != nil {
		return nil, err
	}

	var search agent.ContextSearcher
	if cfg.VectorStoreID != "" {
		vs, err := assistant.NewVectorStoreSearcher(client)
		if err != nil {
			return nil, err
		}
		search = vs
	}

	return agent.New(client, search, taskRegistry, learningRegistry), nil
}
