package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "taskmind"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage taskmind configuration.

Running bare 'taskmind config' is the same as 'taskmind config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# taskmind configuration
# See: taskmind config show (for effective values and sources)

# State/data directory (default: ~/.config/taskmind)
# state_dir: {{ .StateDir }}

# Vendor credentials. The API key usually comes from OPENAI_API_KEY instead.
openai:
  # api_key: ""
  # organization: ""
  # project: ""

# Assistant settings
assistant:
  # Assistant to run against (required for chat)
  id: "{{ .AssistantID }}"

  # Vector store for context search (empty disables it)
  vector_store_id: "{{ .VectorStoreID }}"

  # Model override for runs (default: "{{ .Model }}")
  model: "{{ .Model }}"

  # Sampling temperature (default: {{ .Temperature }})
  temperature: {{ .Temperature }}

  # Completion token cap per run (default: {{ .MaxTokens }})
  max_tokens: {{ .MaxTokens }}

  # Run polling interval and overall timeout
  poll_interval: "{{ .PollInterval }}"
  run_timeout: "{{ .RunTimeout }}"
`

type configTemplateData struct {
	StateDir      string
	AssistantID   string
	VectorStoreID string
	Model         string
	Temperature   float64
	MaxTokens     int64
	PollInterval  string
	RunTimeout    string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:      viper.GetString("state_dir"),
		AssistantID:   viper.GetString("assistant.id"),
		VectorStoreID: viper.GetString("assistant.vector_store_id"),
		Model:         viper.GetString("assistant.model"),
		Temperature:   viper.GetFloat64("assistant.temperature"),
		MaxTokens:     viper.GetInt64("assistant.max_tokens"),
		PollInterval:  viper.GetString("assistant.poll_interval"),
		RunTimeout:    viper.GetString("assistant.run_timeout"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "TASKMIND_STATE_DIR"},
	{Key: "openai.api_key", EnvVar: "OPENAI_API_KEY"},
	{Key: "openai.organization", EnvVar: "OPENAI_ORG_ID"},
	{Key: "openai.project", EnvVar: "OPENAI_PROJECT_ID"},
	{Key: "assistant.id", EnvVar: "TASKMIND_ASSISTANT_ID"},
	{Key: "assistant.vector_store_id", EnvVar: "TASKMIND_ASSISTANT_VECTOR_STORE_ID"},
	{Key: "assistant.model", EnvVar: "TASKMIND_ASSISTANT_MODEL"},
	{Key: "assistant.temperature", EnvVar: "TASKMIND_ASSISTANT_TEMPERATURE"},
	{Key: "assistant.max_tokens", EnvVar: "TASKMIND_ASSISTANT_MAX_TOKENS"},
	{Key: "assistant.poll_interval", EnvVar: "TASKMIND_ASSISTANT_POLL_INTERVAL"},
	{Key: "assistant.run_timeout", EnvVar: "TASKMIND_ASSISTANT_RUN_TIMEOUT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Key == "openai.api_key" && val != "" {
			val = "(set)"
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'taskmind config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
