// Package config handles configuration loading and management for coralph.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for a coralph run. It is built once by
// the driver and treated as immutable for the duration of the run.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Run       RunConfig       `mapstructure:"run"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Display   DisplayConfig   `mapstructure:"display"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key"`
	// UseBedrock routes requests through AWS Bedrock instead of the direct API.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
}

// RunConfig holds the loop parameters.
type RunConfig struct {
	// Model is the model name sent to the backend.
	Model string `mapstructure:"model"`
	// MaxIterations bounds the number of sessions per run.
	MaxIterations int `mapstructure:"max_iterations"`
	// MaxTokens is the per-response token budget.
	MaxTokens int `mapstructure:"max_tokens"`
}

// PathsConfig holds the working-directory file locations.
type PathsConfig struct {
	Prompt   string `mapstructure:"prompt"`
	Issues   string `mapstructure:"issues"`
	Tasks    string `mapstructure:"tasks"`
	Progress string `mapstructure:"progress"`
}

// DisplayConfig holds output settings.
type DisplayConfig struct {
	// ShowReasoning forwards assistant text to the terminal as it streams.
	ShowReasoning bool `mapstructure:"show_reasoning"`
	// Color enables colorized output.
	Color bool `mapstructure:"color"`
}

// ProjectConfigName is the per-project override file searched for in the
// working directory and its parents.
const ProjectConfigName = ".coralph.yaml"

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.coralph.yaml in current directory or parent)
// 3. User config (~/.config/coralph/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Validate checks that the loop parameters are usable.
func (c *Config) Validate() error {
	if c.Run.MaxIterations < 1 {
		return fmt.Errorf("run.max_iterations must be at least 1, got %d", c.Run.MaxIterations)
	}
	if c.Run.MaxTokens < 1 {
		return fmt.Errorf("run.max_tokens must be at least 1, got %d", c.Run.MaxTokens)
	}
	if c.Run.Model == "" {
		return fmt.Errorf("run.model must not be empty")
	}
	for name, p := range map[string]string{
		"paths.prompt":   c.Paths.Prompt,
		"paths.issues":   c.Paths.Issues,
		"paths.tasks":    c.Paths.Tasks,
		"paths.progress": c.Paths.Progress,
	} {
		if p == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("run.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("run.max_iterations", 10)
	v.SetDefault("run.max_tokens", 8192)

	v.SetDefault("paths.prompt", "PROMPT.md")
	v.SetDefault("paths.issues", "issues.json")
	v.SetDefault("paths.tasks", "tasks.json")
	v.SetDefault("paths.progress", "progress.log")

	v.SetDefault("display.show_reasoning", true)
	v.SetDefault("display.color", true)
}

// getUserConfigDir returns the XDG config directory for coralph.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "coralph")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "coralph")
	}
	return filepath.Join(home, ".config", "coralph")
}

// findProjectConfig searches for .coralph.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Model:         "claude-sonnet-4-5-20250929",
			MaxIterations: 10,
			MaxTokens:     8192,
		},
		Paths: PathsConfig{
			Prompt:   "PROMPT.md",
			Issues:   "issues.json",
			Tasks:    "tasks.json",
			Progress: "progress.log",
		},
		Display: DisplayConfig{
			ShowReasoning: true,
			Color:         true,
		},
	}
}
