// Package config handles configuration loading for the refinement
// pipeline. It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/refinelab/refinery/internal/baseline"
	"github.com/refinelab/refinery/internal/evaluate"
	"github.com/refinelab/refinery/internal/policy"
	"github.com/refinelab/refinery/internal/refine"
	"github.com/refinelab/refinery/internal/repair"
	"github.com/refinelab/refinery/internal/verify"
)

// Config holds all configuration for a refinement run.
type Config struct {
	Run      RunConfig       `mapstructure:"run"`
	Baseline baseline.Config `mapstructure:"baseline"`
	Evaluate evaluate.Config `mapstructure:"evaluate"`
	Verify   verify.Config   `mapstructure:"verify"`
	Refine   refine.Config   `mapstructure:"refine"`
	Repair   repair.Config   `mapstructure:"repair"`
	Policy   policy.Config   `mapstructure:"policy"`
	TUI      TUIConfig       `mapstructure:"tui"`
}

// RunConfig holds orchestration settings.
type RunConfig struct {
	// RunsDir is where run directories are created.
	RunsDir string `mapstructure:"runs_dir"`
	// Workers is the number of concurrent unit workers.
	Workers int `mapstructure:"workers"`
	// MaxRetries is how many times a transient phase failure is retried.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the pause between retries of the same phase.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// TUIConfig holds dashboard display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, REFINERY_POLICY_URL)
// 2. Project config (.refinery.yaml in current directory or parent)
// 3. User config (~/.config/refinery/config.yaml)
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

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("repair.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("policy.base_url", "REFINERY_POLICY_URL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Repair.APIKey = expandEnv(cfg.Repair.APIKey)

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

	cfg.Repair.APIKey = expandEnv(cfg.Repair.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("run.runs_dir", cfg.Run.RunsDir)
	v.Set("run.workers", cfg.Run.Workers)
	v.Set("run.max_retries", cfg.Run.MaxRetries)
	v.Set("run.retry_delay", cfg.Run.RetryDelay.String())
	v.Set("baseline.evosuite_jar", cfg.Baseline.EvoSuiteJar)
	v.Set("baseline.search_budget", cfg.Baseline.SearchBudget)
	v.Set("evaluate.junit_jar", cfg.Evaluate.JUnitJar)
	v.Set("evaluate.hamcrest_jar", cfg.Evaluate.HamcrestJar)
	v.Set("evaluate.evosuite_runtime_jar", cfg.Evaluate.EvoSuiteRuntimeJar)
	v.Set("evaluate.jacoco_agent_jar", cfg.Evaluate.JaCoCoAgentJar)
	v.Set("evaluate.jacoco_cli_jar", cfg.Evaluate.JaCoCoCLIJar)
	v.Set("evaluate.pitest_jar", cfg.Evaluate.PitestJar)
	v.Set("refine.steps", cfg.Refine.Steps)
	v.Set("refine.group_size", cfg.Refine.Optimizer.GroupSize)
	v.Set("policy.base_url", cfg.Policy.BaseURL)
	v.Set("repair.api_key", cfg.Repair.APIKey)
	v.Set("repair.model", cfg.Repair.Model)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values. The per-package defaults are
// the source of truth; this flattens them into viper keys so partial
// config files inherit the rest.
func setDefaults(v *viper.Viper) {
	// Run defaults
	v.SetDefault("run.runs_dir", "runs")
	v.SetDefault("run.workers", 4)
	v.SetDefault("run.max_retries", 2)
	v.SetDefault("run.retry_delay", "5s")

	// Baseline generation defaults
	bl := baseline.DefaultConfig()
	v.SetDefault("baseline.evosuite_jar", bl.EvoSuiteJar)
	v.SetDefault("baseline.search_budget", bl.SearchBudget)
	v.SetDefault("baseline.startup_grace", bl.StartupGrace.String())

	// Evaluation defaults
	ev := evaluate.DefaultConfig()
	v.SetDefault("evaluate.junit_jar", ev.JUnitJar)
	v.SetDefault("evaluate.hamcrest_jar", ev.HamcrestJar)
	v.SetDefault("evaluate.evosuite_runtime_jar", ev.EvoSuiteRuntimeJar)
	v.SetDefault("evaluate.jacoco_agent_jar", ev.JaCoCoAgentJar)
	v.SetDefault("evaluate.jacoco_cli_jar", ev.JaCoCoCLIJar)
	v.SetDefault("evaluate.pitest_jar", ev.PitestJar)
	v.SetDefault("evaluate.compile_timeout", ev.CompileTimeout.String())
	v.SetDefault("evaluate.test_timeout", ev.TestTimeout.String())
	v.SetDefault("evaluate.mutation_timeout", ev.MutationTimeout.String())

	// Verification defaults
	vf := verify.DefaultConfig()
	v.SetDefault("verify.junit_jar", vf.JUnitJar)
	v.SetDefault("verify.hamcrest_jar", vf.HamcrestJar)
	v.SetDefault("verify.evosuite_runtime_jar", vf.EvoSuiteRuntimeJar)
	v.SetDefault("verify.compile_timeout", vf.CompileTimeout.String())
	v.SetDefault("verify.test_timeout", vf.TestTimeout.String())
	v.SetDefault("verify.repair_attempts", vf.RepairAttempts)

	// Refinement defaults
	rf := refine.DefaultConfig()
	v.SetDefault("refine.steps", rf.Steps)
	v.SetDefault("refine.group_size", rf.Optimizer.GroupSize)
	v.SetDefault("refine.temperature", rf.Optimizer.Temperature)
	v.SetDefault("refine.epsilon", rf.Optimizer.Epsilon)
	v.SetDefault("refine.normalize_advantage", rf.Optimizer.NormalizeAdvantage)
	v.SetDefault("refine.std_epsilon", rf.Optimizer.StdEpsilon)
	v.SetDefault("refine.reference_refresh_interval", rf.Optimizer.ReferenceRefreshInterval)
	v.SetDefault("refine.learning_rate_backoff", rf.Optimizer.LearningRateBackoff)
	v.SetDefault("refine.collapse.window", rf.Optimizer.Collapse.Window)
	v.SetDefault("refine.collapse.fraction", rf.Optimizer.Collapse.Fraction)
	v.SetDefault("refine.collapse.min_steps", rf.Optimizer.Collapse.MinSteps)
	v.SetDefault("refine.collapse.clip_saturation_fraction", rf.Optimizer.Collapse.ClipSaturationFraction)
	v.SetDefault("refine.collapse.clip_saturation_steps", rf.Optimizer.Collapse.ClipSaturationSteps)
	v.SetDefault("refine.collapse.action", string(rf.Optimizer.Collapse.Action))
	v.SetDefault("refine.weights.coverage", rf.Weights.Coverage)
	v.SetDefault("refine.weights.mutation", rf.Weights.Mutation)
	v.SetDefault("refine.weights.readability", rf.Weights.Readability)
	v.SetDefault("refine.weights.complexity", rf.Weights.Complexity)
	v.SetDefault("refine.weights.smells", rf.Weights.Smells)
	v.SetDefault("refine.penalty_floor", rf.PenaltyFloor)

	// Repair defaults
	rp := repair.DefaultConfig()
	v.SetDefault("repair.model", rp.Model)
	v.SetDefault("repair.api_key", "")
	v.SetDefault("repair.use_aws_bedrock", rp.UseAWSBedrock)
	v.SetDefault("repair.aws_region", rp.AWSRegion)
	v.SetDefault("repair.aws_profile", rp.AWSProfile)
	v.SetDefault("repair.max_tokens", rp.MaxTokens)
	v.SetDefault("repair.max_attempts", rp.MaxAttempts)

	// Policy server defaults
	pl := policy.DefaultConfig()
	v.SetDefault("policy.base_url", pl.BaseURL)
	v.SetDefault("policy.request_timeout", pl.RequestTimeout.String())
	v.SetDefault("policy.seed", pl.Seed)

	// TUI defaults
	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for refinery.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "refinery")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "refinery")
	}
	return filepath.Join(home, ".config", "refinery")
}

// findProjectConfig searches for .refinery.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".refinery.yaml")
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

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			RunsDir:    "runs",
			Workers:    4,
			MaxRetries: 2,
			RetryDelay: 5 * time.Second,
		},
		Baseline: baseline.DefaultConfig(),
		Evaluate: evaluate.DefaultConfig(),
		Verify:   verify.DefaultConfig(),
		Refine:   refine.DefaultConfig(),
		Repair:   repair.DefaultConfig(),
		Policy:   policy.DefaultConfig(),
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
