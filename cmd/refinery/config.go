package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/refinelab/refinery/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify refinery configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/refinery/config.yaml
Project-specific overrides can be placed in .refinery.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints the commonly adjusted configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("run.runs_dir: %s\n", cfg.Run.RunsDir)
	fmt.Printf("run.workers: %d\n", cfg.Run.Workers)
	fmt.Printf("run.max_retries: %d\n", cfg.Run.MaxRetries)
	fmt.Printf("run.retry_delay: %s\n", cfg.Run.RetryDelay)
	fmt.Printf("baseline.evosuite_jar: %s\n", orUnset(cfg.Baseline.EvoSuiteJar))
	fmt.Printf("baseline.search_budget: %d\n", cfg.Baseline.SearchBudget)
	fmt.Printf("evaluate.junit_jar: %s\n", orUnset(cfg.Evaluate.JUnitJar))
	fmt.Printf("evaluate.jacoco_agent_jar: %s\n", orUnset(cfg.Evaluate.JaCoCoAgentJar))
	fmt.Printf("evaluate.pitest_jar: %s\n", orUnset(cfg.Evaluate.PitestJar))
	fmt.Printf("refine.steps: %d\n", cfg.Refine.Steps)
	fmt.Printf("refine.group_size: %d\n", cfg.Refine.Optimizer.GroupSize)
	fmt.Printf("refine.epsilon: %g\n", cfg.Refine.Optimizer.Epsilon)
	fmt.Printf("policy.base_url: %s\n", cfg.Policy.BaseURL)
	fmt.Printf("repair.api_key: %s\n", config.MaskAPIKey(cfg.Repair.APIKey))
	fmt.Printf("repair.model: %s\n", orUnset(cfg.Repair.Model))
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "run.runs_dir":
		return cfg.Run.RunsDir, nil
	case "run.workers":
		return strconv.Itoa(cfg.Run.Workers), nil
	case "run.max_retries":
		return strconv.Itoa(cfg.Run.MaxRetries), nil
	case "run.retry_delay":
		return cfg.Run.RetryDelay.String(), nil
	case "baseline.evosuite_jar":
		return orUnset(cfg.Baseline.EvoSuiteJar), nil
	case "baseline.search_budget":
		return strconv.Itoa(cfg.Baseline.SearchBudget), nil
	case "refine.steps":
		return strconv.Itoa(cfg.Refine.Steps), nil
	case "refine.group_size":
		return strconv.Itoa(cfg.Refine.Optimizer.GroupSize), nil
	case "policy.base_url":
		return cfg.Policy.BaseURL, nil
	case "repair.api_key":
		return config.MaskAPIKey(cfg.Repair.APIKey), nil
	case "repair.model":
		return orUnset(cfg.Repair.Model), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue updates a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "run.runs_dir":
		cfg.Run.RunsDir = value
	case "run.workers":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("run.workers must be a positive integer")
		}
		cfg.Run.Workers = n
	case "run.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("run.max_retries must be a non-negative integer")
		}
		cfg.Run.MaxRetries = n
	case "run.retry_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("run.retry_delay must be a duration like 5s")
		}
		cfg.Run.RetryDelay = d
	case "baseline.evosuite_jar":
		cfg.Baseline.EvoSuiteJar = value
	case "baseline.search_budget":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("baseline.search_budget must be a positive integer")
		}
		cfg.Baseline.SearchBudget = n
	case "refine.steps":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("refine.steps must be a positive integer")
		}
		cfg.Refine.Steps = n
	case "refine.group_size":
		n, err := strconv.Atoi(value)
		if err != nil || n < 2 {
			return fmt.Errorf("refine.group_size must be at least 2")
		}
		cfg.Refine.Optimizer.GroupSize = n
	case "policy.base_url":
		cfg.Policy.BaseURL = value
	case "repair.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Repair.APIKey = value
	case "repair.model":
		cfg.Repair.Model = value
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("tui.refresh_rate must be a duration like 100ms")
		}
		cfg.TUI.RefreshRate = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
