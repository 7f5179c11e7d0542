package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Run.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Run.Workers)
	}
	if cfg.Run.RetryDelay != 5*time.Second {
		t.Errorf("RetryDelay = %v, want 5s", cfg.Run.RetryDelay)
	}
	if cfg.Refine.Optimizer.GroupSize != 8 {
		t.Errorf("GroupSize = %d, want 8", cfg.Refine.Optimizer.GroupSize)
	}
	if cfg.Refine.Weights.Coverage != 0.2 {
		t.Errorf("Weights.Coverage = %g, want 0.2", cfg.Refine.Weights.Coverage)
	}
	if cfg.Evaluate.MutationTimeout != 5*time.Minute {
		t.Errorf("MutationTimeout = %v, want 5m", cfg.Evaluate.MutationTimeout)
	}
	if cfg.Policy.BaseURL == "" {
		t.Error("Policy.BaseURL should have a default")
	}
}

func TestLoadFromPathAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "run:\n  workers: 2\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Run.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Run.Workers)
	}
	// Everything else inherits defaults.
	if cfg.Run.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want default 2", cfg.Run.MaxRetries)
	}
	if cfg.Refine.Steps != 5 {
		t.Errorf("Refine.Steps = %d, want default 5", cfg.Refine.Steps)
	}
	if cfg.Verify.RepairAttempts != 3 {
		t.Errorf("RepairAttempts = %d, want default 3", cfg.Verify.RepairAttempts)
	}
}

func TestLoadFromPathOverrides(t *testing.T) {
	path := writeConfigFile(t, `
run:
  workers: 8
  retry_delay: 30s
baseline:
  evosuite_jar: /opt/jars/evosuite.jar
  search_budget: 120
evaluate:
  mutation_timeout: 10m
refine:
  steps: 12
  group_size: 4
  epsilon: 0.1
  collapse:
    window: 20
  weights:
    coverage: 0.4
    mutation: 0.4
    readability: 0.1
    complexity: 0.05
    smells: 0.05
policy:
  base_url: http://policy:9000
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Run.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Run.Workers)
	}
	if cfg.Run.RetryDelay != 30*time.Second {
		t.Errorf("RetryDelay = %v, want 30s", cfg.Run.RetryDelay)
	}
	if cfg.Baseline.EvoSuiteJar != "/opt/jars/evosuite.jar" {
		t.Errorf("EvoSuiteJar = %q", cfg.Baseline.EvoSuiteJar)
	}
	if cfg.Baseline.SearchBudget != 120 {
		t.Errorf("SearchBudget = %d, want 120", cfg.Baseline.SearchBudget)
	}
	if cfg.Evaluate.MutationTimeout != 10*time.Minute {
		t.Errorf("MutationTimeout = %v, want 10m", cfg.Evaluate.MutationTimeout)
	}
	if cfg.Refine.Steps != 12 {
		t.Errorf("Refine.Steps = %d, want 12", cfg.Refine.Steps)
	}
	if cfg.Refine.Optimizer.GroupSize != 4 {
		t.Errorf("GroupSize = %d, want 4", cfg.Refine.Optimizer.GroupSize)
	}
	if cfg.Refine.Optimizer.Epsilon != 0.1 {
		t.Errorf("Epsilon = %g, want 0.1", cfg.Refine.Optimizer.Epsilon)
	}
	if cfg.Refine.Optimizer.Collapse.Window != 20 {
		t.Errorf("Collapse.Window = %d, want 20", cfg.Refine.Optimizer.Collapse.Window)
	}
	// Unset collapse keys keep their defaults.
	if cfg.Refine.Optimizer.Collapse.MinSteps != 5 {
		t.Errorf("Collapse.MinSteps = %d, want default 5", cfg.Refine.Optimizer.Collapse.MinSteps)
	}
	if cfg.Refine.Weights.Coverage != 0.4 {
		t.Errorf("Weights.Coverage = %g, want 0.4", cfg.Refine.Weights.Coverage)
	}
	if cfg.Policy.BaseURL != "http://policy:9000" {
		t.Errorf("Policy.BaseURL = %q", cfg.Policy.BaseURL)
	}
}

func TestLoadFromPathValidOptimizerConfig(t *testing.T) {
	path := writeConfigFile(t, "refine:\n  group_size: 16\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if err := cfg.Refine.Optimizer.Validate(); err != nil {
		t.Errorf("loaded optimizer config should validate: %v", err)
	}
}

func TestLoadFromPathExpandsAPIKey(t *testing.T) {
	t.Setenv("TEST_REFINERY_KEY", "sk-ant-from-env-0123456789")
	path := writeConfigFile(t, "repair:\n  api_key: ${TEST_REFINERY_KEY}\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Repair.APIKey != "sk-ant-from-env-0123456789" {
		t.Errorf("APIKey = %q, want expanded value", cfg.Repair.APIKey)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestGetUserConfigPathHonorsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "refinery", "config.yaml")
	if got := GetUserConfigPath(); got != want {
		t.Errorf("GetUserConfigPath() = %q, want %q", got, want)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Run.Workers = 6
	cfg.Policy.BaseURL = "http://localhost:9999"
	cfg.Refine.Steps = 7

	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadFromPath(GetUserConfigPath())
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if loaded.Run.Workers != 6 {
		t.Errorf("Workers = %d, want 6", loaded.Run.Workers)
	}
	if loaded.Policy.BaseURL != "http://localhost:9999" {
		t.Errorf("Policy.BaseURL = %q", loaded.Policy.BaseURL)
	}
	if loaded.Refine.Steps != 7 {
		t.Errorf("Refine.Steps = %d, want 7", loaded.Refine.Steps)
	}
}
