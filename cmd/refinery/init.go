package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	initForce         bool
	initSkipJavaCheck bool
)

const exampleManifest = `# Refinery run manifest.
# Paths are resolved relative to this file unless "root" is set.
projects:
  - name: example
    target_jar: subjects/example/example.jar
    source_dir: subjects/example/src
    classes:
      - org.example.Stack
      - org.example.Queue
`

const exampleProjectConfig = `# Project-level overrides for refinery.
# Full key reference: refinery config
run:
  workers: 4
baseline:
  evosuite_jar: jars/evosuite-1.2.0.jar
  search_budget: 60
evaluate:
  junit_jar: jars/junit-4.13.2.jar
  hamcrest_jar: jars/hamcrest-core-1.3.jar
  evosuite_runtime_jar: jars/evosuite-standalone-runtime-1.2.0.jar
  jacoco_agent_jar: jars/jacocoagent.jar
  jacoco_cli_jar: jars/jacococli.jar
  pitest_jar: jars/pitest-1.15.0.jar
policy:
  base_url: http://localhost:8731
`

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a refinery workspace",
	Long: `Initialize a directory for refinement runs.

This command sets up what a run needs:
  - Verifies the Java toolchain is available
  - Creates the runs directory
  - Creates an example manifest.yaml and .refinery.yaml

The directory argument is optional and defaults to the current
directory. Existing files are left alone unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing manifest and config files")
	initCmd.Flags().BoolVar(&initSkipJavaCheck, "skip-java-check", false, "Skip the Java toolchain check")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolve directory: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if initSkipJavaCheck {
		yellow.Println("! skipped Java toolchain check")
	} else if err := CheckJavaToolchain(); err != nil {
		return err
	} else {
		green.Println("✓ Java toolchain found")
	}

	if err := os.MkdirAll(filepath.Join(absPath, "runs"), 0755); err != nil {
		return fmt.Errorf("create runs directory: %w", err)
	}
	green.Println("✓ runs/ directory ready")

	wrote, err := writeIfAbsent(filepath.Join(absPath, "manifest.yaml"), exampleManifest)
	if err != nil {
		return err
	}
	if wrote {
		green.Println("✓ wrote example manifest.yaml")
	} else {
		yellow.Println("! manifest.yaml exists, leaving it alone (use --force to overwrite)")
	}

	wrote, err = writeIfAbsent(filepath.Join(absPath, ".refinery.yaml"), exampleProjectConfig)
	if err != nil {
		return err
	}
	if wrote {
		green.Println("✓ wrote example .refinery.yaml")
	} else {
		yellow.Println("! .refinery.yaml exists, leaving it alone (use --force to overwrite)")
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit manifest.yaml to point at your subject JARs and classes")
	fmt.Println("  2. Edit .refinery.yaml with your tool jar paths")
	fmt.Println("  3. Start the policy server, then: refinery run --manifest manifest.yaml")
	return nil
}

// writeIfAbsent writes content to path unless it already exists and
// --force was not given.
func writeIfAbsent(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil && !initForce {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
