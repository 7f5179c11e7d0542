package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// CheckJavaToolchain verifies that java and javac are available in
// PATH. Every phase except analysis shells out to them.
func CheckJavaToolchain() error {
	for _, tool := range []string{"java", "javac"} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%s not found in PATH\n\n"+
				"The refinement pipeline compiles and runs Java test suites, so a JDK\n"+
				"is required. Install one (e.g. Temurin 11+) and make sure both java\n"+
				"and javac are on your PATH.", tool)
		}
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "refinery",
	Short: "Refines generated Java test suites with policy optimization",
	Long: `Refinery takes auto-generated Java unit tests and refines them for
readability and fault detection using group-sampled policy optimization.

Each class under test moves through five phases:
  baseline      generate a test suite with EvoSuite
  refinement    sample candidate rewrites and optimize the policy
  verification  check the refined suite preserves baseline behavior
  evaluation    measure coverage, mutation score, and readability
  analysis      compare baseline and refined suites, aggregate stats

Progress is checkpointed in SQLite, so an interrupted run resumes where
it left off.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
