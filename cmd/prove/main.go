// Package main implements the prove CLI, a quality gate for code changes.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

// Global flags.
var (
	workDir    string
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	os.Exit(execute())
}

// exitError carries a process exit code without an error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "prove",
	Short: "Quality gate for code changes",
	Long: `prove decides whether a code change may proceed.

It runs critical checks serially (stopping at the first failure), then
parallel checks together, then checks for the resolved mode
(functional or non-functional), then optional checks enabled by toggles.
Functional work must follow the TDD red, green, refactor sequence and meet
the diff coverage threshold; non-functional work needs a root-cause
document.`,
	Version:       version + " (" + gitCommit + ")",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "working directory of the repository")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .prove.yaml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
}
