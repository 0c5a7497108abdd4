package main

import (
	"fmt"
	"io"
	"os"

	"github.com/artpar/amodule/bootstrap"
	"github.com/artpar/amodule/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "amodule",
	Short: "Analytics module with a contract-checked REST and CLI wrapper",
	Long: `amodule wraps an analytics method behind its specification.

Every call is checked against the declared input and output types, recorded
as a run, and exposed over REST and the command line.

Quick start:
  amodule serve             # Start the REST service
  amodule process img.png   # Segment an image
  amodule test              # Run the specification's test cases

Inspection:
  amodule spec show         # Print the specification
  amodule runs              # List recent runs`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
}

// newApp builds the application for one-shot commands. Logs are discarded
// unless --verbose is set so command output stays clean.
func newApp(cmd *cobra.Command) (*bootstrap.App, error) {
	var logs io.Writer = io.Discard
	if verbose {
		logs = cmd.ErrOrStderr()
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return bootstrap.NewWithConfig(cfg, bootstrap.Options{Version: version, LogOutput: logs})
}
