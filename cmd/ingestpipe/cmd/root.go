// Package cmd provides the CLI commands for ingestpipe.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/catalogforge/ingestpipe/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ingestpipe",
	Short: "ingestpipe - deterministic catalog ingestion rule engine",
	Long: `ingestpipe runs batches of raw catalog items through a
declarative, DAG-ordered rule engine: schema validation, field
normalization, create/update/destroy classification, canonical rule
evaluation, and persistence, emitting a replay pack for every terminal
item.

Configuration:
  Config is loaded from ingestpipe.yaml in the current directory,
  $HOME/.ingestpipe/, or /etc/ingestpipe/.

  Environment variables can override config values with the
  INGESTPIPE_ prefix. Example: INGESTPIPE_STORAGE_DSN=file:prod.db

Commands:
  run              Run one batch of items through the pipeline
  serve            Serve the pipeline behind a webhook HTTP endpoint
  validate-rules   Compile a ruleset document and report any errors
  replay           Re-run a recorded replay pack and compare the outcome
  version          Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ingestpipe.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
