// Package main is the entry point for the agenttrace CLI.
//
// AgentTrace is an observability platform for AI agents: it collects spans
// from instrumented agents, calculates LLM costs, and serves a dashboard.
//
// Usage:
//
//	agenttrace serve                # Start the collector and dashboard
//	agenttrace traces list         # Inspect recent traces
//	agenttrace metrics             # Print a metrics summary
//	agenttrace costs               # Cost breakdown by model
//	agenttrace db stats            # Database statistics
//	agenttrace scaffold <dir>      # Bootstrap a new agent project
//	agenttrace version             # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "agenttrace",
	Short: "Observability for AI agents",
	Long: `AgentTrace collects traces from AI agents, prices their LLM calls,
and serves a live dashboard.

Quick start:
  1. Run: agenttrace serve
  2. Point your agent's exporter at http://localhost:8080/api/v1/spans
  3. Open http://localhost:8080 in your browser`,
}

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(versionCmd)
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agenttrace %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}
