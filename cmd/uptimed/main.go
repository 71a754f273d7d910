package main

import (
	"fmt"
	"os"

	"github.com/mickybart/uptimed/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "uptimed",
	Short: "Uptimed - uptime monitoring and SLA consolidation daemon",
	Long: `Uptimed continuously probes a dynamic set of services (HTTP endpoints
discovered from a cluster ingress controller, database servers, cluster
APIs, search clusters), records transitions between healthy and failed
states as downtime intervals, and consolidates those intervals into
per-service daily/weekly/monthly SLA figures.

A heartbeat-based instance lock guarantees a single active writer per
storage backend, so multiple daemons can be deployed for failover.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Uptimed version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "uptimed.yaml", "Path to the configuration file")

	// Initialize logging before command execution
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
