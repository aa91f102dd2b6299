package main

import (
	"fmt"
	"os"

	"github.com/cuemby/clusterrouter/pkg/log"
	"github.com/spf13/cobra"
)

// version is set via ldflags during release builds.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clusterctl",
	Short: "Submit and observe tasks on the cluster router",
	Long: `clusterctl is a smoke-testing client for the cluster router: it submits
a command, waits for the result, and reports on task and cluster status.
It is not the primary interface — that is the tool-call surface the router
exposes to its caller.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clusterStatusCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}
