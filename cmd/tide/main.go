package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "tide",
	Short: "tide - leader gated recurring container jobs",
	Long: `tide keeps a registry of recurring jobs in a shared store and, on the
controlling leader of the cluster, redeploys each job's application on its
cadence.

Configuration is read from an optional file (--config) and TIDE_ environment
variables, for example TIDE_CLUSTER_ID or TIDE_STORAGE_DRIVER.

Examples:
  tide run --config /etc/tide/tide.yaml
  TIDE_STORAGE_DRIVER=redis TIDE_STORAGE_REDIS_URL=redis://localhost:6379/0 tide run`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a configuration file (yaml, toml or json)")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
