package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var flagHealthURL string

func init() {
	healthCmd.Flags().StringVar(&flagHealthURL, "url", "http://localhost:8080/health", "health endpoint of the running server")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "doc-sentinel %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health endpoint of a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}

		resp, err := client.Get(flagHealthURL)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Health check passed")
		return nil
	},
}
