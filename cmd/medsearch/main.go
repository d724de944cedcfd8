package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "medsearch",
		Short: "Medical article search with AI synthesis and sponsored ad matching",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(analyticsCmd())

	return root
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with feed ingestion, digest scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample articles and ads into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed()
		},
	}
}

func analyticsCmd() *cobra.Command {
	var (
		jsonOutput   bool
		advertiserID string
		timeframe    string
	)

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show impression volume by day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalytics(advertiserID, timeframe, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&advertiserID, "advertiser", "", "restrict to one advertiser")
	cmd.Flags().StringVar(&timeframe, "timeframe", "7d", "lookback window (7d, 30d, 90d)")
	return cmd
}
