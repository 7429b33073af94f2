package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brahma2024/agentic-ledger/internal/update"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "News-to-research convergence engine",
	Long: "ledger finds the news story with the strongest bridge to academic research: " +
		"it ranks bundled RSS news by structural impact, matches stories to arXiv " +
		"categories semantically, and scores candidate papers against each story.",
	RunE: runPipeline,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(lexiconCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(runsCmd)
}

var flagVersionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ledger %s (commit: %s, built: %s)\n", version, commit, date)
		if flagVersionCheck {
			if res := update.Check(cmd.Context(), version); res != nil {
				fmt.Printf("A newer version is available: %s\n", res.LatestVersion)
			} else {
				fmt.Println("You are up to date.")
			}
		}
	},
}

func init() {
	versionCmd.Flags().BoolVar(&flagVersionCheck, "check", false, "check GitHub for a newer release")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
