package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/zemog-worker/cmd/cli"
	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

var (
	logMode    string
	configPath string
	testDir    string
	testName   string
)

var rootCmd = &cobra.Command{
	Use:   "zemog-worker",
	Short: "Zemog test worker",
	Long:  `Takes one test task off the queue, runs it and publishes the results of failed runs`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.InitWithMode(logger.ParseMode(logMode))
	},
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (testDir == "") != (testName == "") {
			return fmt.Errorf("--dir and --test must be given together")
		}
		if testDir != "" {
			return cli.RunStandalone(configPath, testDir, testName)
		}
		return cli.RunWorker(configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "pretty", "Log mode: debug, pretty, info, prod, test")
	rootCmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath, "Path to the worker configuration file")
	rootCmd.Flags().StringVar(&testDir, "dir", "", "Run a test from an unpacked package directory instead of the queue")
	rootCmd.Flags().StringVar(&testName, "test", "", "Name of the test to run with --dir")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
