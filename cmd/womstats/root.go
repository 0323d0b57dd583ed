package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/EgorLis/womstats/internal/bot"
)

var (
	configFile string
	cfg        *bot.Config
)

var rootCmd = &cobra.Command{
	Use:   "womstats",
	Short: "Wise Old Man group stats watcher",
	Long: `Fetches a Wise Old Man group, posts its summary and tracks member EHB ranks.

If no config file is specified, womstats looks for womstats.yaml in:
  - .
  - ./config
  - ~/.config/womstats`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunConfigE,
}

func preRunConfigE(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = bot.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := bot.SetupLogging(cfg.Logging); err != nil {
		return err
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err == nil && verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (optional)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}
