package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/EgorLis/womstats/internal/bot"
	"github.com/EgorLis/womstats/internal/ranks"
	"github.com/EgorLis/womstats/internal/womapi"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the group once and print its summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := fetchOnce(cmd.Context())
		if err != nil {
			return err
		}
		for _, line := range womapi.SummaryLines(g, cfg.Summary.Verbose) {
			fmt.Println(line)
		}
		return nil
	},
}

var rankingCmd = &cobra.Command{
	Use:   "ranking",
	Short: "Fetch the group once and print the EHB ranking board",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := cfg.RankTable()
		if err != nil {
			return fmt.Errorf("failed to parse rank tiers: %w", err)
		}
		g, err := fetchOnce(cmd.Context())
		if err != nil {
			return err
		}
		for _, msg := range ranks.Board(g.GetName(), time.Now(), table, g.Players()) {
			fmt.Println(msg)
		}
		return nil
	},
}

// fetchOnce prints the user-facing failure line itself and returns the
// typed error for the exit code.
func fetchOnce(ctx context.Context) (*womapi.Group, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	src := cfg.Source()
	client := womapi.NewClientFromConf(cfg.WOM.Conf)

	g, err := client.Fetch(ctx, src.GetString(bot.KeyGroupID), src.GetString(bot.KeyAPIKey))
	if err != nil {
		fmt.Println(womapi.Describe(err))
		return nil, err
	}
	return g, nil
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(rankingCmd)
}
