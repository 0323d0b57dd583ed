package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/EgorLis/womstats/internal/bot"
	"github.com/EgorLis/womstats/internal/chat"
	"github.com/EgorLis/womstats/internal/ranks"
	"github.com/EgorLis/womstats/internal/womapi"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the group and serve the chat hub until interrupted",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	table, err := cfg.RankTable()
	if err != nil {
		return fmt.Errorf("failed to parse rank tiers: %w", err)
	}

	var tracker *ranks.Tracker
	if cfg.Ranks.DB != "" {
		store, err := ranks.NewSQLiteStore(cfg.Ranks.DB)
		if err != nil {
			return fmt.Errorf("failed to open rank store: %w", err)
		}
		defer store.Close()

		var csvLog *ranks.CSVLog
		if cfg.Ranks.CSV != "" {
			csvLog = ranks.NewCSVLog(cfg.Ranks.CSV)
		}
		tracker = ranks.NewTracker(table, store, csvLog)
	}

	sinks := chat.MultiSink{chat.LogSink{}}
	var hub *chat.Hub
	if cfg.Chat.Listen != "" {
		hub = chat.NewHub(cfg.Chat)
		sinks = append(sinks, hub)
	}

	b := bot.New(bot.Deps{
		API:     womapi.NewClientFromConf(cfg.WOM.Conf),
		Config:  cfg.Source(),
		Sink:    sinks,
		Ranks:   table,
		Tracker: tracker,
	}, cfg.Options())

	if hub != nil {
		hub.SetCommandHandler(b)
	}
	if cfg.Hotkey.Enabled {
		b.EnableHotkey()
	}

	var g run.Group

	if hub != nil {
		g.Add(hub.ListenAndServe, func(error) {
			hub.Shutdown()
		})
	}

	stop := make(chan struct{})
	g.Add(func() error {
		if err := b.Start(); err != nil {
			return err
		}
		<-stop
		return nil
	}, func(error) {
		close(stop)
		b.Stop()
	})

	g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		logrus.WithFields(logrus.Fields{
			"signal": sig.Signal,
		}).Infoln("Shutting down")
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)
}
