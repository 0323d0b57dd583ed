// Package bot glues womapi, ranks, chat and hotkey into the group stats
// watcher. The bot:
//   - fetches the configured Wise Old Man group at start-up, on a fixed
//     interval and on demand (chat command or media key);
//   - emits a summary line (or the three-line detail) for every success and
//     exactly one line for every failure;
//   - tracks each member's EHB rank and announces promotions;
//   - asks WOM to update every member on !refreshgroup and every
//     poll.update_all_every intervals;
//   - answers chat commands (!help, !refresh, !summary, !ranking, !update,
//     !next, !lookup, !refreshgroup, !status).
//
// Lifecycle:
//   - Load settings with LoadConfig and apply SetupLogging.
//   - Build the bot with New(Deps{...}, conf.Options()).
//   - (Optionally) EnableHotkey() before Start.
//   - Start() and, on shutdown, Stop().
//
// Example:
//
//	conf, _ := bot.LoadConfig("")
//	table, _ := conf.RankTable()
//	b := bot.New(bot.Deps{
//		API:     womapi.NewClientFromConf(conf.WOM.Conf),
//		Config:  conf.Source(),
//		Sink:    chat.LogSink{},
//		Tracker: ranks.NewTracker(table, nil, nil),
//	}, conf.Options())
//
//	if err := b.Start(); err != nil { log.Fatal(err) }
//	defer b.Stop()
//
// Configuration:
//   - wom.group_id, wom.api_key and wom.verification_code are read through
//     the ConfigSource on every fetch, so edits to a watched config file
//     apply to the next attempt;
//   - the poll interval is measured from the last attempt of any kind, so a
//     manual refresh also postpones the next periodic one.
package bot
