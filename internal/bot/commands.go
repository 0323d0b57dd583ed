package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/EgorLis/womstats/internal/ranks"
	"github.com/EgorLis/womstats/internal/womapi"
)

// quoted args are kept whole: !update "Iron Man"
var reArg = regexp.MustCompile(`"([^"]*)"|(\S+)`)

// HandleCommand executes one chat command. Usage errors are returned; fetch
// results and failures arrive later through the sink.
func (bot *WOMBot) HandleCommand(text string) error {
	fields := splitArgs(text)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])

	say := func(s string) { bot.sink.Emit(s) }

	switch cmd {

	case "!help":
		say(strings.Join([]string{
			"!help",
			"!refresh",
			"!summary",
			"!ranking",
			"!update <name>",
			"!next <name>",
			"!lookup <name>",
			"!refreshgroup",
			"!status",
		}, "\n"))
		return nil

	case "!refresh":
		bot.Refresh()
		return nil

	case "!summary":
		bot.PostSummary()
		return nil

	case "!refreshgroup":
		bot.UpdateAll()
		return nil

	case "!ranking":
		bot.PostRanking()
		return nil

	case "!update":
		name := playerArg(fields)
		if name == "" {
			return fmt.Errorf("usage: !update <name>")
		}
		bot.withPlayer(name, func(p womapi.Player) {
			ehb := ranks.Round2(p.EHB)
			say(fmt.Sprintf("✅ %s: %s (%s EHB)", p.DisplayName, bot.table.Rank(ehb), formatEHB(ehb)))
		})
		return nil

	case "!next":
		name := playerArg(fields)
		if name == "" {
			return fmt.Errorf("usage: !next <name>")
		}
		bot.withPlayer(name, func(p womapi.Player) {
			ehb := ranks.Round2(p.EHB)
			rank := bot.table.Rank(ehb)
			next := bot.table.Next(ehb)
			if next == "" {
				say(fmt.Sprintf("🏆 %s is at the top rank: %s (%s EHB)", p.DisplayName, rank, formatEHB(ehb)))
				return
			}
			say(fmt.Sprintf("⏭ %s: %s (%s EHB), next: %s", p.DisplayName, rank, formatEHB(ehb), next))
		})
		return nil

	case "!lookup":
		name := playerArg(fields)
		if name == "" {
			return fmt.Errorf("usage: !lookup <name>")
		}
		if bot.tracker == nil {
			return fmt.Errorf("rank tracking is disabled")
		}
		rec, ok, err := bot.tracker.Lookup(name)
		if err != nil {
			return err
		}
		if !ok {
			say(fmt.Sprintf("❌ Username '%s' not found in the ranks data.", name))
			return nil
		}
		say(fmt.Sprintf("**%s**\nRank: %s (%s EHB)", rec.Username, rec.Rank, formatEHB(rec.LastEHB)))
		return nil

	case "!status":
		poll := "off"
		if bot.opts.PollEnabled {
			poll = "every " + bot.opts.Interval.String()
		}
		hook := "off"
		if bot.HotkeyRunning() {
			hook = "on"
		}
		say(fmt.Sprintf("last fetch: %s | polling: %s | in flight: %d | hotkey: %s",
			bot.LastAttempt().Format("2006-01-02 15:04:05"), poll, bot.InFlight(), hook))
		return nil

	default:
		return fmt.Errorf("unknown command. try !help")
	}
}

// withPlayer fetches the group and hands the named member to fn, or reports
// that no such member exists.
func (bot *WOMBot) withPlayer(name string, fn func(womapi.Player)) <-chan struct{} {
	return bot.fetch(func(g *womapi.Group) {
		p, ok := g.FindPlayer(name)
		if !ok {
			bot.sink.Emit(fmt.Sprintf("❌ Could not find a player with username '%s' in the group.", name))
			return
		}
		fn(p)
	})
}

// playerArg joins everything after the command so unquoted names with
// spaces still work.
func playerArg(fields []string) string {
	if len(fields) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.Join(fields[1:], " "))
}

func formatEHB(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func splitArgs(s string) []string {
	var out []string
	for _, m := range reArg.FindAllStringSubmatch(s, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out
}
