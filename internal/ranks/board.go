package ranks

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/EgorLis/womstats/internal/womapi"
)

// MaxMessageLen is the longest message a chat line may carry.
const MaxMessageLen = 2000

const fence = "```"

type boardRow struct {
	name string
	rank string
	ehb  float64
}

// Board renders the group ranking, best EHB first, as one or more code-fenced
// messages no longer than MaxMessageLen. Every member is listed; players with
// 0 EHB end up at the bottom.
func Board(groupName string, at time.Time, table *Table, players []womapi.Player) []string {
	rows := make([]boardRow, 0, len(players))
	for _, p := range players {
		ehb := Round2(p.EHB)
		rows = append(rows, boardRow{name: p.DisplayName, rank: table.Rank(ehb), ehb: ehb})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ehb > rows[j].ehb })

	var out []string
	chunk := []string{
		fmt.Sprintf("**%s Ranking on %s**\n", groupName, at.Format("2006-01-02 15:04")),
		fence,
		fmt.Sprintf("%-4s%-20s%-15s%-10s", "#", "Player", "Rank", "EHB"),
		strings.Repeat("-", 50),
	}
	size := chunkLen(chunk)

	for i, r := range rows {
		line := fmt.Sprintf("%-4d%-20s%-15s%-10s", i+1, r.name, r.rank, formatEHB(r.ehb))
		// +1 for the newline, +4 for the closing fence
		if size+len(line)+1+len(fence)+1 > MaxMessageLen {
			chunk = append(chunk, fence)
			out = append(out, strings.Join(chunk, "\n"))
			chunk = []string{fence}
			size = chunkLen(chunk)
		}
		chunk = append(chunk, line)
		size += len(line) + 1
	}

	chunk = append(chunk, fence)
	out = append(out, strings.Join(chunk, "\n"))
	return out
}

func chunkLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}
