package ranks

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EgorLis/womstats/internal/womapi"
)

// Change is a promotion seen between two fetches.
type Change struct {
	Username string
	OldRank  string
	NewRank  string
	EHB      float64
}

func (c Change) Message() string {
	return fmt.Sprintf("🎉 Congratulations %s on moving up to the rank of %s with %s EHB! 🎉",
		c.Username, c.NewRank, formatEHB(c.EHB))
}

// Tracker compares every fetch with the last known EHB/rank per player.
type Tracker struct {
	table *Table
	store Store
	csv   *CSVLog // nil = no history

	mu     sync.Mutex
	loaded bool
	known  map[string]Record
}

func NewTracker(table *Table, store Store, csvLog *CSVLog) *Tracker {
	if store == nil {
		store = NewMemStore()
	}
	return &Tracker{
		table: table,
		store: store,
		csv:   csvLog,
		known: map[string]Record{},
	}
}

func (t *Tracker) Table() *Table { return t.table }

// Observe records the group snapshot and returns promotions. A player seen for
// the first time only sets a baseline: no Change, even though there was no
// previous rank. A drop in EHB or rank is recorded silently too.
func (t *Tracker) Observe(g *womapi.Group, at time.Time) ([]Change, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.loadLocked(); err != nil {
		return nil, err
	}

	var (
		changes []Change
		updated []Record
	)
	for _, p := range g.Players() {
		name := strings.TrimSpace(p.DisplayName)
		if name == "" {
			continue
		}
		ehb := Round2(p.EHB)
		rank := t.table.Rank(ehb)

		prev, seen := t.known[name]
		if seen && ehb > prev.LastEHB && rank != prev.Rank {
			changes = append(changes, Change{Username: name, OldRank: prev.Rank, NewRank: rank, EHB: ehb})
		}

		rec := Record{Username: name, LastEHB: ehb, Rank: rank, UpdatedAt: at.UTC()}
		t.known[name] = rec
		updated = append(updated, rec)
	}

	if err := t.store.Save(updated); err != nil {
		return changes, err
	}

	if t.csv != nil {
		if err := t.csv.Append(at, updated...); err != nil {
			logrus.WithFields(logrus.Fields{
				"path": t.csv.Path(),
			}).WithError(err).Errorln("Failed to append EHB log")
		} else {
			logrus.WithFields(logrus.Fields{
				"path": t.csv.Path(),
				"rows": len(updated),
			}).Debugln("Logged EHB snapshot")
		}
	}

	return changes, nil
}

// Lookup returns the last stored record for a player, case-insensitively,
// without fetching the group.
func (t *Tracker) Lookup(name string) (Record, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.loadLocked(); err != nil {
		return Record{}, false, err
	}
	name = strings.TrimSpace(name)
	for k, v := range t.known {
		if strings.EqualFold(k, name) {
			return v, true, nil
		}
	}
	return Record{}, false, nil
}

func (t *Tracker) loadLocked() error {
	if t.loaded {
		return nil
	}
	recs, err := t.store.Load()
	if err != nil {
		return err
	}
	for k, v := range recs {
		t.known[k] = v
	}
	t.loaded = true
	return nil
}
