package ranks

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const Unknown = "Unknown"

// Tier is a half-open EHB range [Min, Max). Max == 0 means open-ended ("1500+").
type Tier struct {
	Min  float64
	Max  float64
	Name string
}

func (t Tier) contains(ehb float64) bool {
	if ehb < t.Min {
		return false
	}
	return t.Max == 0 || ehb < t.Max
}

// ParseTier reads range keys as written in the config: "0-10" or "1500+".
func ParseTier(key, name string) (Tier, error) {
	key = strings.TrimSpace(key)
	name = strings.TrimSpace(name)
	if name == "" {
		return Tier{}, fmt.Errorf("tier %q: empty rank name", key)
	}

	if lo, ok := strings.CutSuffix(key, "+"); ok {
		from, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		if err != nil {
			return Tier{}, fmt.Errorf("tier %q: %w", key, err)
		}
		return Tier{Min: from, Name: name}, nil
	}

	lo, hi, ok := strings.Cut(key, "-")
	if !ok {
		return Tier{}, fmt.Errorf("tier %q: want \"<min>-<max>\" or \"<min>+\"", key)
	}
	from, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return Tier{}, fmt.Errorf("tier %q: %w", key, err)
	}
	to, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return Tier{}, fmt.Errorf("tier %q: %w", key, err)
	}
	if to <= from {
		return Tier{}, fmt.Errorf("tier %q: upper bound must be greater than lower", key)
	}
	return Tier{Min: from, Max: to, Name: name}, nil
}

// Table is a set of tiers ordered by Min.
type Table struct {
	tiers []Tier
}

// NewTable parses a range→name map (the ranks.tiers config section).
func NewTable(tiersByRange map[string]string) (*Table, error) {
	tiers := make([]Tier, 0, len(tiersByRange))
	for k, v := range tiersByRange {
		t, err := ParseTier(k, v)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Min < tiers[j].Min })
	return &Table{tiers: tiers}, nil
}

// Rank returns the name of the tier holding ehb, or Unknown.
func (t *Table) Rank(ehb float64) string {
	if t == nil {
		return Unknown
	}
	for _, tier := range t.tiers {
		if tier.contains(ehb) {
			return tier.Name
		}
	}
	return Unknown
}

// Next describes the first tier above ehb ("Gold at 200 EHB"), or "" when
// ehb is already in the top tier.
func (t *Table) Next(ehb float64) string {
	if t == nil {
		return ""
	}
	for _, tier := range t.tiers {
		if tier.Min > ehb {
			return fmt.Sprintf("%s at %s EHB", tier.Name, formatEHB(tier.Min))
		}
	}
	return ""
}

// Round2 rounds EHB the way it is shown and stored.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatEHB(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
