package womapi

import "strings"

// Group is the part of GET /groups/{id} we consume. Unknown fields are ignored.
type Group struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Memberships []Membership `json:"memberships"` // nil when absent or null
}

type Membership struct {
	Player Player `json:"player"`
}

type Player struct {
	ID          int     `json:"id"`
	DisplayName string  `json:"displayName"`
	EHB         float64 `json:"ehb"` // efficient hours bossed
	EHP         float64 `json:"ehp"` // efficient hours played
}

func (g *Group) GetName() string {
	if g == nil {
		return ""
	}
	return g.Name
}

func (g *Group) GetDescription() string {
	if g == nil {
		return ""
	}
	return g.Description
}

// MemberCount is 0 for a nil group or absent memberships.
func (g *Group) MemberCount() int {
	if g == nil {
		return 0
	}
	return len(g.Memberships)
}

// Players flattens memberships in API order.
func (g *Group) Players() []Player {
	if g == nil || len(g.Memberships) == 0 {
		return nil
	}
	out := make([]Player, 0, len(g.Memberships))
	for _, m := range g.Memberships {
		out = append(out, m.Player)
	}
	return out
}

// FindPlayer looks a member up by display name, case-insensitively.
func (g *Group) FindPlayer(name string) (Player, bool) {
	for _, p := range g.Players() {
		if strings.EqualFold(p.DisplayName, name) {
			return p, true
		}
	}
	return Player{}, false
}
