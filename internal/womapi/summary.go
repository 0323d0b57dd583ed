package womapi

import "fmt"

// Summary is the one-line notice for a fetched group.
func Summary(g *Group) string {
	return fmt.Sprintf("Group: %s has %d members!", g.GetName(), g.MemberCount())
}

// DetailedSummary is the verbose form: name, description and member count on
// separate lines.
func DetailedSummary(g *Group) []string {
	return []string{
		"Group Name: " + g.GetName(),
		"Group Description: " + g.GetDescription(),
		fmt.Sprintf("Number of Members: %d", g.MemberCount()),
	}
}

// SummaryLines picks one of the two forms.
func SummaryLines(g *Group, verbose bool) []string {
	if verbose {
		return DetailedSummary(g)
	}
	return []string{Summary(g)}
}
