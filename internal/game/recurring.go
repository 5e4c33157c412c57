package game

import "sort"

// MinRecurrence is the smallest count that makes a blunder recurring.
const MinRecurrence = 2

// RecurringBlunder is a blunder position seen in more than one place.
type RecurringBlunder struct {
	Blunder Blunder  `json:"blunder"`
	Count   int      `json:"count"`
	GameIDs []string `json:"game_ids"`
}

// Recurring counts blunders by position across games and returns those seen
// at least minCount times, never fewer than MinRecurrence. The first
// occurrence represents the group.
// Results are ordered by count, then by first appearance.
func Recurring(games []Game, minCount int) []RecurringBlunder {
	if minCount < MinRecurrence {
		minCount = MinRecurrence
	}
	index := make(map[string]int)
	var groups []RecurringBlunder

	for _, g := range games {
		for _, b := range g.Blunders {
			i, ok := index[b.Key()]
			if !ok {
				i = len(groups)
				index[b.Key()] = i
				groups = append(groups, RecurringBlunder{Blunder: b})
			}
			groups[i].Count++
			groups[i].GameIDs = append(groups[i].GameIDs, g.ID)
		}
	}

	out := make([]RecurringBlunder, 0, len(groups))
	for _, grp := range groups {
		if grp.Count >= minCount {
			out = append(out, grp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// CountBlunders returns the total number of blunders across games.
func CountBlunders(games []Game) int {
	n := 0
	for _, g := range games {
		n += len(g.Blunders)
	}
	return n
}
