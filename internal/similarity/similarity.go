// Package similarity estimates how novel a headline is against a recency
// window of previously seen headlines.
package similarity

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// RecencyWindow is how many of the most recently created events are compared
// against a new title.
const RecencyWindow = 200

// Ratio returns the best partial-alignment similarity of two strings in
// [0,1]. Exact substring containment yields 1.0.
func Ratio(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	return float64(fuzzy.PartialRatio(a, b)) / 100.0
}

// Novelty computes 1 - max(Ratio(title, t)) over recent titles, clamped to
// [0,1]. An empty window yields 1. Recent titles may include the event's own
// earlier headline on a merge; that is deliberate and matches how the window
// is built (no dedup-key filter).
func Novelty(title string, recent []string) float64 {
	maxSim := 0.0
	for _, t := range recent {
		if sim := Ratio(title, t); sim > maxSim {
			maxSim = sim
		}
	}
	novelty := 1.0 - maxSim
	if novelty < 0 {
		return 0
	}
	if novelty > 1 {
		return 1
	}
	return novelty
}
