// Package timeline decides whether a newly corroborated item is a
// substantive update worth a timeline entry on its event.
package timeline

import (
	"regexp"
	"strings"
	"time"

	"NewsRadar/internal/domain"
)

const (
	// ImportanceThreshold filters which scored keyphrases count as keywords.
	ImportanceThreshold = 0.55
	// OverlapThreshold is the minimum |existing ∩ new| / |new| ratio.
	OverlapThreshold = 0.2
	// Window bounds how stale an event may be and still accept updates.
	Window = 7 * 24 * time.Hour

	snippetMax = 180
)

var tokenExpr = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// ImportantKeywords returns the lower-cased names of keyphrases scoring at
// or above the importance threshold.
func ImportantKeywords(phrases []domain.Entity) map[string]struct{} {
	out := make(map[string]struct{})
	for _, p := range phrases {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" || p.Score < ImportanceThreshold {
			continue
		}
		out[name] = struct{}{}
	}
	return out
}

// FallbackKeywords picks up to six distinct alphanumeric tokens of length
// >= 4 from free text, used when no scored keyphrases are available.
func FallbackKeywords(text string) map[string]struct{} {
	const (
		limit  = 6
		minLen = 4
	)
	out := make(map[string]struct{}, limit)
	for _, token := range tokenExpr.FindAllString(strings.ToLower(text), -1) {
		if len([]rune(token)) < minLen {
			continue
		}
		if _, ok := out[token]; ok {
			continue
		}
		out[token] = struct{}{}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// EventKeywords derives the keyword set already on the event: important
// keyphrases by name, falling back to headline + why_now tokens.
func EventKeywords(ev *domain.Event) map[string]struct{} {
	kw := ImportantKeywords(ev.Entities)
	if len(kw) > 0 {
		return kw
	}
	return FallbackKeywords(strings.TrimSpace(ev.Headline + " " + ev.WhyNow))
}

// ItemKeywords derives the keyword set of an incoming item with the same
// keyphrase/fallback rule.
func ItemKeywords(title, teaser string, phrases []domain.Entity) map[string]struct{} {
	kw := ImportantKeywords(phrases)
	if len(kw) > 0 {
		return kw
	}
	return FallbackKeywords(strings.TrimSpace(title + " " + teaser))
}

// Append adds a timeline entry when the update passes the overlap and
// staleness gates. Returns whether the timeline changed. Entries are unique
// by description; duplicates are skipped.
func Append(ev *domain.Event, existing, fresh map[string]struct{}, now time.Time, teaser, title, stype string) bool {
	if len(existing) == 0 || len(fresh) == 0 {
		return false
	}
	overlap := 0
	for k := range fresh {
		if _, ok := existing[k]; ok {
			overlap++
		}
	}
	if overlap == 0 {
		return false
	}
	if float64(overlap)/float64(len(fresh)) < OverlapThreshold {
		return false
	}

	last := ev.FirstSeen
	if n := len(ev.Timeline); n > 0 {
		last = ev.Timeline[n-1].T
	}
	if !last.IsZero() && now.Sub(last) > Window {
		return false
	}

	description := describe(teaser, title, stype)
	for _, item := range ev.Timeline {
		if item.What == description {
			return false
		}
	}

	ev.Timeline = append(ev.Timeline, domain.TimelineItem{T: now, What: description})
	return true
}

func describe(teaser, title, stype string) string {
	snippet := strings.TrimSpace(teaser)
	if snippet == "" {
		snippet = strings.TrimSpace(title)
	}
	if runes := []rune(snippet); len(runes) > snippetMax {
		snippet = strings.TrimRight(string(runes[:snippetMax-3]), " ") + "..."
	}

	label := strings.ReplaceAll(stype, "_", " ")
	if label == "" {
		label = "update"
	}
	if snippet == "" {
		return label
	}
	return label + ": " + snippet
}
