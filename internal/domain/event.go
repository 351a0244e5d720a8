package domain

import (
	"strings"
	"time"
)

// JSONSchemaVersion tracks the shape of the JSON columns (entities, timeline,
// risk_flags, ai_entities) so readers can detect drift.
const JSONSchemaVersion = 1

// Source type values; credibility weights live in the hotness package.
const (
	SourceRegulator      = "regulator"
	SourceExchange       = "exchange"
	SourceIR             = "ir"
	SourceNews           = "news"
	SourceAggregator     = "aggregator"
	SourceSocialTwitter  = "social_twitter"
	SourceSocialLinkedIn = "social_linkedin"
)

// Impact side values filled by the classifier.
const (
	ImpactPos       = "pos"
	ImpactNeg       = "neg"
	ImpactUncertain = "uncertain"
)

// Entity is a scored named span extracted from text.
type Entity struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Score   float64 `json:"score"`
	Ticker  string  `json:"ticker,omitempty"`
	Country string  `json:"country,omitempty"`
	Sector  string  `json:"sector,omitempty"`
	Source  string  `json:"source,omitempty"`
}

// TimelineItem is one timestamped update entry; entries are unique by What.
type TimelineItem struct {
	T    time.Time `json:"t"`
	What string    `json:"what"`
}

// Draft is generated companion content for an event.
type Draft struct {
	Title       string   `json:"title"`
	Lede        string   `json:"lede"`
	Bullets     []string `json:"bullets"`
	Quote       string   `json:"quote"`
	Attribution []string `json:"attribution"`
}

// Event is the merged record kept per dedup group.
type Event struct {
	ID            string
	Headline      string
	Hotness       float64
	WhyNow        string
	Entities      []Entity
	AIEntities    []Entity
	Timeline      []TimelineItem
	Draft         *Draft
	Confirmed     bool
	DedupGroup    string
	EventType     string
	MaterialityAI float64
	ImpactSide    string
	RiskFlags     []string
	FirstSeen     time.Time
}

// Source links one URL to its owning event; immutable once created.
type Source struct {
	ID        string
	EventID   string
	URL       string
	Type      string
	FirstSeen time.Time
}

// FeedEntry is a raw item as returned by a source fetcher, before dedup.
type FeedEntry struct {
	Title     string
	Link      string
	Summary   string
	Published time.Time
}

// Classification is the structured result of the event classifier. The
// classifier never fails; on backing-service errors it returns a heuristic
// result of the same shape.
type Classification struct {
	EventType     string
	MaterialityAI float64
	ImpactSide    string
	Entities      []Entity
	RiskFlags     []string
}

// MergeEntities folds incoming scored entities into existing ones by
// case-insensitive name, keeping the higher-scored entry on conflict.
// The relative order of surviving entries is preserved.
func MergeEntities(existing, incoming []Entity) []Entity {
	if len(incoming) == 0 {
		return existing
	}

	merged := make([]Entity, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing))
	for _, e := range existing {
		key := normName(e.Name)
		if key == "" {
			continue
		}
		if _, ok := index[key]; ok {
			continue
		}
		index[key] = len(merged)
		merged = append(merged, e)
	}

	for _, e := range incoming {
		key := normName(e.Name)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			if e.Score > merged[i].Score {
				merged[i] = e
			}
			continue
		}
		index[key] = len(merged)
		merged = append(merged, e)
	}

	return merged
}

// UnionFlags merges risk flags as a set, preserving first-seen order.
func UnionFlags(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, lists := range [][]string{existing, incoming} {
		for _, f := range lists {
			if f == "" {
				continue
			}
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

func normName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
