// Package hotness computes the ranking score of an event from its aggregated
// signals. All inputs and the result live in [0,1].
package hotness

import (
	"math"
	"net/url"
	"strings"

	"NewsRadar/internal/domain"
)

// Per source-type credibility weights; the most authoritative source wins.
var typeWeights = map[string]float64{
	domain.SourceRegulator:      1.0,
	domain.SourceExchange:       0.95,
	domain.SourceIR:             0.9,
	domain.SourceNews:           0.8,
	domain.SourceSocialLinkedIn: 0.6,
	domain.SourceAggregator:     0.6,
	domain.SourceSocialTwitter:  0.55,
}

const defaultTypeWeight = 0.7

// Financial-event keyword weights for the text materiality signal.
var materialityKeys = map[string]float64{
	"m&a": 0.9, "merger": 0.9, "acquisition": 0.9, "purchase": 0.7,
	"guidance": 0.8, "outlook": 0.7, "forecast": 0.6,
	"downgrade": 0.8, "upgrade": 0.6, "rating": 0.5,
	"dividend": 0.7, "buyback": 0.7, "repurchase": 0.7,
	"sanction": 0.8, "investigation": 0.8, "fine": 0.7, "penalty": 0.7,
	"bankruptcy": 1.0, "insolvency": 0.9, "restatement": 0.9, "delisting": 0.9,
	"enforcement": 0.7, "order": 0.6, "settlement": 0.8, "approval": 0.6,
}

const defaultMateriality = 0.3

// Entity-label weights for the keyphrase-derived materiality signal.
var labelWeights = map[string]float64{
	"ORG":  1.0,
	"MISC": 0.7,
	"PER":  0.6,
	"LOC":  0.5,
}

const defaultLabelWeight = 0.4

// Score applies the weighted formula and the low-trust guardrail: when an
// event is unconfirmed (confirmation < 0.5) AND its best source is weak
// (credibility < 0.7), the score is capped at 0.49. Result is clamped to
// [0,1] and rounded to 3 decimal places.
func Score(novelty, credibility, confirmation, velocity, materiality, scope float64) float64 {
	score := 0.25*novelty +
		0.20*credibility +
		0.20*confirmation +
		0.15*velocity +
		0.10*materiality +
		0.10*scope

	if confirmation < 0.5 && credibility < 0.7 {
		score = math.Min(score, 0.49)
	}

	score = math.Max(0.0, math.Min(1.0, score))
	return math.Round(score*1000) / 1000
}

// Confirmed reports whether the confirmation signal marks the event as
// corroborated.
func Confirmed(confirmation float64) bool {
	return confirmation >= 0.5
}

// Credibility is the maximum type weight over the current sources; 0.7 when
// there are none or the type is unknown.
func Credibility(sources []domain.Source) float64 {
	best := 0.0
	for _, s := range sources {
		w, ok := typeWeights[s.Type]
		if !ok {
			w = defaultTypeWeight
		}
		if w > best {
			best = w
		}
	}
	if best == 0 {
		return defaultTypeWeight
	}
	return best
}

// Confirmation is 1.0 with an authoritative source type or at least two
// distinct reporting domains, 0.3 otherwise.
func Confirmation(sources []domain.Source, distinctDomains int) float64 {
	for _, s := range sources {
		if s.Type == domain.SourceRegulator || s.Type == domain.SourceExchange {
			return 1.0
		}
	}
	if distinctDomains >= 2 {
		return 1.0
	}
	return 0.3
}

// Velocity saturates at five distinct reporting domains.
func Velocity(distinctDomains int) float64 {
	return math.Min(1.0, float64(distinctDomains)/5.0)
}

// Scope saturates at three distinct reporting domains.
func Scope(distinctDomains int) float64 {
	return math.Min(1.0, float64(distinctDomains)/3.0)
}

// DistinctDomains counts unique lower-cased hosts across source URLs.
func DistinctDomains(sources []domain.Source) int {
	hosts := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		h := hostOf(s.URL)
		if h == "" {
			continue
		}
		hosts[h] = struct{}{}
	}
	return len(hosts)
}

// KeywordMateriality scores title+teaser text against the keyword table,
// keeping the strongest match; 0.3 when nothing matches.
func KeywordMateriality(text string) float64 {
	t := strings.ToLower(text)
	if t == "" {
		return defaultMateriality
	}
	best := defaultMateriality
	for key, w := range materialityKeys {
		if strings.Contains(t, key) && w > best {
			best = w
		}
	}
	return math.Max(0.0, math.Min(1.0, best))
}

// PhraseSignal estimates how much scored keyphrases strengthen materiality:
// a weighted combination of the top value, the average, and phrase diversity.
func PhraseSignal(phrases []domain.Entity) float64 {
	if len(phrases) == 0 {
		return 0.0
	}
	var top, sum float64
	for _, p := range phrases {
		w, ok := labelWeights[p.Type]
		if !ok {
			w = defaultLabelWeight
		}
		v := w * p.Score
		sum += v
		if v > top {
			top = v
		}
	}
	average := sum / float64(len(phrases))
	diversity := math.Min(1.0, float64(len(phrases))/5.0)
	combined := 0.6*top + 0.25*average + 0.15*diversity
	combined = math.Max(0.0, math.Min(1.0, combined))
	return math.Round(combined*1000) / 1000
}

// Materiality is the strongest of the keyword, classifier, and keyphrase
// signals.
func Materiality(text string, materialityAI float64, phrases []domain.Entity) float64 {
	m := KeywordMateriality(text)
	if materialityAI > m {
		m = materialityAI
	}
	if ps := PhraseSignal(phrases); ps > m {
		m = ps
	}
	return m
}

func hostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}
