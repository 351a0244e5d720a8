package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// Classifier enriches an item with structured signals. The LLM path is
// optional; the deterministic keyword heuristics below always produce a
// result of the same shape, so Classify never fails.
type Classifier struct {
	chat   *ChatClient
	logger *slog.Logger
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier builds a classifier around an optional chat client.
func NewClassifier(chat *ChatClient, logger *slog.Logger) *Classifier {
	return &Classifier{chat: chat, logger: logger}
}

type eventKeyword struct {
	expr *regexp.Regexp
	tag  string
}

// Ordered from most to least material; the first match wins.
var eventKeywords = []eventKeyword{
	{regexp.MustCompile(`\b(merger|acquisition|acquire|merge|takeover|buyout|combination)\b`), "M&A"},
	{regexp.MustCompile(`\b(dividend|buyback|repurchase)\b`), "dividend/buyback"},
	{regexp.MustCompile(`\b(sanction|embargo)\b`), "sanctions"},
	{regexp.MustCompile(`\b(investigation|probe|enforcement|charge|charged|settlement)\b`), "investigation"},
	{regexp.MustCompile(`\b(fine|penalty)\b`), "fine"},
	{regexp.MustCompile(`\b(delisting|delist|suspension)\b`), "delisting"},
	{regexp.MustCompile(`\b(guidance|outlook|forecast)\b`), "guidance"},
	{regexp.MustCompile(`\b(approval|rule|ruling|order|directive)\b`), "regulatory"},
}

var (
	tickerExpr    = regexp.MustCompile(`\b[A-Z]{1,5}\b`)
	tickerBanList = map[string]struct{}{
		"CEO": {}, "CFO": {}, "SEC": {}, "FOMC": {}, "FRB": {}, "EC": {},
		"ECB": {}, "FCA": {}, "ESMA": {}, "EU": {}, "US": {}, "UK": {},
		"USD": {}, "JPM": {},
	}
)

const (
	maxTickers    = 8
	minTeaserLen  = 60
	maxPromptURLs = 5
)

// Classify asks the LLM for structured signals and falls back to keyword
// heuristics when the LLM is unavailable or returns garbage. Context risk
// flags are always merged in.
func (c *Classifier) Classify(ctx context.Context, headline, teaser string, urls []string) domain.Classification {
	if out, err := c.classifyLLM(ctx, headline, teaser, urls); err == nil {
		return out
	} else if c.chat.Enabled() && c.logger != nil {
		c.logger.Debug("classifier falling back to heuristics", "error", err)
	}

	text := headline + ". " + teaser
	return domain.Classification{
		EventType:     heurEventType(text),
		MaterialityAI: heurMateriality(text),
		ImpactSide:    heurImpact(text),
		Entities:      extractTickers(text),
		RiskFlags:     contextRiskFlags(teaser, urls),
	}
}

type classifierOut struct {
	EventType     string   `json:"event_type"`
	MaterialityAI *float64 `json:"materiality_ai"`
	ImpactSide    string   `json:"impact_side"`
	Entities      []struct {
		Name   string `json:"name"`
		Ticker string `json:"ticker"`
	} `json:"entities"`
	RiskFlags []string `json:"risk_flags"`
}

func (c *Classifier) classifyLLM(ctx context.Context, headline, teaser string, urls []string) (domain.Classification, error) {
	if !c.chat.Enabled() {
		return domain.Classification{}, fmt.Errorf("chat client disabled")
	}

	var links strings.Builder
	for i, u := range urls {
		if i >= maxPromptURLs {
			break
		}
		links.WriteString("- " + u + "\n")
	}
	clipped := teaser
	if len(clipped) > 600 {
		clipped = clipped[:600]
	}

	prompt := fmt.Sprintf(`You are a financial news editor. Return ONLY JSON with fields:
{"event_type":"guidance|M&A|sanctions|investigation|fine|delisting|dividend/buyback|regulatory|other",
 "materiality_ai":0..1,
 "impact_side":"pos|neg|uncertain",
 "entities":[{"name":"...","ticker":"..."}],
 "risk_flags":["...","..."]}

Headline: %s
Teaser: %s
Links:
%s
No invention; when unsure use impact_side="uncertain".`, headline, clipped, links.String())

	raw, err := c.chat.Complete(ctx, "", prompt, 0.1)
	if err != nil {
		return domain.Classification{}, err
	}

	var decoded classifierOut
	if err := json.Unmarshal([]byte(extractJSON(raw)), &decoded); err != nil {
		return domain.Classification{}, fmt.Errorf("parse classifier output: %w", err)
	}
	if decoded.EventType == "" || decoded.MaterialityAI == nil {
		return domain.Classification{}, fmt.Errorf("classifier output missing required fields")
	}

	out := domain.Classification{
		EventType:     decoded.EventType,
		MaterialityAI: clamp01(*decoded.MaterialityAI),
		ImpactSide:    decoded.ImpactSide,
		RiskFlags:     domain.UnionFlags(decoded.RiskFlags, contextRiskFlags(teaser, urls)),
	}
	if out.ImpactSide == "" {
		out.ImpactSide = domain.ImpactUncertain
	}
	for _, e := range decoded.Entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		out.Entities = append(out.Entities, domain.Entity{Name: e.Name, Ticker: e.Ticker, Type: "TICKER", Source: "ai"})
	}
	if len(out.Entities) == 0 {
		out.Entities = extractTickers(headline + " " + teaser)
	}
	return out, nil
}

func heurEventType(text string) string {
	t := strings.ToLower(text)
	for _, kw := range eventKeywords {
		if kw.expr.MatchString(t) {
			return kw.tag
		}
	}
	return "other"
}

func heurMateriality(text string) float64 {
	t := strings.ToLower(text)
	switch {
	case eventKeywords[0].expr.MatchString(t):
		return 0.85
	case eventKeywords[1].expr.MatchString(t) || eventKeywords[2].expr.MatchString(t):
		return 0.75
	case strings.Contains(t, "investigation") || strings.Contains(t, "enforcement"):
		return 0.7
	case strings.Contains(t, "guidance") || strings.Contains(t, "forecast"):
		return 0.6
	}
	return 0.4
}

var (
	posImpactWords = []string{"upgrade", "approval", "record", "beat", "exceed"}
	negImpactWords = []string{"downgrade", "fine", "penalty", "charge", "sanction", "delisting", "miss", "probe"}
)

func heurImpact(text string) string {
	t := strings.ToLower(text)
	for _, w := range posImpactWords {
		if strings.Contains(t, w) {
			return domain.ImpactPos
		}
	}
	for _, w := range negImpactWords {
		if strings.Contains(t, w) {
			return domain.ImpactNeg
		}
	}
	return domain.ImpactUncertain
}

// extractTickers is a placeholder for a proper ticker mapper: bare uppercase
// words minus a ban list of common acronyms.
func extractTickers(text string) []domain.Entity {
	var out []domain.Entity
	seen := make(map[string]struct{})
	for _, t := range tickerExpr.FindAllString(text, -1) {
		if _, banned := tickerBanList[t]; banned {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, domain.Entity{Name: t, Ticker: t, Type: "TICKER", Source: "ai"})
		if len(out) >= maxTickers {
			break
		}
	}
	return out
}

func contextRiskFlags(teaser string, urls []string) []string {
	distinct := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		distinct[u] = struct{}{}
	}

	var flags []string
	if len(distinct) < 1 {
		flags = append(flags, "no_url")
	}
	if len(distinct) == 1 {
		flags = append(flags, "single_source")
	}
	if len(teaser) < minTeaserLen {
		flags = append(flags, "low_context")
	}
	return flags
}

var jsonBlockExpr = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSON tolerates prose around the JSON object in model output.
func extractJSON(raw string) string {
	if m := jsonBlockExpr.FindString(raw); m != "" {
		return m
	}
	return raw
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
