package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/infrastructure/teaser"
	"NewsRadar/internal/ports"
)

// Writer generates why_now and a content draft for an event. A keyword
// heuristic produces the baseline; when the chat client is enabled the LLM
// acts as an editor over that baseline, never as the sole author.
type Writer struct {
	chat   *ChatClient
	client *http.Client
	logger *slog.Logger
}

var _ ports.DraftWriter = (*Writer)(nil)

// NewWriter builds a draft writer; client may be nil.
func NewWriter(chat *ChatClient, client *http.Client, logger *slog.Logger) *Writer {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Writer{chat: chat, client: client, logger: logger}
}

const (
	maxContextSources = 2
	maxContextChars   = 2000
	maxTitleLen       = 90
	maxBullets        = 3
	maxAttribution    = 3
	minKeySentence    = 40
	maxKeySentence    = 220
	titleSimilarity   = 88
	draftBodyLimit    = 2 << 20
)

var (
	secTitleExpr = regexp.MustCompile(`(?i)^\s*(U\.?S\.?\s+)?(Securities and Exchange Commission|SEC)\s+(announces|issues|seeks|charges|approves|names)\s+`)
	fedTitleExpr = regexp.MustCompile(`(?i)^\s*(Federal Reserve Board|Board of Governors of the Federal Reserve System)\s+(announces|issues|seeks|approves)\s+`)
	pressExpr    = regexp.MustCompile(`(?i)\s*-\s*Press Release$`)
	keySentExpr  = regexp.MustCompile(`(?i)\b(enforcement|fine|penalt|investig|order|settle|merg|acquisit|dividend|buyback|guidance|approval|agenda|panel|conference|termination|appointment|charged)\b`)
)

// Generate returns the why_now line and a draft. The heuristic result is the
// floor; LLM failures degrade to it silently.
func (w *Writer) Generate(ctx context.Context, headline string, sourceURLs []string, seed string) (string, *domain.Draft) {
	pageCtx, usedURLs := w.fetchContext(ctx, sourceURLs)
	seed = strings.TrimSpace(seed)

	whyNow, draft := heuristicDraft(headline, seed, pageCtx, usedURLs)
	if !w.chat.Enabled() {
		return whyNow, draft
	}

	combined := seed
	if pageCtx != "" {
		combined = strings.TrimSpace(seed + "\n\n" + pageCtx)
	}
	edited, editedDraft, err := w.editDraft(ctx, headline, combined, whyNow, draft)
	if err != nil {
		if w.logger != nil {
			w.logger.Debug("draft editing failed, keeping heuristic draft", "error", err)
		}
		return whyNow, draft
	}
	return edited, editedDraft
}

// fetchContext pulls readable text from the first distinct source pages.
func (w *Writer) fetchContext(ctx context.Context, sourceURLs []string) (string, []string) {
	var urls []string
	seen := make(map[string]struct{})
	for _, u := range sourceURLs {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
		if len(urls) >= maxContextSources {
			break
		}
	}
	if len(urls) == 0 {
		return "", nil
	}

	perSource := maxContextChars / maxContextSources
	var parts []string
	for _, u := range urls {
		body, err := w.fetchPage(ctx, u)
		if err != nil {
			continue
		}
		text := teaser.StripHTML(body)
		if text == "" {
			continue
		}
		if runes := []rune(text); len(runes) > perSource {
			text = string(runes[:perSource])
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s", u, text))
	}

	joined := strings.Join(parts, "\n\n")
	if runes := []rune(joined); len(runes) > maxContextChars {
		joined = string(runes[:maxContextChars])
	}
	return joined, urls
}

func (w *Writer) fetchPage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; NewsRadar/0.1)")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, draftBodyLimit))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func heuristicDraft(headline, seed, pageCtx string, urls []string) (string, *domain.Draft) {
	key := keySentences(seed + " " + pageCtx)

	lede := seed
	if len(key) > 0 {
		lede = strings.Join(key[:min(2, len(key))], " ")
	}
	if lede == "" {
		lede = "Details are being confirmed with the primary source."
	}

	bullets := key
	if len(bullets) > maxBullets {
		bullets = bullets[:maxBullets]
	}
	if len(bullets) == 0 {
		fallback := seed
		if fallback == "" {
			fallback = "Update from the primary source."
		}
		bullets = []string{fallback, "Watching for follow-ups"}
	}

	whyNow := seed
	if whyNow == "" {
		whyNow = "Fresh update from a regulator or primary source."
	}

	attribution := urls
	if len(attribution) > maxAttribution {
		attribution = attribution[:maxAttribution]
	}

	return whyNow, &domain.Draft{
		Title:       paraphraseTitle(headline),
		Lede:        lede,
		Bullets:     bullets,
		Attribution: attribution,
	}
}

// paraphraseTitle shortens boilerplate agency names and trims press-release
// suffixes, capping the title length.
func paraphraseTitle(headline string) string {
	h := strings.TrimSpace(headline)
	h = secTitleExpr.ReplaceAllString(h, "SEC $3 ")
	h = fedTitleExpr.ReplaceAllString(h, "Fed $2 ")
	h = pressExpr.ReplaceAllString(h, "")
	if runes := []rune(h); len(runes) > maxTitleLen {
		h = string(runes[:maxTitleLen-3]) + "..."
	}
	return h
}

// keySentences ranks sentences of usable length by financial keyword hits,
// preferring longer ones, and returns up to five.
func keySentences(text string) []string {
	var sents []string
	for _, s := range teaser.SplitSentences(text) {
		s = strings.TrimSpace(s)
		if len(s) >= minKeySentence && len(s) <= maxKeySentence {
			sents = append(sents, s)
		}
	}
	if len(sents) == 0 {
		return nil
	}

	type scored struct {
		score int
		idx   int
	}
	ranked := make([]scored, 0, len(sents))
	for i, s := range sents {
		score := 0
		if keySentExpr.MatchString(s) {
			score += 2
		}
		if len(s) > 120 {
			score++
		}
		ranked = append(ranked, scored{score: score, idx: i})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	out := make([]string, 0, 5)
	for _, r := range ranked {
		out = append(out, sents[r.idx])
		if len(out) >= 5 {
			break
		}
	}
	return out
}

type draftOut struct {
	WhyNow string `json:"why_now"`
	Draft  struct {
		Title       string   `json:"title"`
		Lede        string   `json:"lede"`
		Bullets     []string `json:"bullets"`
		Quote       string   `json:"quote"`
		Attribution []string `json:"attribution"`
	} `json:"draft"`
}

func (w *Writer) editDraft(ctx context.Context, headline, combined, whyNow string, base *domain.Draft) (string, *domain.Draft, error) {
	baseJSON, err := json.Marshal(map[string]any{"why_now": whyNow, "draft": base})
	if err != nil {
		return "", nil, err
	}
	if combined == "" {
		combined = "no text"
	}

	system := "You are a financial editor. Concise, factual, no filler."
	user := fmt.Sprintf(`Headline: %s

Context (our annotation first, then page fragments):
<<<CONTEXT
%s
CONTEXT>>>

Current draft (edit it, do not rewrite from scratch):
%s

Requirements:
- Do not repeat the headline verbatim. Title must be at most 90 characters.
- Facts only from CONTEXT and the links. No invented numbers.
- Return ONLY JSON with fields why_now and draft (title, lede, bullets, quote, attribution).`, headline, combined, baseJSON)

	raw, err := w.chat.Complete(ctx, system, user, 0.2)
	if err != nil {
		return "", nil, err
	}

	var decoded draftOut
	if err := json.Unmarshal([]byte(extractJSON(raw)), &decoded); err != nil {
		return "", nil, fmt.Errorf("parse draft output: %w", err)
	}

	out := &domain.Draft{
		Title:       decoded.Draft.Title,
		Lede:        decoded.Draft.Lede,
		Bullets:     decoded.Draft.Bullets,
		Quote:       decoded.Draft.Quote,
		Attribution: decoded.Draft.Attribution,
	}
	if out.Title == "" || tooSimilar(out.Title, headline) {
		out.Title = base.Title
	}
	if out.Lede == "" {
		out.Lede = base.Lede
	}
	if len(out.Bullets) == 0 {
		out.Bullets = base.Bullets
	}
	if len(out.Attribution) == 0 {
		out.Attribution = base.Attribution
	}

	if decoded.WhyNow == "" {
		decoded.WhyNow = whyNow
	}
	return decoded.WhyNow, out, nil
}

// tooSimilar guards against the editor echoing the headline as the title.
func tooSimilar(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return a == b
	}
	return fuzzy.Ratio(a, b) >= titleSimilarity
}
