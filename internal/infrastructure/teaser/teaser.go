// Package teaser builds the short why_now annotation for an item from its
// RSS summary or, failing that, from the linked page itself.
package teaser

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

const (
	minSummaryLen  = 60
	minSentenceLen = 40
	maxSentences   = 2
	maxTeaserLen   = 260
	maxBodyBytes   = 2 << 20

	userAgent = "Mozilla/5.0 (compatible; NewsRadar/1.0; +http://localhost)"
)

var (
	scriptStyleExpr = regexp.MustCompile(`(?is)<script.*?</script>|<style.*?</style>`)
	tagExpr         = regexp.MustCompile(`(?is)<[^>]+>`)
)

// Extractor is a best-effort teaser source; every failure path yields "".
type Extractor struct {
	client *http.Client
}

var _ ports.TeaserExtractor = (*Extractor)(nil)

// NewExtractor wires an HTTP client; a nil client gets a 20s-timeout default.
func NewExtractor(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Extractor{client: client}
}

// Teaser prefers the entry's own summary; when that is too thin it pulls the
// page and falls back to its meta description or stripped body text.
func (e *Extractor) Teaser(ctx context.Context, entry domain.FeedEntry, link string) string {
	if s := StripHTML(entry.Summary); len(s) >= minSummaryLen {
		return FirstSentences(s)
	}

	if link == "" {
		return ""
	}
	raw, err := e.fetch(ctx, link)
	if err != nil {
		return ""
	}

	text := metaDescription(raw)
	if text == "" {
		text = StripHTML(raw)
	}
	return FirstSentences(text)
}

func (e *Extractor) fetch(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// StripHTML removes script/style blocks and tags, collapsing whitespace.
func StripHTML(html string) string {
	html = scriptStyleExpr.ReplaceAllString(html, " ")
	text := tagExpr.ReplaceAllString(html, " ")
	return strings.Join(strings.Fields(text), " ")
}

// FirstSentences keeps up to two sentences of at least 40 characters and
// caps the result at 260 characters.
func FirstSentences(text string) string {
	var picked []string
	for _, sentence := range SplitSentences(text) {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) < minSentenceLen {
			continue
		}
		picked = append(picked, sentence)
		if len(picked) >= maxSentences {
			break
		}
	}
	out := strings.TrimSpace(strings.Join(picked, " "))
	if runes := []rune(out); len(runes) > maxTeaserLen {
		out = string(runes[:maxTeaserLen])
	}
	return out
}

// SplitSentences cuts text after terminal punctuation followed by
// whitespace. The draft writer reuses it when picking key sentences.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\t' && runes[i+1] != '\n' {
				continue
			}
			out = append(out, string(runes[start:i+1]))
			start = i + 1
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func metaDescription(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if content, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		return strings.Join(strings.Fields(content), " ")
	}
	if content, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		return strings.Join(strings.Fields(content), " ")
	}
	return ""
}
