package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; NewsRadar/1.0; +http://localhost)"
	acceptHeader = "application/rss+xml, application/xml;q=0.9, text/html;q=0.8, */*;q=0.7"

	harvestLimit   = 20
	harvestMinText = 30
	maxBodyBytes   = 4 << 20
)

var harvestHrefKeywords = []string{"news", "press", "article", "business", "markets"}

// Fetcher loads a feed URL and falls back to feed autodiscovery and then an
// HTML link harvest when the URL points at a homepage instead of a feed.
type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

var _ ports.FeedFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; a nil client gets a 20s-timeout default.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{client: client, parser: gofeed.NewParser()}
}

// Fetch returns ordered entries for one source URL, or an empty slice when
// the page yields nothing parseable.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]domain.FeedEntry, error) {
	body, finalURL, contentType, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	if entries := f.parseFeed(body); len(entries) > 0 {
		return entries, nil
	}

	if strings.Contains(contentType, "html") || contentType == "" {
		doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if docErr == nil {
			if discovered := discoverFeedLink(doc, finalURL); discovered != "" {
				if feedBody, _, _, getErr := f.get(ctx, discovered); getErr == nil {
					if entries := f.parseFeed(feedBody); len(entries) > 0 {
						return entries, nil
					}
				}
			}
			if entries := harvestLinks(doc, finalURL); len(entries) > 0 {
				return entries, nil
			}
		}
	}

	return nil, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", "", fmt.Errorf("fetch %s: unexpected status %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", "", fmt.Errorf("read %s: %w", rawURL, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))

	return body, finalURL, contentType, nil
}

func (f *Fetcher) parseFeed(body []byte) []domain.FeedEntry {
	feed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil || feed == nil {
		return nil
	}

	entries := make([]domain.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entry := domain.FeedEntry{
			Title:   strings.TrimSpace(item.Title),
			Link:    strings.TrimSpace(item.Link),
			Summary: item.Description,
		}
		if entry.Summary == "" {
			entry.Summary = item.Content
		}
		if item.PublishedParsed != nil {
			entry.Published = item.PublishedParsed.UTC()
		}
		entries = append(entries, entry)
	}
	return entries
}

// discoverFeedLink looks for <link rel="alternate"> pointing at an RSS/Atom
// document, preferring entries with an explicit feed content type.
func discoverFeedLink(doc *goquery.Document, base string) string {
	var typed, untyped string

	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		linkType, _ := sel.Attr("type")
		linkType = strings.ToLower(linkType)
		if strings.Contains(linkType, "rss") || strings.Contains(linkType, "atom") || strings.Contains(linkType, "xml") {
			typed = href
			return false
		}
		if untyped == "" {
			untyped = href
		}
		return true
	})

	href := typed
	if href == "" {
		href = untyped
	}
	if href == "" {
		return ""
	}
	return resolveURL(base, href)
}

// harvestLinks extracts likely article links from a homepage as pseudo feed
// entries: first anchors whose href mentions newsy sections, then headline
// anchors.
func harvestLinks(doc *goquery.Document, base string) []domain.FeedEntry {
	var entries []domain.FeedEntry
	seen := map[string]struct{}{}

	push := func(href, text string) bool {
		abs := resolveURL(base, href)
		if abs == "" {
			return false
		}
		if _, ok := seen[abs]; ok {
			return false
		}
		text = strings.Join(strings.Fields(text), " ")
		if len(text) < harvestMinText {
			return false
		}
		seen[abs] = struct{}{}
		entries = append(entries, domain.FeedEntry{Title: text, Link: abs})
		return len(entries) >= harvestLimit
	}

	done := false
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		lower := strings.ToLower(href)
		for _, kw := range harvestHrefKeywords {
			if strings.Contains(lower, kw) {
				done = push(href, sel.Text())
				break
			}
		}
		return !done
	})
	if done {
		return entries
	}

	for _, selector := range []string{"h1 a", "h2 a", "h3 a", "a[href]"} {
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, _ := sel.Attr("href")
			done = push(href, sel.Text())
			return !done
		})
		if done {
			break
		}
	}

	return entries
}

func resolveURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
