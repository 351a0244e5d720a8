package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"NewsRadar/internal/config"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// Client talks to an external NER service for keyphrase extraction. The
// service is optional: an unconfigured or failing client yields an empty
// result and ingest proceeds without keyphrases.
type Client struct {
	endpoint string
	apiKey   string
	minScore float64
	http     *http.Client
	logger   *slog.Logger
}

var _ ports.KeyphraseExtractor = (*Client)(nil)

// NewClient creates a reusable HTTP client; an empty InferenceURL disables
// extraction entirely.
func NewClient(cfg config.NERConfig, logger *slog.Logger) *Client {
	minScore := cfg.MinScore
	if minScore <= 0 {
		minScore = 0.55
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.InferenceURL, "/"),
		apiKey:   cfg.APIKey,
		minScore: minScore,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

type phraseOut struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// Extract posts text for scoring and aggregates phrases by lower-cased name,
// keeping the highest score. Scores below the configured minimum are
// dropped. Never returns an error: failures degrade to an empty list.
func (c *Client) Extract(ctx context.Context, text string) []domain.Entity {
	text = strings.TrimSpace(text)
	if text == "" || c.endpoint == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/extract", bytes.NewReader(payload))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.debug("ner request failed", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.debug("ner unexpected status", "status", resp.Status)
		return nil
	}

	var phrases []phraseOut
	if err := json.NewDecoder(resp.Body).Decode(&phrases); err != nil {
		c.debug("ner decode failed", "error", err)
		return nil
	}

	best := map[string]domain.Entity{}
	order := make([]string, 0, len(phrases))
	for _, p := range phrases {
		name := strings.TrimSpace(p.Name)
		if name == "" || p.Score < c.minScore {
			continue
		}
		entityType := p.Type
		if entityType == "" {
			entityType = "MISC"
		}
		score := p.Score
		if score > 1 {
			score = 1
		}
		entry := domain.Entity{Name: name, Type: entityType, Score: score, Source: "ner"}
		key := strings.ToLower(name)
		if existing, ok := best[key]; ok {
			if entry.Score > existing.Score {
				best[key] = entry
			}
			continue
		}
		best[key] = entry
		order = append(order, key)
	}

	out := make([]domain.Entity, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
