package ner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"NewsRadar/internal/config"
)

func TestExtractAggregatesByName(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[
			{"name":"Federal Reserve","type":"ORG","score":0.8},
			{"name":"federal reserve","type":"ORG","score":0.95},
			{"name":"noise","type":"MISC","score":0.2}
		]`))
	}))
	defer server.Close()

	c := NewClient(config.NERConfig{InferenceURL: server.URL, MinScore: 0.55}, nil)
	got := c.Extract(context.Background(), "Federal Reserve raises rates")
	if len(got) != 1 {
		t.Fatalf("entities = %d, want 1", len(got))
	}
	if got[0].Score != 0.95 {
		t.Fatalf("highest score should win, got %v", got[0].Score)
	}
}

func TestExtractUnconfiguredReturnsEmpty(t *testing.T) {
	t.Parallel()

	c := NewClient(config.NERConfig{}, nil)
	if got := c.Extract(context.Background(), "some text"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestExtractSwallowsServerErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(config.NERConfig{InferenceURL: server.URL}, nil)
	if got := c.Extract(context.Background(), "some text"); got != nil {
		t.Fatalf("expected nil on server error, got %v", got)
	}
}
