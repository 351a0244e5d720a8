package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"NewsRadar/internal/config"
)

func TestTranslateReturnsInputWhenDisabled(t *testing.T) {
	t.Parallel()

	tr := NewTranslator(NewChatClient(config.OpenAIConfig{}), "", nil)
	if got := tr.Translate(context.Background(), "  hello world  ", "de"); got != "hello world" {
		t.Errorf("Translate = %q, want trimmed input back", got)
	}
}

func TestTranslateEmptyInputs(t *testing.T) {
	t.Parallel()

	tr := NewTranslator(nil, "", nil)
	if got := tr.Translate(context.Background(), "", "de"); got != "" {
		t.Errorf("Translate(empty) = %q", got)
	}
	if got := tr.Translate(context.Background(), "text", ""); got != "text" {
		t.Errorf("Translate(no lang) = %q, want input back", got)
	}
}

func TestTranslateUsesChatClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hallo welt"}}]}`))
	}))
	defer srv.Close()

	chat := NewChatClient(config.OpenAIConfig{Endpoint: srv.URL, Model: "test-model", APIKey: "test-key"})
	tr := NewTranslator(chat, "", nil)
	if got := tr.Translate(context.Background(), "hello world", "de"); got != "hallo welt" {
		t.Errorf("Translate = %q, want hallo welt", got)
	}
}

func TestTranslateSurvivesChatFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	chat := NewChatClient(config.OpenAIConfig{Endpoint: srv.URL, Model: "test-model", APIKey: "test-key"})
	tr := NewTranslator(chat, "", nil)
	if got := tr.Translate(context.Background(), "hello world", "de"); got != "hello world" {
		t.Errorf("Translate = %q, want input back on failure", got)
	}
}

func TestCacheKeyStable(t *testing.T) {
	t.Parallel()

	a := cacheKey("de", "hello")
	b := cacheKey("de", "hello")
	if a != b {
		t.Errorf("cache keys differ: %q vs %q", a, b)
	}
	if a == cacheKey("fr", "hello") {
		t.Error("cache key ignores language")
	}
}
