package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"NewsRadar/internal/config"
)

func TestGenerateHeuristicOnly(t *testing.T) {
	t.Parallel()

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<p>The regulator announced an enforcement action and a substantial fine against the brokerage firm on Monday.</p>
			<p>Officials said the settlement resolves a multi-year investigation into misleading disclosures.</p>
		</body></html>`))
	}))
	defer page.Close()

	w := NewWriter(NewChatClient(config.OpenAIConfig{}), nil, nil)
	whyNow, draft := w.Generate(context.Background(), "SEC announces enforcement action against brokerage", []string{page.URL}, "Seed annotation about the enforcement action against the brokerage firm.")

	if whyNow == "" {
		t.Error("whyNow is empty")
	}
	if draft == nil {
		t.Fatal("draft is nil")
	}
	if draft.Title == "" || len([]rune(draft.Title)) > 90 {
		t.Errorf("title = %q", draft.Title)
	}
	if !strings.HasPrefix(draft.Title, "SEC announces ") {
		t.Errorf("title = %q, want SEC boilerplate collapsed", draft.Title)
	}
	if draft.Lede == "" {
		t.Error("lede is empty")
	}
	if len(draft.Bullets) == 0 || len(draft.Bullets) > 3 {
		t.Errorf("bullets = %v", draft.Bullets)
	}
	if len(draft.Attribution) != 1 || draft.Attribution[0] != page.URL {
		t.Errorf("attribution = %v", draft.Attribution)
	}
}

func TestGenerateNoSources(t *testing.T) {
	t.Parallel()

	w := NewWriter(nil, nil, nil)
	whyNow, draft := w.Generate(context.Background(), "Quiet day on the markets", nil, "")

	if whyNow == "" {
		t.Error("whyNow should fall back to a default line")
	}
	if draft == nil || len(draft.Bullets) == 0 {
		t.Fatalf("draft = %+v", draft)
	}
}

func TestGenerateLLMEditorKeepsGuards(t *testing.T) {
	t.Parallel()

	headline := "Securities and Exchange Commission charges MegaBank over compliance failures"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Editor echoes the headline as title; the guard must reject it.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"why_now\":\"Edited why now\",\"draft\":{\"title\":\"Securities and Exchange Commission charges MegaBank over compliance failures\",\"lede\":\"Edited lede.\",\"bullets\":[\"one\"],\"quote\":\"\",\"attribution\":[]}}"}}]}`))
	}))
	defer srv.Close()

	chat := NewChatClient(config.OpenAIConfig{Endpoint: srv.URL, Model: "test-model", APIKey: "test-key"})
	w := NewWriter(chat, nil, nil)

	whyNow, draft := w.Generate(context.Background(), headline, nil, "Seed line about the record penalty and compliance failures at MegaBank.")
	if whyNow != "Edited why now" {
		t.Errorf("whyNow = %q", whyNow)
	}
	if !strings.HasPrefix(draft.Title, "SEC charges ") {
		t.Errorf("title = %q, want heuristic title after similarity guard", draft.Title)
	}
	if draft.Lede != "Edited lede." {
		t.Errorf("lede = %q", draft.Lede)
	}
	if len(draft.Attribution) != 0 {
		t.Errorf("attribution = %v, want empty since no sources", draft.Attribution)
	}
}

func TestParaphraseTitle(t *testing.T) {
	t.Parallel()

	got := paraphraseTitle("U.S. Securities and Exchange Commission charges adviser with fraud - Press Release")
	if !strings.HasPrefix(got, "SEC charges ") || strings.Contains(got, "Press Release") {
		t.Errorf("paraphraseTitle = %q", got)
	}

	long := strings.Repeat("a", 120)
	if got := paraphraseTitle(long); len([]rune(got)) != 90 || !strings.HasSuffix(got, "...") {
		t.Errorf("long title = %q (len %d)", got, len([]rune(got)))
	}
}

func TestTooSimilar(t *testing.T) {
	t.Parallel()

	if !tooSimilar("MegaBank faces record penalty", "megabank faces record penalty ") {
		t.Error("identical titles should be similar")
	}
	if tooSimilar("Regulator fines MegaBank", "Gold prices hit new high") {
		t.Error("unrelated titles flagged as similar")
	}
}
