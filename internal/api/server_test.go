package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"NewsRadar/internal/config"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/infrastructure/storage/memory"
	"NewsRadar/internal/ports"
)

type fakeDrafts struct{}

func (fakeDrafts) Generate(ctx context.Context, headline string, sourceURLs []string, seed string) (string, *domain.Draft) {
	return "generated why now", &domain.Draft{
		Title:       "Generated title",
		Lede:        "Generated lede.",
		Bullets:     []string{"one", "two"},
		Attribution: sourceURLs,
	}
}

type markingTranslator struct{}

func (markingTranslator) Translate(ctx context.Context, text, lang string) string {
	return "[" + lang + "] " + text
}

func newTestServer(t *testing.T) (*Server, *memory.Store, string) {
	t.Helper()

	store := memory.NewStore()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	var id string
	sess, err := store.Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	defer sess.Close()
	err = sess.WithinTx(context.Background(), func(tx ports.EventTx) error {
		ev, _, err := tx.CreateEvent(context.Background(), &domain.Event{
			Headline:      "Regulator X opens probe into Bank Y",
			Hotness:       0.81,
			WhyNow:        "Regulator X opened a probe.",
			Confirmed:     true,
			EventType:     "investigation",
			MaterialityAI: 0.7,
			ImpactSide:    domain.ImpactNeg,
			DedupGroup:    "k1",
			Timeline:      []domain.TimelineItem{{T: now, What: "first_seen"}},
			FirstSeen:     now,
		})
		if err != nil {
			return err
		}
		id = ev.ID
		_, err = tx.FindOrCreateSource(context.Background(), ev.ID, "https://reg.example/1", domain.SourceRegulator, now)
		return err
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(config.APIConfig{Addr: ":0"}, store, fakeDrafts{}, markingTranslator{}, logger)
	return srv, store, id
}

func doRequest(t *testing.T, srv *Server, method, target string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, target, err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp, body
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	resp, body := doRequest(t, srv, http.MethodGet, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["ok"] != true || out["events"] != float64(1) || out["sources"] != float64(1) {
		t.Errorf("health = %v", out)
	}
}

func TestListEventsFilters(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/events?min_hotness=0.5&confirmed=true&types=regulator")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var events []eventOut
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].EventType != "investigation" || !events[0].Confirmed {
		t.Errorf("event = %+v", events[0])
	}
	if len(events[0].Sources) != 1 || events[0].Sources[0].Type != domain.SourceRegulator {
		t.Errorf("sources = %+v", events[0].Sources)
	}

	resp, body = doRequest(t, srv, http.MethodGet, "/events?min_hotness=0.95")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events above 0.95 = %+v", events)
	}

	resp, _ = doRequest(t, srv, http.MethodGet, "/events?impact_side=sideways")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid impact_side status = %d", resp.StatusCode)
	}
}

func TestGetEventTranslates(t *testing.T) {
	t.Parallel()

	srv, _, id := newTestServer(t)
	resp, body := doRequest(t, srv, http.MethodGet, "/events/"+id+"?lang=de")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out eventOut
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Headline != "[de] Regulator X opens probe into Bank Y" {
		t.Errorf("headline = %q", out.Headline)
	}
	if out.WhyNow != "[de] Regulator X opened a probe." {
		t.Errorf("why_now = %q", out.WhyNow)
	}
}

func TestGetEventNotFound(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	resp, _ := doRequest(t, srv, http.MethodGet, "/events/0b5ef2b1-6b1c-4c7e-b916-000000000000")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing uuid status = %d", resp.StatusCode)
	}
	resp, _ = doRequest(t, srv, http.MethodGet, "/events/not-a-uuid")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("malformed id status = %d", resp.StatusCode)
	}
}

func TestGenerateStoresDraft(t *testing.T) {
	t.Parallel()

	srv, store, id := newTestServer(t)
	resp, body := doRequest(t, srv, http.MethodPost, "/events/"+id+"/generate")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var out eventOut
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.WhyNow != "generated why now" {
		t.Errorf("why_now = %q", out.WhyNow)
	}
	if out.Draft == nil || out.Draft.Title != "Generated title" {
		t.Errorf("draft = %+v", out.Draft)
	}

	rec, err := store.GetEvent(context.Background(), id)
	if err != nil || rec == nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if rec.Event.Draft == nil || rec.Event.Draft.Title != "Generated title" {
		t.Errorf("stored draft = %+v", rec.Event.Draft)
	}
}

func TestDeleteEvent(t *testing.T) {
	t.Parallel()

	srv, store, id := newTestServer(t)
	resp, _ := doRequest(t, srv, http.MethodDelete, "/events/"+id)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if rec, err := store.GetEvent(context.Background(), id); err != nil || rec != nil {
		t.Errorf("event still present: %+v, %v", rec, err)
	}

	resp, _ = doRequest(t, srv, http.MethodDelete, "/events/"+id)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d", resp.StatusCode)
	}
}
