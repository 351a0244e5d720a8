package memory

import (
	"context"
	"testing"
	"time"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

func withTx(t *testing.T, store *Store, fn func(tx ports.EventTx) error) {
	t.Helper()
	sess, err := store.Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	defer sess.Close()
	if err := sess.WithinTx(context.Background(), fn); err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
}

func TestCreateEventFindOrCreate(t *testing.T) {
	t.Parallel()

	store := NewStore()
	now := time.Now()

	withTx(t, store, func(tx ports.EventTx) error {
		first, created, err := tx.CreateEvent(context.Background(), &domain.Event{
			Headline:   "First headline",
			DedupGroup: "key-1",
			FirstSeen:  now,
		})
		if err != nil {
			return err
		}
		if !created || first.ID == "" {
			t.Errorf("first insert: created=%v id=%q", created, first.ID)
		}

		second, created, err := tx.CreateEvent(context.Background(), &domain.Event{
			Headline:   "Duplicate headline",
			DedupGroup: "key-1",
			FirstSeen:  now.Add(time.Minute),
		})
		if err != nil {
			return err
		}
		if created {
			t.Error("second insert with same dedup key reported created=true")
		}
		if second.ID != first.ID {
			t.Errorf("second insert returned id %q, want winner %q", second.ID, first.ID)
		}
		if second.Headline != "First headline" {
			t.Errorf("winner headline = %q", second.Headline)
		}
		return nil
	})
}

func TestFindOrCreateSourceIdempotent(t *testing.T) {
	t.Parallel()

	store := NewStore()
	now := time.Now()

	withTx(t, store, func(tx ports.EventTx) error {
		ev, _, err := tx.CreateEvent(context.Background(), &domain.Event{
			Headline: "H", DedupGroup: "k", FirstSeen: now,
		})
		if err != nil {
			return err
		}

		created, err := tx.FindOrCreateSource(context.Background(), ev.ID, "https://a.example/x", domain.SourceNews, now)
		if err != nil || !created {
			t.Errorf("first source: created=%v err=%v", created, err)
		}
		created, err = tx.FindOrCreateSource(context.Background(), ev.ID, "https://a.example/x", domain.SourceNews, now)
		if err != nil || created {
			t.Errorf("repeat source: created=%v err=%v", created, err)
		}

		sources, err := tx.ListSourcesByEvent(context.Background(), ev.ID)
		if err != nil {
			return err
		}
		if len(sources) != 1 {
			t.Errorf("got %d sources, want 1", len(sources))
		}
		return nil
	})
}

func TestListRecentHeadlinesOrder(t *testing.T) {
	t.Parallel()

	store := NewStore()
	base := time.Now()

	withTx(t, store, func(tx ports.EventTx) error {
		for i, h := range []string{"oldest", "middle", "newest"} {
			_, _, err := tx.CreateEvent(context.Background(), &domain.Event{
				Headline:   h,
				DedupGroup: h,
				FirstSeen:  base.Add(time.Duration(i) * time.Hour),
			})
			if err != nil {
				return err
			}
		}
		heads, err := tx.ListRecentHeadlines(context.Background(), 2)
		if err != nil {
			return err
		}
		if len(heads) != 2 || heads[0] != "newest" || heads[1] != "middle" {
			t.Errorf("headlines = %v", heads)
		}
		return nil
	})
}

func TestListEventsFilterAndOrder(t *testing.T) {
	t.Parallel()

	store := NewStore()
	base := time.Now()
	confirmed := true

	withTx(t, store, func(tx ports.EventTx) error {
		hot, _, err := tx.CreateEvent(context.Background(), &domain.Event{
			Headline: "Regulator fines bank", Hotness: 0.9, Confirmed: true,
			EventType: "fine", DedupGroup: "a", FirstSeen: base,
		})
		if err != nil {
			return err
		}
		if _, err := tx.FindOrCreateSource(context.Background(), hot.ID, "https://reg.example/1", domain.SourceRegulator, base); err != nil {
			return err
		}

		_, _, err = tx.CreateEvent(context.Background(), &domain.Event{
			Headline: "Minor market note", Hotness: 0.2,
			EventType: "other", DedupGroup: "b", FirstSeen: base.Add(time.Hour),
		})
		return err
	})

	records, err := store.ListEvents(context.Background(), ports.EventFilter{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(records) != 2 || records[0].Event.Headline != "Regulator fines bank" {
		t.Fatalf("default order wrong: %+v", records)
	}

	records, err = store.ListEvents(context.Background(), ports.EventFilter{
		MinHotness:  0.5,
		Confirmed:   &confirmed,
		SourceTypes: []string{domain.SourceRegulator},
	})
	if err != nil {
		t.Fatalf("ListEvents filtered: %v", err)
	}
	if len(records) != 1 || records[0].Event.EventType != "fine" {
		t.Fatalf("filtered records = %+v", records)
	}
	if len(records[0].Sources) != 1 {
		t.Errorf("sources not attached: %+v", records[0].Sources)
	}

	records, err = store.ListEvents(context.Background(), ports.EventFilter{OrderByFirstSeen: true})
	if err != nil {
		t.Fatalf("ListEvents by first_seen: %v", err)
	}
	if records[0].Event.Headline != "Minor market note" {
		t.Errorf("first_seen order wrong: %q", records[0].Event.Headline)
	}
}

func TestDeleteEventCascades(t *testing.T) {
	t.Parallel()

	store := NewStore()
	now := time.Now()
	var id string

	withTx(t, store, func(tx ports.EventTx) error {
		ev, _, err := tx.CreateEvent(context.Background(), &domain.Event{
			Headline: "H", DedupGroup: "k", FirstSeen: now,
		})
		if err != nil {
			return err
		}
		id = ev.ID
		_, err = tx.FindOrCreateSource(context.Background(), id, "https://a.example/x", domain.SourceNews, now)
		return err
	})

	if err := store.DeleteEvent(context.Background(), id); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if rec, err := store.GetEvent(context.Background(), id); err != nil || rec != nil {
		t.Errorf("GetEvent after delete = %+v, %v", rec, err)
	}
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Events != 0 || stats.Sources != 0 {
		t.Errorf("stats after delete = %+v", stats)
	}

	// Dedup key is free again after deletion.
	withTx(t, store, func(tx ports.EventTx) error {
		_, created, err := tx.CreateEvent(context.Background(), &domain.Event{
			Headline: "H2", DedupGroup: "k", FirstSeen: now,
		})
		if err != nil {
			return err
		}
		if !created {
			t.Error("dedup key still occupied after delete")
		}
		return nil
	})
}
