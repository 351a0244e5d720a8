// Package memory provides an in-process event store with the same contract
// as the Postgres store. It backs tests and DSN-less local runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Store keeps events and sources under one mutex. Sessions share the store;
// WithinTx holds the lock for the whole item, which mirrors the per-item
// transaction of the Postgres store.
type Store struct {
	mu      sync.Mutex
	events  map[string]*domain.Event
	byDedup map[string]string
	sources map[string][]domain.Source
	order   []string
}

var (
	_ ports.EventStore = (*Store)(nil)
	_ ports.ReadStore  = (*Store)(nil)
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		events:  make(map[string]*domain.Event),
		byDedup: make(map[string]string),
		sources: make(map[string][]domain.Source),
	}
}

// Session hands out a lightweight handle; all sessions share the same lock.
func (s *Store) Session(ctx context.Context) (ports.StoreSession, error) {
	return &session{store: s}, nil
}

type session struct {
	store *Store
}

var _ ports.StoreSession = (*session)(nil)

func (s *session) WithinTx(ctx context.Context, fn func(tx ports.EventTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return fn(&memTx{store: s.store})
}

func (s *session) Close() error { return nil }

type memTx struct {
	store *Store
}

var _ ports.EventTx = (*memTx)(nil)

func (t *memTx) FindEventByDedupKey(ctx context.Context, key string) (*domain.Event, error) {
	id, ok := t.store.byDedup[key]
	if !ok {
		return nil, nil
	}
	return cloneEvent(t.store.events[id]), nil
}

func (t *memTx) CreateEvent(ctx context.Context, ev *domain.Event) (*domain.Event, bool, error) {
	if id, ok := t.store.byDedup[ev.DedupGroup]; ok {
		return cloneEvent(t.store.events[id]), false, nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	stored := cloneEvent(ev)
	t.store.events[stored.ID] = stored
	t.store.byDedup[stored.DedupGroup] = stored.ID
	t.store.order = append(t.store.order, stored.ID)
	return cloneEvent(stored), true, nil
}

func (t *memTx) UpdateEvent(ctx context.Context, ev *domain.Event) error {
	existing, ok := t.store.events[ev.ID]
	if !ok {
		return ports.ErrNotFound
	}
	updated := cloneEvent(ev)
	updated.DedupGroup = existing.DedupGroup
	updated.FirstSeen = existing.FirstSeen
	t.store.events[ev.ID] = updated
	return nil
}

func (t *memTx) FindOrCreateSource(ctx context.Context, eventID, url, stype string, firstSeen time.Time) (bool, error) {
	for _, src := range t.store.sources[eventID] {
		if src.URL == url {
			return false, nil
		}
	}
	t.store.sources[eventID] = append(t.store.sources[eventID], domain.Source{
		ID:        uuid.NewString(),
		EventID:   eventID,
		URL:       url,
		Type:      stype,
		FirstSeen: firstSeen,
	})
	return true, nil
}

func (t *memTx) ListSourcesByEvent(ctx context.Context, eventID string) ([]domain.Source, error) {
	return append([]domain.Source(nil), t.store.sources[eventID]...), nil
}

func (t *memTx) ListRecentHeadlines(ctx context.Context, limit int) ([]string, error) {
	ids := append([]string(nil), t.store.order...)
	sort.SliceStable(ids, func(a, b int) bool {
		return t.store.events[ids[a]].FirstSeen.After(t.store.events[ids[b]].FirstSeen)
	})
	var out []string
	for _, id := range ids {
		out = append(out, t.store.events[id].Headline)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListEvents filters and orders the way the Postgres store does.
func (s *Store) ListEvents(ctx context.Context, filter ports.EventFilter) ([]ports.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*domain.Event
	for _, id := range s.order {
		ev := s.events[id]
		if !s.matches(ev, filter) {
			continue
		}
		matched = append(matched, ev)
	}

	if filter.OrderByFirstSeen {
		sort.SliceStable(matched, func(a, b int) bool {
			return matched[a].FirstSeen.After(matched[b].FirstSeen)
		})
	} else {
		sort.SliceStable(matched, func(a, b int) bool {
			if matched[a].Hotness != matched[b].Hotness {
				return matched[a].Hotness > matched[b].Hotness
			}
			return matched[a].FirstSeen.After(matched[b].FirstSeen)
		})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	records := make([]ports.EventRecord, 0, len(matched))
	for _, ev := range matched {
		records = append(records, ports.EventRecord{
			Event:   *cloneEvent(ev),
			Sources: append([]domain.Source(nil), s.sources[ev.ID]...),
		})
	}
	return records, nil
}

func (s *Store) matches(ev *domain.Event, filter ports.EventFilter) bool {
	if filter.Query != "" {
		q := strings.ToLower(filter.Query)
		if !strings.Contains(strings.ToLower(ev.Headline), q) &&
			!strings.Contains(strings.ToLower(ev.WhyNow), q) {
			return false
		}
	}
	if filter.MinHotness > 0 && ev.Hotness < filter.MinHotness {
		return false
	}
	if filter.Confirmed != nil && ev.Confirmed != *filter.Confirmed {
		return false
	}
	if filter.EventType != "" && ev.EventType != filter.EventType {
		return false
	}
	if filter.ImpactSide != "" && ev.ImpactSide != filter.ImpactSide {
		return false
	}
	if filter.MinMaterialityAI > 0 && ev.MaterialityAI < filter.MinMaterialityAI {
		return false
	}
	if len(filter.SourceTypes) > 0 {
		found := false
		for _, src := range s.sources[ev.ID] {
			for _, st := range filter.SourceTypes {
				if src.Type == st {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Store) GetEvent(ctx context.Context, id string) (*ports.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	return &ports.EventRecord{
		Event:   *cloneEvent(ev),
		Sources: append([]domain.Source(nil), s.sources[id]...),
	}, nil
}

func (s *Store) UpdateEventDraft(ctx context.Context, id, whyNow string, draft *domain.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return ports.ErrNotFound
	}
	ev.WhyNow = whyNow
	if draft != nil {
		copied := *draft
		ev.Draft = &copied
	} else {
		ev.Draft = nil
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return ports.ErrNotFound
	}
	delete(s.events, id)
	delete(s.byDedup, ev.DedupGroup)
	delete(s.sources, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (ports.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats ports.StoreStats
	stats.Events = int64(len(s.events))
	for _, srcs := range s.sources {
		stats.Sources += int64(len(srcs))
		for _, src := range srcs {
			if src.FirstSeen.After(stats.LastSource) {
				stats.LastSource = src.FirstSeen
			}
		}
	}
	return stats, nil
}

func cloneEvent(ev *domain.Event) *domain.Event {
	if ev == nil {
		return nil
	}
	out := *ev
	out.Entities = append([]domain.Entity(nil), ev.Entities...)
	out.AIEntities = append([]domain.Entity(nil), ev.AIEntities...)
	out.Timeline = append([]domain.TimelineItem(nil), ev.Timeline...)
	out.RiskFlags = append([]string(nil), ev.RiskFlags...)
	if ev.Draft != nil {
		draft := *ev.Draft
		draft.Bullets = append([]string(nil), ev.Draft.Bullets...)
		draft.Attribution = append([]string(nil), ev.Draft.Attribution...)
		out.Draft = &draft
	}
	return &out
}
