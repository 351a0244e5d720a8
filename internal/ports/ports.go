package ports

import (
	"context"
	"errors"
	"time"

	"NewsRadar/internal/domain"
)

// ErrNotFound is returned by read-side mutations when the event is missing.
var ErrNotFound = errors.New("event not found")

// FeedFetcher pulls ordered raw entries for one configured source URL.
// Implementations try feed parsing, feed-link discovery, and an HTML link
// harvest in that order, returning the first non-empty result.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]domain.FeedEntry, error)
}

// TeaserExtractor produces a short annotation for an item; best-effort,
// empty string on any failure.
type TeaserExtractor interface {
	Teaser(ctx context.Context, entry domain.FeedEntry, link string) string
}

// KeyphraseExtractor returns scored named entities for a text. May return an
// empty list when no model is configured; never fails.
type KeyphraseExtractor interface {
	Extract(ctx context.Context, text string) []domain.Entity
}

// Classifier returns structured risk/materiality/type/entity signals. On any
// backing-service error it falls back to a deterministic heuristic result of
// the same shape, so it never fails.
type Classifier interface {
	Classify(ctx context.Context, headline, teaser string, urls []string) domain.Classification
}

// Translator is best-effort optional post-processing; it returns the input
// unchanged on any failure.
type Translator interface {
	Translate(ctx context.Context, text, lang string) string
}

// DraftWriter generates why_now and a content draft for an event.
type DraftWriter interface {
	Generate(ctx context.Context, headline string, sourceURLs []string, seed string) (string, *domain.Draft)
}

// EventTx is the per-item transactional surface of the event store. All
// calls for one ingested item run inside the same transaction.
type EventTx interface {
	// FindEventByDedupKey returns nil without error when no event exists.
	FindEventByDedupKey(ctx context.Context, key string) (*domain.Event, error)

	// CreateEvent persists a new event with find-or-create semantics on the
	// dedup key: under a concurrent insert of the same key, exactly one
	// event survives; the loser gets the winner back with created=false.
	CreateEvent(ctx context.Context, ev *domain.Event) (*domain.Event, bool, error)

	UpdateEvent(ctx context.Context, ev *domain.Event) error

	// FindOrCreateSource inserts a source unless (event_id, url) exists;
	// reports whether a row was genuinely created.
	FindOrCreateSource(ctx context.Context, eventID, url, stype string, firstSeen time.Time) (bool, error)

	ListSourcesByEvent(ctx context.Context, eventID string) ([]domain.Source, error)

	// ListRecentHeadlines returns headlines of the most recently created
	// events, first_seen descending.
	ListRecentHeadlines(ctx context.Context, limit int) ([]string, error)
}

// StoreSession is a long-lived connection held by one ingest worker; items
// are applied through it strictly sequentially, one transaction per item.
type StoreSession interface {
	WithinTx(ctx context.Context, fn func(tx EventTx) error) error
	Close() error
}

// EventStore opens per-worker sessions against the shared event tables.
type EventStore interface {
	Session(ctx context.Context) (StoreSession, error)
}

// EventFilter narrows the read-side listing.
type EventFilter struct {
	Query            string
	MinHotness       float64
	Confirmed        *bool
	SourceTypes      []string
	EventType        string
	ImpactSide       string
	MinMaterialityAI float64
	OrderByFirstSeen bool
	Offset           int
	Limit            int
}

// EventRecord pairs an event with its current sources for the read API.
type EventRecord struct {
	Event   domain.Event
	Sources []domain.Source
}

// StoreStats summarizes table counts for health reporting.
type StoreStats struct {
	Events     int64
	Sources    int64
	LastSource time.Time
}

// ReadStore is the query surface consumed by the read API.
type ReadStore interface {
	ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error)
	GetEvent(ctx context.Context, id string) (*EventRecord, error)
	UpdateEventDraft(ctx context.Context, id, whyNow string, draft *domain.Draft) error

	// DeleteEvent removes an event and cascades to its sources. Not part of
	// the ingestion path.
	DeleteEvent(ctx context.Context, id string) error

	Stats(ctx context.Context) (StoreStats, error)
}
