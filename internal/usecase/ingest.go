package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsRadar/internal/config"
	"NewsRadar/internal/dedup"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/hotness"
	"NewsRadar/internal/metrics"
	"NewsRadar/internal/ports"
	"NewsRadar/internal/similarity"
	"NewsRadar/internal/timeline"
)

const defaultWhyNow = "Update from a primary source or regulator."

// Ingestor runs the dedup and merge engine over configured feeds. Feeds are
// processed with bounded concurrency; each worker holds one store session and
// applies its items strictly in order, one transaction per item.
type Ingestor struct {
	store       ports.EventStore
	fetcher     ports.FeedFetcher
	teasers     ports.TeaserExtractor
	keyphrases  ports.KeyphraseExtractor
	classifier  ports.Classifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	concurrency int
	maxPerFeed  int
	now         func() time.Time
}

// NewIngestor wires the ingestion pipeline.
func NewIngestor(
	store ports.EventStore,
	fetcher ports.FeedFetcher,
	teasers ports.TeaserExtractor,
	keyphrases ports.KeyphraseExtractor,
	classifier ports.Classifier,
	m *metrics.Metrics,
	cfg config.IngestConfig,
	logger *slog.Logger,
) *Ingestor {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	maxPerFeed := cfg.MaxPerFeed
	if maxPerFeed <= 0 {
		maxPerFeed = 25
	}
	return &Ingestor{
		store:       store,
		fetcher:     fetcher,
		teasers:     teasers,
		keyphrases:  keyphrases,
		classifier:  classifier,
		metrics:     m,
		logger:      logger,
		concurrency: concurrency,
		maxPerFeed:  maxPerFeed,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunStats summarizes one ingestion pass.
type RunStats struct {
	Items      int64
	NewEvents  int64
	NewSources int64
	Errors     int64
}

// Run ingests every configured source once. Feed and item failures are
// counted and logged but do not abort the pass; only context cancellation
// stops it early.
func (i *Ingestor) Run(ctx context.Context, sources []config.SourceConfig) (RunStats, error) {
	var stats runCounters

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			return i.processSource(ctx, src, &stats)
		})
	}
	err := g.Wait()

	out := stats.snapshot()
	i.logger.Info("ingest pass finished",
		"items", out.Items, "new_events", out.NewEvents,
		"new_sources", out.NewSources, "errors", out.Errors)
	return out, err
}

type runCounters struct {
	items      atomic.Int64
	newEvents  atomic.Int64
	newSources atomic.Int64
	errors     atomic.Int64
}

func (c *runCounters) snapshot() RunStats {
	return RunStats{
		Items:      c.items.Load(),
		NewEvents:  c.newEvents.Load(),
		NewSources: c.newSources.Load(),
		Errors:     c.errors.Load(),
	}
}

func (i *Ingestor) processSource(ctx context.Context, src config.SourceConfig, stats *runCounters) error {
	entries, err := i.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		i.logger.Warn("feed fetch failed", "url", src.URL, "error", err)
		i.metrics.FetchErrors.WithLabelValues(src.Type).Inc()
		stats.errors.Add(1)
		return nil
	}
	if len(entries) > i.maxPerFeed {
		entries = entries[:i.maxPerFeed]
	}
	if len(entries) == 0 {
		return nil
	}

	session, err := i.store.Session(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		i.logger.Warn("store session unavailable", "url", src.URL, "error", err)
		stats.errors.Add(1)
		return nil
	}
	defer session.Close()

	for _, entry := range entries {
		title := strings.TrimSpace(entry.Title)
		link := dedup.CleanURL(strings.TrimSpace(entry.Link))
		if title == "" || link == "" {
			continue
		}

		err := session.WithinTx(ctx, func(tx ports.EventTx) error {
			_, created, sourceAdded, err := i.upsertItem(ctx, tx, title, link, src.Type, entry)
			if err != nil {
				return err
			}
			if created {
				stats.newEvents.Add(1)
				i.metrics.EventsCreated.Inc()
			}
			if sourceAdded {
				stats.newSources.Add(1)
				i.metrics.SourcesAdded.Inc()
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.logger.Warn("item skipped", "url", src.URL, "title", title, "error", err)
			i.metrics.ItemErrors.Inc()
			stats.errors.Add(1)
			continue
		}
		stats.items.Add(1)
		i.metrics.ItemsProcessed.WithLabelValues(src.Type).Inc()
	}
	return nil
}

// upsertItem applies one item: find or create the event for its dedup key,
// merge signals, attach the source, and recompute hotness from the full
// source set.
func (i *Ingestor) upsertItem(ctx context.Context, tx ports.EventTx, title, link, stype string, entry domain.FeedEntry) (*domain.Event, bool, bool, error) {
	key := dedup.Key(title, link)
	now := i.now()

	ev, err := tx.FindEventByDedupKey(ctx, key)
	if err != nil {
		return nil, false, false, err
	}

	// Keywords the event had before this item touches it; used to decide
	// whether the item reads as a follow-up worth a timeline entry.
	var keywordsBefore map[string]struct{}
	if ev != nil {
		keywordsBefore = timeline.EventKeywords(ev)
	}

	recent, err := tx.ListRecentHeadlines(ctx, similarity.RecencyWindow)
	if err != nil {
		return nil, false, false, err
	}
	novelty := similarity.Novelty(title, recent)

	teaser := i.teasers.Teaser(ctx, entry, link)

	contextText := title
	if teaser != "" {
		contextText = title + " " + teaser
	}
	phrases := i.keyphrases.Extract(ctx, contextText)
	itemKeywords := timeline.ItemKeywords(title, teaser, phrases)

	cls := i.classifier.Classify(ctx, title, teaser, []string{link})

	created := false
	if ev == nil {
		candidate := &domain.Event{
			Headline:      title,
			WhyNow:        teaser,
			Entities:      phrases,
			AIEntities:    cls.Entities,
			RiskFlags:     cls.RiskFlags,
			EventType:     cls.EventType,
			MaterialityAI: cls.MaterialityAI,
			ImpactSide:    cls.ImpactSide,
			Timeline:      []domain.TimelineItem{{T: now, What: "first_seen"}},
			Confirmed:     stype == domain.SourceRegulator || stype == domain.SourceExchange,
			DedupGroup:    key,
			FirstSeen:     now,
		}
		if candidate.WhyNow == "" {
			candidate.WhyNow = defaultWhyNow
		}
		ev, created, err = tx.CreateEvent(ctx, candidate)
		if err != nil {
			return nil, false, false, err
		}
		if !created {
			// Lost a race with another worker; merge into the winner.
			keywordsBefore = timeline.EventKeywords(ev)
			mergeItem(ev, teaser, phrases, cls)
		}
	} else {
		mergeItem(ev, teaser, phrases, cls)
	}

	sourceAdded, err := tx.FindOrCreateSource(ctx, ev.ID, link, stype, now)
	if err != nil {
		return nil, false, false, err
	}
	if sourceAdded && !created {
		timeline.Append(ev, keywordsBefore, itemKeywords, now, teaser, title, stype)
	}

	sources, err := tx.ListSourcesByEvent(ctx, ev.ID)
	if err != nil {
		return nil, false, false, err
	}

	distinct := hotness.DistinctDomains(sources)
	confirmation := hotness.Confirmation(sources, distinct)
	materiality := hotness.Materiality(title+" "+teaser, ev.MaterialityAI, phrases)

	ev.Confirmed = hotness.Confirmed(confirmation)
	ev.Hotness = hotness.Score(
		novelty,
		hotness.Credibility(sources),
		confirmation,
		hotness.Velocity(distinct),
		materiality,
		hotness.Scope(distinct),
	)

	if err := tx.UpdateEvent(ctx, ev); err != nil {
		return nil, false, false, err
	}
	return ev, created, sourceAdded, nil
}

// mergeItem folds one item's signals into an existing event. AI text fields
// are first-write-wins; entities merge by name; flags union.
func mergeItem(ev *domain.Event, teaser string, phrases []domain.Entity, cls domain.Classification) {
	if ev.WhyNow == "" && teaser != "" {
		ev.WhyNow = teaser
	}
	ev.Entities = domain.MergeEntities(ev.Entities, phrases)

	if ev.EventType == "" {
		ev.EventType = cls.EventType
	}
	if ev.ImpactSide == "" {
		ev.ImpactSide = cls.ImpactSide
	}
	if ev.MaterialityAI == 0 && cls.MaterialityAI != 0 {
		ev.MaterialityAI = cls.MaterialityAI
	}
	// ai_entities keep every observation for provenance, duplicates included.
	ev.AIEntities = append(ev.AIEntities, cls.Entities...)
	ev.RiskFlags = domain.UnionFlags(ev.RiskFlags, cls.RiskFlags)
}
