package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore persists events and their sources in Postgres. It serves both
// the ingestion side (per-worker sessions, one transaction per item) and the
// read API.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ ports.EventStore = (*PostgresStore)(nil)
	_ ports.ReadStore  = (*PostgresStore)(nil)
)

// Open connects to Postgres via lib/pq.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the event tables when missing. The unique index on
// dedup_group is what makes concurrent CreateEvent calls converge on one row.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			headline TEXT NOT NULL,
			hotness DOUBLE PRECISION NOT NULL DEFAULT 0,
			why_now TEXT NOT NULL DEFAULT '',
			entities JSONB NOT NULL DEFAULT '[]',
			ai_entities JSONB NOT NULL DEFAULT '[]',
			timeline JSONB NOT NULL DEFAULT '[]',
			draft JSONB,
			confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			dedup_group TEXT NOT NULL,
			event_type TEXT NOT NULL DEFAULT '',
			materiality_ai DOUBLE PRECISION NOT NULL DEFAULT 0,
			impact_side TEXT NOT NULL DEFAULT '',
			risk_flags TEXT[] NOT NULL DEFAULT '{}',
			first_seen TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS events_dedup_group_key ON events (dedup_group)`,
		`CREATE INDEX IF NOT EXISTS events_hotness_idx ON events (hotness DESC)`,
		`CREATE INDEX IF NOT EXISTS events_first_seen_idx ON events (first_seen DESC)`,
		`CREATE TABLE IF NOT EXISTS sources (
			id UUID PRIMARY KEY,
			event_id UUID NOT NULL REFERENCES events (id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'news',
			first_seen TIMESTAMPTZ NOT NULL,
			UNIQUE (event_id, url)
		)`,
		`CREATE INDEX IF NOT EXISTS sources_event_idx ON sources (event_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Session pins a dedicated connection for one ingest worker.
func (s *PostgresStore) Session(ctx context.Context) (ports.StoreSession, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &pgSession{conn: conn}, nil
}

type pgSession struct {
	conn *sql.Conn
}

var _ ports.StoreSession = (*pgSession)(nil)

func (s *pgSession) WithinTx(ctx context.Context, fn func(tx ports.EventTx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *pgSession) Close() error {
	return s.conn.Close()
}

type pgTx struct {
	tx *sql.Tx
}

var _ ports.EventTx = (*pgTx)(nil)

const eventColumns = `id, headline, hotness, why_now, entities, ai_entities, timeline, draft,
	confirmed, dedup_group, event_type, materiality_ai, impact_side, risk_flags, first_seen`

func (t *pgTx) FindEventByDedupKey(ctx context.Context, key string) (*domain.Event, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE dedup_group = $1`, key)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find event by dedup key: %w", err)
	}
	return ev, nil
}

func (t *pgTx) CreateEvent(ctx context.Context, ev *domain.Event) (*domain.Event, bool, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	entities, err := marshalJSON(ev.Entities)
	if err != nil {
		return nil, false, err
	}
	aiEntities, err := marshalJSON(ev.AIEntities)
	if err != nil {
		return nil, false, err
	}
	timeline, err := marshalJSON(ev.Timeline)
	if err != nil {
		return nil, false, err
	}
	draft, err := marshalDraft(ev.Draft)
	if err != nil {
		return nil, false, err
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO events (id, headline, hotness, why_now, entities, ai_entities, timeline, draft,
			confirmed, dedup_group, event_type, materiality_ai, impact_side, risk_flags, first_seen)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (dedup_group) DO NOTHING`,
		ev.ID, ev.Headline, ev.Hotness, ev.WhyNow, entities, aiEntities, timeline, draft,
		ev.Confirmed, ev.DedupGroup, ev.EventType, ev.MaterialityAI, ev.ImpactSide,
		pq.StringArray(ev.RiskFlags), ev.FirstSeen)
	if err != nil {
		return nil, false, fmt.Errorf("insert event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert event result: %w", err)
	}
	if affected > 0 {
		return ev, true, nil
	}

	// Lost the insert race; the winner's row is the event for this key.
	winner, err := t.FindEventByDedupKey(ctx, ev.DedupGroup)
	if err != nil {
		return nil, false, err
	}
	if winner == nil {
		return nil, false, fmt.Errorf("event for dedup key %q vanished after conflict", ev.DedupGroup)
	}
	return winner, false, nil
}

func (t *pgTx) UpdateEvent(ctx context.Context, ev *domain.Event) error {
	entities, err := marshalJSON(ev.Entities)
	if err != nil {
		return err
	}
	aiEntities, err := marshalJSON(ev.AIEntities)
	if err != nil {
		return err
	}
	timeline, err := marshalJSON(ev.Timeline)
	if err != nil {
		return err
	}
	draft, err := marshalDraft(ev.Draft)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx,
		`UPDATE events SET headline = $2, hotness = $3, why_now = $4, entities = $5,
			ai_entities = $6, timeline = $7, draft = $8, confirmed = $9, event_type = $10,
			materiality_ai = $11, impact_side = $12, risk_flags = $13
		 WHERE id = $1`,
		ev.ID, ev.Headline, ev.Hotness, ev.WhyNow, entities, aiEntities, timeline, draft,
		ev.Confirmed, ev.EventType, ev.MaterialityAI, ev.ImpactSide, pq.StringArray(ev.RiskFlags))
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

func (t *pgTx) FindOrCreateSource(ctx context.Context, eventID, url, stype string, firstSeen time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO sources (id, event_id, url, type, first_seen)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (event_id, url) DO NOTHING`,
		uuid.NewString(), eventID, url, stype, firstSeen)
	if err != nil {
		return false, fmt.Errorf("insert source: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert source result: %w", err)
	}
	return affected > 0, nil
}

func (t *pgTx) ListSourcesByEvent(ctx context.Context, eventID string) ([]domain.Source, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, event_id, url, type, first_seen FROM sources
		 WHERE event_id = $1 ORDER BY first_seen, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		var src domain.Source
		if err := rows.Scan(&src.ID, &src.EventID, &src.URL, &src.Type, &src.FirstSeen); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (t *pgTx) ListRecentHeadlines(ctx context.Context, limit int) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT headline FROM events ORDER BY first_seen DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent headlines: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan headline: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// ListEvents applies the read-side filter and attaches sources in one batch.
func (s *PostgresStore) ListEvents(ctx context.Context, filter ports.EventFilter) ([]ports.EventRecord, error) {
	builder := psql.Select(
		"id", "headline", "hotness", "why_now", "entities", "ai_entities", "timeline", "draft",
		"confirmed", "dedup_group", "event_type", "materiality_ai", "impact_side", "risk_flags", "first_seen",
	).From("events")

	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"headline": pattern},
			sq.ILike{"why_now": pattern},
		})
	}
	if filter.MinHotness > 0 {
		builder = builder.Where(sq.GtOrEq{"hotness": filter.MinHotness})
	}
	if filter.Confirmed != nil {
		builder = builder.Where(sq.Eq{"confirmed": *filter.Confirmed})
	}
	if filter.EventType != "" {
		builder = builder.Where(sq.Eq{"event_type": filter.EventType})
	}
	if filter.ImpactSide != "" {
		builder = builder.Where(sq.Eq{"impact_side": filter.ImpactSide})
	}
	if filter.MinMaterialityAI > 0 {
		builder = builder.Where(sq.GtOrEq{"materiality_ai": filter.MinMaterialityAI})
	}
	if len(filter.SourceTypes) > 0 {
		builder = builder.Where(
			"EXISTS (SELECT 1 FROM sources s WHERE s.event_id = events.id AND s.type = ANY(?))",
			pq.StringArray(filter.SourceTypes))
	}

	if filter.OrderByFirstSeen {
		builder = builder.OrderBy("first_seen DESC")
	} else {
		builder = builder.OrderBy("hotness DESC", "first_seen DESC")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	builder = builder.Limit(uint64(limit))
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	sources, err := s.sourcesByEvents(ctx, events)
	if err != nil {
		return nil, err
	}

	records := make([]ports.EventRecord, 0, len(events))
	for _, ev := range events {
		records = append(records, ports.EventRecord{Event: ev, Sources: sources[ev.ID]})
	}
	return records, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*ports.EventRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	sources, err := s.sourcesByEvents(ctx, []domain.Event{*ev})
	if err != nil {
		return nil, err
	}
	return &ports.EventRecord{Event: *ev, Sources: sources[ev.ID]}, nil
}

func (s *PostgresStore) UpdateEventDraft(ctx context.Context, id, whyNow string, draft *domain.Draft) error {
	payload, err := marshalDraft(draft)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET why_now = $2, draft = $3 WHERE id = $1`, id, whyNow, payload)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update draft result: %w", err)
	}
	if affected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event result: %w", err)
	}
	if affected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (ports.StoreStats, error) {
	var stats ports.StoreStats
	var last sql.NullTime

	row := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM events),
		        (SELECT COUNT(*) FROM sources),
		        (SELECT MAX(first_seen) FROM sources)`)
	if err := row.Scan(&stats.Events, &stats.Sources, &last); err != nil {
		return ports.StoreStats{}, fmt.Errorf("query stats: %w", err)
	}
	if last.Valid {
		stats.LastSource = last.Time
	}
	return stats, nil
}

func (s *PostgresStore) sourcesByEvents(ctx context.Context, events []domain.Event) (map[string][]domain.Source, error) {
	if len(events) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, url, type, first_seen FROM sources
		 WHERE event_id = ANY($1::uuid[]) ORDER BY first_seen, id`, pq.StringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Source, len(events))
	for rows.Next() {
		var src domain.Source
		if err := rows.Scan(&src.ID, &src.EventID, &src.URL, &src.Type, &src.FirstSeen); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out[src.EventID] = append(out[src.EventID], src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		ev         domain.Event
		entities   []byte
		aiEntities []byte
		timeline   []byte
		draft      []byte
		riskFlags  pq.StringArray
	)
	err := row.Scan(&ev.ID, &ev.Headline, &ev.Hotness, &ev.WhyNow, &entities, &aiEntities,
		&timeline, &draft, &ev.Confirmed, &ev.DedupGroup, &ev.EventType, &ev.MaterialityAI,
		&ev.ImpactSide, &riskFlags, &ev.FirstSeen)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(entities, &ev.Entities); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	if err := unmarshalJSON(aiEntities, &ev.AIEntities); err != nil {
		return nil, fmt.Errorf("decode ai entities: %w", err)
	}
	if err := unmarshalJSON(timeline, &ev.Timeline); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	if len(draft) > 0 {
		var d domain.Draft
		if err := json.Unmarshal(draft, &d); err != nil {
			return nil, fmt.Errorf("decode draft: %w", err)
		}
		ev.Draft = &d
	}
	ev.RiskFlags = []string(riskFlags)
	return &ev, nil
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	if string(raw) == "null" {
		return []byte("[]"), nil
	}
	return raw, nil
}

func marshalDraft(d *domain.Draft) (any, error) {
	if d == nil {
		return nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode draft: %w", err)
	}
	return raw, nil
}

func unmarshalJSON[T any](raw []byte, into *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}
