// Package api serves the read side: event listings, single events, and
// on-demand draft generation.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"NewsRadar/internal/config"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// Server exposes the Fiber application over the read store.
type Server struct {
	app        *fiber.App
	store      ports.ReadStore
	drafts     ports.DraftWriter
	translator ports.Translator
	logger     *slog.Logger
	cfg        config.APIConfig
}

// NewServer wires handlers and middleware.
func NewServer(cfg config.APIConfig, store ports.ReadStore, drafts ports.DraftWriter, translator ports.Translator, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	srv := &Server{
		app:        app,
		store:      store,
		drafts:     drafts,
		translator: translator,
		logger:     logger,
		cfg:        cfg,
	}
	srv.registerRoutes()
	return srv
}

// Run listens until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()

	s.logger.Info("read api listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// App exposes the Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/events", s.handleListEvents)
	s.app.Get("/events/:id", s.handleGetEvent)
	s.app.Post("/events/:id/generate", s.handleGenerate)
	s.app.Delete("/events/:id", s.handleDeleteEvent)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	stats, err := s.store.Stats(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("stats: %v", err))
	}
	out := fiber.Map{
		"ok":      true,
		"events":  stats.Events,
		"sources": stats.Sources,
	}
	if !stats.LastSource.IsZero() {
		out["last_source"] = stats.LastSource
	} else {
		out["last_source"] = nil
	}
	return c.JSON(out)
}

func (s *Server) handleListEvents(c *fiber.Ctx) error {
	ctx := c.UserContext()
	filter, err := filterFromQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	records, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("list events: %v", err))
	}

	out := make([]eventOut, 0, len(records))
	for _, rec := range records {
		out = append(out, s.renderEvent(ctx, rec, c.Query("lang")))
	}
	return c.JSON(out)
}

func (s *Server) handleGetEvent(c *fiber.Ctx) error {
	ctx := c.UserContext()
	rec, err := s.loadEvent(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(s.renderEvent(ctx, *rec, c.Query("lang")))
}

// handleGenerate produces why_now and a draft for the event, stores them, and
// returns the refreshed event. The generator cannot fail outright, so a
// heuristic draft is always stored even without an LLM key.
func (s *Server) handleGenerate(c *fiber.Ctx) error {
	ctx := c.UserContext()
	rec, err := s.loadEvent(ctx, c.Params("id"))
	if err != nil {
		return err
	}

	urls := make([]string, 0, len(rec.Sources))
	for _, src := range rec.Sources {
		urls = append(urls, src.URL)
	}

	whyNow, draft := s.drafts.Generate(ctx, rec.Event.Headline, urls, rec.Event.WhyNow)
	if whyNow == "" {
		whyNow = rec.Event.WhyNow
	}
	if err := s.store.UpdateEventDraft(ctx, rec.Event.ID, whyNow, draft); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("store draft: %v", err))
	}

	refreshed, err := s.loadEvent(ctx, rec.Event.ID)
	if err != nil {
		return err
	}
	return c.JSON(s.renderEvent(ctx, *refreshed, c.Query("lang")))
}

func (s *Server) handleDeleteEvent(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusNotFound, "event not found")
	}
	if err := s.store.DeleteEvent(c.UserContext(), id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "event not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("delete event: %v", err))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) loadEvent(ctx context.Context, id string) (*ports.EventRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "event not found")
	}
	rec, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("get event: %v", err))
	}
	if rec == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "event not found")
	}
	return rec, nil
}

func filterFromQuery(c *fiber.Ctx) (ports.EventFilter, error) {
	filter := ports.EventFilter{
		Query:     c.Query("q"),
		EventType: c.Query("event_type"),
		Offset:    c.QueryInt("offset", 0),
		Limit:     c.QueryInt("limit", 50),
	}

	if raw := c.Query("min_hotness"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid min_hotness %q", raw)
		}
		filter.MinHotness = v
	}
	if raw := c.Query("min_materiality_ai"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid min_materiality_ai %q", raw)
		}
		filter.MinMaterialityAI = v
	}
	if raw := c.Query("confirmed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid confirmed %q", raw)
		}
		filter.Confirmed = &v
	}
	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.SourceTypes = append(filter.SourceTypes, t)
			}
		}
	}
	if side := c.Query("impact_side"); side != "" {
		switch side {
		case domain.ImpactPos, domain.ImpactNeg, domain.ImpactUncertain:
			filter.ImpactSide = side
		default:
			return filter, fmt.Errorf("invalid impact_side %q", side)
		}
	}

	filter.OrderByFirstSeen = c.Query("order") == "first_seen"
	return filter, nil
}

type sourceOut struct {
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	FirstSeen time.Time `json:"first_seen"`
}

type eventOut struct {
	ID            string                `json:"id"`
	Headline      string                `json:"headline"`
	Hotness       float64               `json:"hotness"`
	WhyNow        string                `json:"why_now"`
	Entities      []domain.Entity       `json:"entities"`
	Timeline      []domain.TimelineItem `json:"timeline"`
	Draft         *domain.Draft         `json:"draft"`
	Confirmed     bool                  `json:"confirmed"`
	Sources       []sourceOut           `json:"sources"`
	EventType     string                `json:"event_type,omitempty"`
	MaterialityAI float64               `json:"materiality_ai"`
	ImpactSide    string                `json:"impact_side,omitempty"`
	RiskFlags     []string              `json:"risk_flags"`
	AIEntities    []domain.Entity       `json:"ai_entities"`
}

// renderEvent builds the wire shape and, when a non-English lang is asked
// for, runs the text fields through the translator.
func (s *Server) renderEvent(ctx context.Context, rec ports.EventRecord, lang string) eventOut {
	ev := rec.Event

	out := eventOut{
		ID:            ev.ID,
		Headline:      ev.Headline,
		Hotness:       ev.Hotness,
		WhyNow:        ev.WhyNow,
		Entities:      emptyIfNilEntities(ev.Entities),
		Timeline:      emptyIfNilTimeline(ev.Timeline),
		Draft:         ev.Draft,
		Confirmed:     ev.Confirmed,
		EventType:     ev.EventType,
		MaterialityAI: ev.MaterialityAI,
		ImpactSide:    ev.ImpactSide,
		RiskFlags:     emptyIfNilStrings(ev.RiskFlags),
		AIEntities:    emptyIfNilEntities(ev.AIEntities),
	}
	out.Sources = make([]sourceOut, 0, len(rec.Sources))
	for _, src := range rec.Sources {
		out.Sources = append(out.Sources, sourceOut{URL: src.URL, Type: src.Type, FirstSeen: src.FirstSeen})
	}

	if lang == "" || strings.EqualFold(lang, "en") {
		return out
	}

	out.Headline = s.translator.Translate(ctx, out.Headline, lang)
	if out.WhyNow != "" {
		out.WhyNow = s.translator.Translate(ctx, out.WhyNow, lang)
	}
	if out.Draft != nil {
		draft := *out.Draft
		draft.Title = s.translator.Translate(ctx, draft.Title, lang)
		draft.Lede = s.translator.Translate(ctx, draft.Lede, lang)
		bullets := make([]string, len(draft.Bullets))
		for i, b := range draft.Bullets {
			bullets[i] = s.translator.Translate(ctx, b, lang)
		}
		draft.Bullets = bullets
		if draft.Quote != "" {
			draft.Quote = s.translator.Translate(ctx, draft.Quote, lang)
		}
		out.Draft = &draft
	}
	return out
}

func emptyIfNilEntities(in []domain.Entity) []domain.Entity {
	if in == nil {
		return []domain.Entity{}
	}
	return in
}

func emptyIfNilTimeline(in []domain.TimelineItem) []domain.TimelineItem {
	if in == nil {
		return []domain.TimelineItem{}
	}
	return in
}

func emptyIfNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
