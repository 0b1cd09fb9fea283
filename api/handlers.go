package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/festival-radar/backend/internal/browse"
	"github.com/DeafMist/festival-radar/backend/internal/config"
	"github.com/DeafMist/festival-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/festival-radar/backend/internal/metrics"
	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/normalize"
	"github.com/DeafMist/festival-radar/backend/internal/publish"
)

type searcher interface {
	SearchEvents(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	es       searcher
	events   *eventStore
	calendar normalize.Calendar
}

func newServer(log *slog.Logger, cfg *config.API, es searcher, events *eventStore) *server {
	return &server{log: log, cfg: cfg, es: es, events: events, calendar: cfg.Edition.Calendar()}
}

type errorResponse struct {
	Error string `json:"error"`
}

type eventsResponse struct {
	browse.View
	Counts      map[browse.Category]int `json:"counts"`
	RunID       string                  `json:"run_id"`
	GeneratedAt time.Time               `json:"generated_at"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.cfg.RatePerMin, time.Minute))
		r.Get("/events", s.handleEvents)
		r.Get("/events/search", s.handleSearch)
		r.Get("/events/{id}", s.handleEvent)
	})
	return r
}

// observe records request latency by route pattern.
func (s *server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.APIRequestDuration.
			WithLabelValues(route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "events": "ok", "search": "ok"}
	code := http.StatusOK

	if _, err := s.events.Current(); err != nil {
		status["events"] = err.Error()
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	// Search is optional for the site; a down cluster only degrades.
	if err := s.es.Health(ctx); err != nil {
		status["search"] = err.Error()
		status["status"] = "degraded"
	}

	writeJSON(w, code, status)
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	set, ok := s.currentSet(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	state := browse.NewState(browse.Options{
		Calendar:       s.calendar,
		DigitalVillage: s.cfg.Edition.DigitalVillage,
		PageSize:       clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
	})

	if raws := parseCSV(q.Get("day")); len(raws) > 0 {
		days := make([]models.Day, 0, len(raws))
		for _, raw := range raws {
			day, ok := s.calendar.Parse(raw)
			if !ok {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown day " + strconv.Quote(raw)})
				return
			}
			days = append(days, day)
		}
		state.SelectDays(days...)
	}
	if raws := parseCSV(q.Get("type")); len(raws) > 0 {
		cats := make([]browse.Category, 0, len(raws))
		for _, raw := range raws {
			c, ok := browse.ParseCategory(raw)
			if !ok {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown type " + strconv.Quote(raw)})
				return
			}
			cats = append(cats, c)
		}
		state.SelectTypes(cats...)
	}
	state.SetPage(clampInt(q.Get("page"), 1, 10_000))

	all := set.All()
	writeJSON(w, http.StatusOK, eventsResponse{
		View:        state.Snapshot(all),
		Counts:      state.Counts(all),
		RunID:       set.RunID,
		GeneratedAt: set.GeneratedAt,
	})
}

func (s *server) handleEvent(w http.ResponseWriter, r *http.Request) {
	set, ok := s.currentSet(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	for _, ev := range set.All() {
		if ev.ID == id || (ev.Slug != "" && ev.Slug == id) {
			writeJSON(w, http.StatusOK, ev)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "event not found"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query: strings.TrimSpace(q.Get("q")),
		From:  clampInt(q.Get("from"), 0, 10_000),
		Size:  clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:  strings.TrimSpace(q.Get("sort")),
	}
	for _, raw := range parseCSV(q.Get("type")) {
		t := normalize.Type(raw, "")
		if t == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown type " + strconv.Quote(raw)})
			return
		}
		params.Types = append(params.Types, string(t))
	}
	for _, raw := range parseCSV(q.Get("day")) {
		day, ok := s.calendar.Parse(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown day " + strconv.Quote(raw)})
			return
		}
		params.Days = append(params.Days, day.String())
	}

	result, err := s.es.SearchEvents(ctx, params)
	if err != nil {
		s.log.Error("search events", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) currentSet(w http.ResponseWriter) (*models.EventSet, bool) {
	set, err := s.events.Current()
	if errors.Is(err, publish.ErrNotPublished) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return nil, false
	}
	if err != nil {
		s.log.Error("load event set", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return nil, false
	}
	return set, true
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
