package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/tweet-triage/backend/internal/config"
	"github.com/DeafMist/tweet-triage/backend/internal/elasticsearch"
	"github.com/DeafMist/tweet-triage/backend/internal/logger"
	"github.com/DeafMist/tweet-triage/backend/internal/models"
)

type tweetSearcher interface {
	Health(ctx context.Context) error
	SearchTweets(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

func main() {
	log := logger.New("api")
	if err := config.LoadEnvFile(); err != nil {
		log.Error("load env file", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, 0, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{log: log, cfg: cfg, es: esClient}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr), slog.String("alias", cfg.ElasticsearchIndex))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log *slog.Logger
	cfg *config.API
	es  tweetSearcher
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/tweets", func(r chi.Router) {
		r.Get("/", s.handleSearch)
		r.Get("/antisemitic-armed", s.handleAntisemiticArmed)
		r.Get("/sensitive", s.handleSensitive)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.es.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params, err := s.searchParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.search(w, r, params)
}

// handleAntisemiticArmed lists antisemitic tweets that mention at least one weapon.
func (s *server) handleAntisemiticArmed(w http.ResponseWriter, r *http.Request) {
	params, err := s.searchParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	flagged := true
	params.Antisemitic = &flagged
	if params.MinWeapons < 1 {
		params.MinWeapons = 1
	}
	s.search(w, r, params)
}

// handleSensitive lists tweets that mention two or more weapons.
func (s *server) handleSensitive(w http.ResponseWriter, r *http.Request) {
	params, err := s.searchParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if params.MinWeapons < 2 {
		params.MinWeapons = 2
	}
	s.search(w, r, params)
}

func (s *server) search(w http.ResponseWriter, r *http.Request, params elasticsearch.SearchParams) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	result, err := s.es.SearchTweets(ctx, params)
	if err != nil {
		s.log.Warn("search failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) searchParams(r *http.Request) (elasticsearch.SearchParams, error) {
	q := r.URL.Query()

	params := elasticsearch.SearchParams{
		Query:      strings.TrimSpace(q.Get("q")),
		Weapons:    parseCSV(q.Get("weapons")),
		From:       clampInt(q.Get("from"), 0, 10_000),
		Size:       clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:       strings.TrimSpace(q.Get("sort")),
		MinWeapons: clampInt(q.Get("min_weapons"), 0, 100),
		Start:      parseTime(q.Get("start")),
		End:        parseTime(q.Get("end")),
	}

	if raw := strings.ToLower(strings.TrimSpace(q.Get("sentiment"))); raw != "" {
		switch raw {
		case models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral:
			params.Sentiment = raw
		default:
			return params, errors.New("sentiment must be positive, negative or neutral")
		}
	}

	if raw := strings.TrimSpace(q.Get("antisemitic")); raw != "" {
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			return params, errors.New("antisemitic must be a boolean")
		}
		params.Antisemitic = &flag
	}

	return params, nil
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
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
	if err != nil || value <= 0 {
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
