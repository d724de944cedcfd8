package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/elonfeng/medsearch/internal/store"
	"github.com/elonfeng/medsearch/pkg/ads"
	"github.com/elonfeng/medsearch/pkg/analytics"
	"github.com/elonfeng/medsearch/pkg/keywords"
	"github.com/elonfeng/medsearch/pkg/search"
)

type contextKey string

const userIDKey contextKey = "userID"

// Server provides the HTTP API.
type Server struct {
	store        store.Store
	pipeline     *search.Pipeline
	extractor    *keywords.Extractor
	matcher      *ads.Matcher
	aggregator   *analytics.Aggregator
	historyLimit int
	port         int
	logger       *slog.Logger
}

// New creates a new HTTP server.
func New(st store.Store, pipeline *search.Pipeline, extractor *keywords.Extractor,
	matcher *ads.Matcher, aggregator *analytics.Aggregator,
	historyLimit, port int, logger *slog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	if historyLimit <= 0 {
		historyLimit = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:        st,
		pipeline:     pipeline,
		extractor:    extractor,
		matcher:      matcher,
		aggregator:   aggregator,
		historyLimit: historyLimit,
		port:         port,
		logger:       logger,
	}
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/search", s.handleSearch)
			r.Get("/history", s.handleHistory)
		})
		r.Post("/ads/match", s.handleAdsMatch)
		r.Post("/ads/click", s.handleAdsClick)
		r.Get("/analytics", s.handleAnalytics)
	})

	return r
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("medsearch server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

// requireUser rejects requests without an authenticated identity. Session
// validation happens upstream; this trusts the forwarded user header.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := s.pipeline.Run(r.Context(), userIDFrom(r.Context()), req.Query)
	if errors.Is(err, search.ErrEmptyQuery) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	if err != nil {
		s.logger.Error("search pipeline failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	searches, err := s.store.ListSearches(r.Context(), userIDFrom(r.Context()), s.historyLimit)
	if err != nil {
		s.logger.Error("history listing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"searches": searches})
}

// matchedAd is an ad annotated with the impression recorded for it, so the
// client can attribute a click later.
type matchedAd struct {
	store.Ad
	ImpressionID string `json:"impressionId"`
}

func (s *Server) handleAdsMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		SearchID string `json:"searchId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Query == "" || req.SearchID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query and searchId are required"})
		return
	}

	kws := s.extractor.Extract(r.Context(), req.Query)

	matched, err := s.matcher.Match(r.Context(), kws)
	if err != nil {
		s.logger.Error("ad matching failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to match ads"})
		return
	}

	adIDs := make([]string, len(matched))
	for i, ad := range matched {
		adIDs[i] = ad.ID
	}
	impressions, err := s.store.CreateImpressions(r.Context(), req.SearchID, adIDs)
	if err != nil {
		s.logger.Error("impression recording failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to match ads"})
		return
	}

	out := make([]matchedAd, len(matched))
	for i, ad := range matched {
		out[i] = matchedAd{Ad: ad, ImpressionID: impressions[i].ID}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ads": out})
}

func (s *Server) handleAdsClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdID         string `json:"adId"`
		ImpressionID string `json:"impressionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.AdID == "" || req.ImpressionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "adId and impressionId are required"})
		return
	}

	err := s.store.RecordClick(r.Context(), req.ImpressionID, req.AdID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "impression not found"})
		return
	}
	if err != nil {
		s.logger.Error("click recording failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to record click"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	advertiserID := r.URL.Query().Get("advertiserId")
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "7d"
	}

	report, err := s.aggregator.Aggregate(r.Context(), advertiserID, timeframe)
	if err != nil {
		s.logger.Error("analytics aggregation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch analytics"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"metrics": report})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
