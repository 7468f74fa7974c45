package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"metals_go/internal/domain"
	"metals_go/internal/infra"
)

// PriceService is the aggregator surface the routes consume.
type PriceService interface {
	GetQuote(ctx context.Context, instrument domain.Instrument, currency string) (*domain.Quote, error)
	GetAllQuotes(ctx context.Context, currency string) (map[domain.Instrument]*domain.Quote, error)
	GetHistorical(ctx context.Context, instrument domain.Instrument, currency string, date time.Time) (*domain.Quote, error)
	SwitchProvider(name string) (previous string, err error)
	ActiveProvider() string
}

// SyncService is the scheduler surface the admin routes consume.
type SyncService interface {
	TriggerNow() string
	NextRunTime() time.Time
	LastRun() (*domain.SyncRun, bool)
}

// Server exposes the core over HTTP. Auth/RBAC live outside this core; these
// routes are mounted behind whatever middleware the deployment adds.
type Server struct {
	prices  PriceService
	sync    SyncService
	wsEntry http.HandlerFunc
	logger  *slog.Logger
}

// NewServer wires the route handlers. wsEntry may be nil when the broadcaster
// is disabled (e.g. in tests).
func NewServer(prices PriceService, sync SyncService, wsEntry http.HandlerFunc) *Server {
	return &Server{
		prices:  prices,
		sync:    sync,
		wsEntry: wsEntry,
		logger:  slog.Default().With("module", "api"),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/metals", func(r chi.Router) {
		r.Get("/live", s.handleLive)
		r.Get("/live-all", s.handleLiveAll)
		r.Get("/historical", s.handleHistorical)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Post("/provider/switch", s.handleProviderSwitch)
		r.Get("/sync/status", s.handleSyncStatus)
		r.Post("/sync/trigger", s.handleSyncTrigger)
	})
	if s.wsEntry != nil {
		r.Get("/ws", s.wsEntry)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]any{
		"status":  "ok",
		"metrics": infra.GlobalMetrics.GetSnapshot(),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	instrument, currency, err := parseQuoteParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q, err := s.prices.GetQuote(r.Context(), instrument, currency)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, q)
}

func (s *Server) handleLiveAll(w http.ResponseWriter, r *http.Request) {
	currency, err := currencyParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	quotes, err := s.prices.GetAllQuotes(r.Context(), currency)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, quotes)
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	instrument, currency, err := parseQuoteParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, err)
		return
	}

	q, err := s.prices.GetHistorical(r.Context(), instrument, currency, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, q)
}

func (s *Server) handleProviderSwitch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Provider == "" {
		writeError(w, &domain.ValidationError{Field: "provider", Msg: "body must be {\"provider\": name}"})
		return
	}

	previous, err := s.prices.SwitchProvider(body.Provider)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"previousProvider": previous,
		"newProvider":      body.Provider,
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"nextRun":        s.sync.NextRunTime(),
		"activeProvider": s.prices.ActiveProvider(),
	}
	if last, ok := s.sync.LastRun(); ok {
		status["lastRun"] = last
	}
	writeSuccess(w, status)
}

func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	runID := s.sync.TriggerNow()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":   true,
		"timestamp": time.Now().Unix(),
		"runId":     runID,
	})
}

// ======================================================================================
// Helpers
// ======================================================================================

func parseQuoteParams(r *http.Request) (domain.Instrument, string, error) {
	instrument, err := domain.ParseInstrument(r.URL.Query().Get("instrument"))
	if err != nil {
		return "", "", err
	}
	currency, err := currencyParam(r)
	if err != nil {
		return "", "", err
	}
	return instrument, currency, nil
}

func currencyParam(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("currency")
	if raw == "" {
		raw = "USD"
	}
	return domain.NormalizeCurrency(raw)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": time.Now().Unix(),
		"data":      data,
	})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func statusFor(err error) int {
	var ve *domain.ValidationError
	var ce *domain.ConfigurationError
	var nfe *domain.NotFoundError
	var fe *domain.FetchError
	switch {
	case errors.As(err, &ve), errors.As(err, &ce):
		return http.StatusBadRequest
	case errors.As(err, &nfe):
		return http.StatusNotFound
	case errors.As(err, &fe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to encode response", slog.Any("error", err))
	}
}
