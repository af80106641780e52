package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/OptimadeHarvester/internal/app"
	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/pkg/config"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueryAPI is what the HTTP handlers need from the query service.
type QueryAPI interface {
	Providers() []domain.Provider
	Count(ctx context.Context, id, filter string) (int, error)
	Structures(ctx context.Context, id, filter string, maxResults, batch int) (app.StructurePage, error)
	CountAll(ctx context.Context, filter string) app.AggregateCount
}

func NewHTTPServer(cfg *config.Config, api QueryAPI) *http.Server {
	return &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: NewRouter(api),
	}
}

// NewRouter serves health, metrics and the read-only query API.
func NewRouter(api QueryAPI) *mux.Router {
	h := &handler{api: api}

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "OK")
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	r.HandleFunc("/providers", h.listProviders).Methods(http.MethodGet)
	r.HandleFunc("/providers/{id}/count", h.count).Methods(http.MethodGet)
	r.HandleFunc("/providers/{id}/structures", h.structures).Methods(http.MethodGet)
	r.HandleFunc("/count", h.countAll).Methods(http.MethodGet)
	return r
}

type handler struct {
	api QueryAPI
}

type countResponse struct {
	Provider string `json:"provider"`
	Filter   string `json:"filter"`
	Count    int    `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) listProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.api.Providers())
}

func (h *handler) count(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	filter := r.URL.Query().Get("filter")

	n, err := h.api.Count(r.Context(), id, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Provider: id, Filter: filter, Count: n})
}

func (h *handler) structures(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()

	maxResults, err := intQuery(q.Get("max"))
	if err != nil {
		writeError(w, err)
		return
	}
	batch, err := intQuery(q.Get("batch"))
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.api.Structures(r.Context(), id, q.Get("filter"), maxResults, batch)
	if err != nil && len(page.Structures) == 0 {
		writeError(w, err)
		return
	}
	if err != nil {
		// Partial page: return what was read and flag the failure.
		w.Header().Set("X-Stream-Error", err.Error())
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) countAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.api.CountAll(r.Context(), r.URL.Query().Get("filter")))
}

func intQuery(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", domain.ErrUsage, v)
	}
	return i, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUsage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTransport):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Warn("Query failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
