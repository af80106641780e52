// Package mockprovider serves a minimal OPTIMADE implementation for local
// development and tests.
package mockprovider

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Options describes what the mock provider serves.
type Options struct {
	// Versions is the "version" column of /versions. Nil disables the endpoint.
	Versions []string
	// APIPrefix is the versioned path, e.g. "/v1". Empty serves at the root.
	APIPrefix string
	// Records are the structure resources served by /structures.
	Records []json.RawMessage
	// AlwaysMore makes every page report more_data_available and cycles Records.
	AlwaysMore bool
	// Links are the resources served by /links.
	Links []json.RawMessage
}

// Server is an http.Handler recording every request it receives.
type Server struct {
	opts   Options
	router *mux.Router

	mu       sync.Mutex
	requests []url.URL
}

// New creates a mock provider.
func New(opts Options) *Server {
	s := &Server{opts: opts, router: mux.NewRouter()}

	s.router.HandleFunc("/versions", s.handleVersions).Methods(http.MethodGet)
	api := s.router
	if opts.APIPrefix != "" {
		api = s.router.PathPrefix(opts.APIPrefix).Subrouter()
	}
	api.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	api.HandleFunc("/structures", s.handleStructures).Methods(http.MethodGet)
	api.HandleFunc("/links", s.handleLinks).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, *r.URL)
	s.mu.Unlock()
	s.router.ServeHTTP(w, r)
}

// Requests returns a copy of every request URL received so far.
func (s *Server) Requests() []url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]url.URL, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the query strings of requests whose path ends with suffix.
func (s *Server) RequestsTo(suffix string) []url.Values {
	var out []url.Values
	for _, u := range s.Requests() {
		if strings.HasSuffix(u.Path, suffix) {
			out = append(out, u.Query())
		}
	}
	return out
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	if s.opts.Versions == nil {
		s.handleNotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/csv; header=present")
	fmt.Fprintln(w, "version")
	for _, v := range s.opts.Versions {
		fmt.Fprintln(w, v)
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"meta": meta(0, false),
		"data": map[string]any{
			"type": "info",
			"id":   "/",
			"attributes": map[string]any{
				"api_version": "1.1.0",
				"available_api_versions": []map[string]string{
					{"url": "http://" + r.Host + s.opts.APIPrefix, "version": "1.1.0"},
				},
				"formats":               []string{"json"},
				"entry_types_by_format": map[string][]string{"json": {"structures"}},
				"available_endpoints":   []string{"info", "links", "structures"},
			},
		},
	})
}

func (s *Server) handleStructures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q, "page_limit", 10)
	offset := intParam(q, "page_offset", 0)
	if n := intParam(q, "page_number", 0); n > 0 {
		offset = (n - 1) * limit
	}

	total := len(s.opts.Records)
	data := make([]json.RawMessage, 0, limit)
	for i := offset; i < offset+limit; i++ {
		switch {
		case s.opts.AlwaysMore && total > 0:
			data = append(data, s.opts.Records[i%total])
		case i < total:
			data = append(data, s.opts.Records[i])
		}
	}

	more := s.opts.AlwaysMore || offset+limit < total
	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": meta(total, more),
	})
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	links := s.opts.Links
	if links == nil {
		links = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": links,
		"meta": meta(len(links), false),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"errors": []map[string]string{{"status": "404", "title": "Not Found", "detail": r.URL.Path}},
		"meta":   meta(0, false),
	})
}

func meta(returned int, more bool) map[string]any {
	return map[string]any{
		"api_version":         "1.1.0",
		"data_returned":       returned,
		"more_data_available": more,
		"time_stamp":          time.Now().UTC().Format(time.RFC3339),
		"provider": map[string]string{
			"name":   "Mock provider",
			"prefix": "mock",
		},
	}
}

func intParam(q url.Values, key string, fallback int) int {
	if v := q.Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
