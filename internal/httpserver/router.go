// Package httpserver exposes the dispatcher over HTTP: GET /health,
// GET /docs, POST /command/{name}, and an unauthenticated GET /metrics
// for Prometheus scraping. Every authenticated route funnels through
// the same dispatch.Dispatcher used by any in-process caller, per
// spec.md §4.6.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/dispatch"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Server wires a dispatch.Dispatcher into an http.Handler.
type Server struct {
	Dispatcher  *dispatch.Dispatcher
	Version     string
	TimeoutSecs int
}

// commandReq is the POST /command/{name} body; api_key is optional when
// the caller instead presents X-API-Key.
type commandReq struct {
	APIKey  string          `json:"api_key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	correlationID := GetCorrelationID(r.Context())
	status := 400
	msg := err.Error()
	if e, ok := apierr.As(err); ok {
		status = e.Kind.HTTPStatus()
		msg = e.Msg
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg, CorrelationID: correlationID})
}

func apiKeyFromRequest(r *http.Request, body commandReq) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	return body.APIKey
}

// Routes builds the full router: unauthenticated health/docs/metrics plus
// the single authenticated command endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.TimeoutSecs > 0 {
		r.Use(middleware.Timeout(time.Duration(s.TimeoutSecs) * time.Second))
	}

	corsPolicy := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	r.Use(corsPolicy.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok", "version": s.Version})
	})

	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		type cmdDoc struct {
			Name     string   `json:"name"`
			Required []string `json:"required,omitempty"`
		}
		catalog := s.Dispatcher.Catalog()
		out := make([]cmdDoc, 0, len(catalog))
		for _, c := range catalog {
			out = append(out, cmdDoc{Name: c.Name, Required: c.Required})
		}
		writeJSON(w, 200, map[string]any{"commands": out})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/command/{name}", s.handleCommand)

	return r
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body commandReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, apierr.Wrap(apierr.BadInput, "invalid request body", err))
			return
		}
	}

	apiKey := apiKeyFromRequest(r, body)

	result, err := s.Dispatcher.Dispatch(r.Context(), name, apiKey, body.Payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, r, apierr.New(apierr.Timeout, "request timed out"))
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, result)
}
