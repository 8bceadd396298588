// Package server provides the HTTP API for retrieval and tenant management.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mhara/deskrag/internal/auth"
	"github.com/mhara/deskrag/internal/repository"
	"github.com/mhara/deskrag/internal/retrieval"
	"github.com/mhara/deskrag/internal/service"
)

// HTTPServer serves the retrieval and tenant management API.
type HTTPServer struct {
	server       *http.Server
	router       *chi.Mux
	logger       *slog.Logger
	retrievalSvc *service.RetrievalService
	tenantSvc    *service.TenantService
}

// HTTPServerConfig holds configuration for the HTTP server.
type HTTPServerConfig struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string // CORS allowed origins

	// ReadyCheck reports whether backing services are reachable; nil
	// means always ready.
	ReadyCheck func(context.Context) error
}

// NewHTTPServer creates the HTTP server and mounts all routes.
func NewHTTPServer(cfg HTTPServerConfig, authMW *auth.Middleware, retrievalSvc *service.RetrievalService, tenantSvc *service.TenantService) *HTTPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &HTTPServer{
		logger:       logger,
		retrievalSvc: retrievalSvc,
		tenantSvc:    tenantSvc,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	router.Get("/healthz", healthCheckHandler())
	router.Get("/readyz", readinessCheckHandler(cfg.ReadyCheck))

	router.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireTenant)
			r.Post("/retrieve", s.handleRetrieve)
		})

		r.Route("/tenants", func(r chi.Router) {
			r.Use(authMW.RequireAdmin)
			r.Post("/", s.handleCreateTenant)
			r.Get("/", s.handleListTenants)
			r.Get("/{id}", s.handleGetTenant)
			r.Put("/{id}/config", s.handleUpdateTenantConfig)
			r.Delete("/{id}", s.handleDeleteTenant)
			r.Post("/{id}/key", s.handleRegenerateKey)
			r.Post("/{id}/token", s.handleIssueToken)
		})
	})

	s.router = router
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// retrieveRequest is the JSON body of POST /v1/retrieve. Zero-valued
// tunables defer to tenant configuration, then service defaults.
type retrieveRequest struct {
	Query                string  `json:"query"`
	Platform             string  `json:"platform,omitempty"`
	TopK                 int     `json:"top_k,omitempty"`
	MinResults           int     `json:"min_results,omitempty"`
	RRFK                 int     `json:"rrf_k,omitempty"`
	DecayHalfLifeDays    float64 `json:"decay_half_life_days,omitempty"`
	DecayFloor           float64 `json:"decay_floor,omitempty"`
	ErrorBoostMultiplier float64 `json:"error_boost_multiplier,omitempty"`
	RerankTopN           int     `json:"rerank_top_n,omitempty"`
	TimeoutMS            int     `json:"timeout_ms,omitempty"`
}

type retrieveResult struct {
	DocumentID string                  `json:"document_id"`
	FinalScore float64                 `json:"final_score"`
	Rank       int                     `json:"rank"`
	Sources    []retrieval.Source      `json:"sources"`
	Reranked   bool                    `json:"reranked"`
	DocType    retrieval.DocType       `json:"doc_type,omitempty"`
	CreatedAt  *time.Time              `json:"created_at,omitempty"`
	ErrorCode  string                  `json:"error_code,omitempty"`
	Content    string                  `json:"content,omitempty"`
	Boosts     []retrieval.BoostFactor `json:"boosts,omitempty"`
}

type retrieveResponse struct {
	Results        []retrieveResult `json:"results"`
	Degraded       bool             `json:"degraded"`
	DegradedReason string           `json:"degraded_reason,omitempty"`
}

func (s *HTTPServer) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	tenant, ok := auth.TenantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant context not found")
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := s.retrievalSvc.Retrieve(r.Context(), tenant.ID, tenant.Config, service.RetrieveParams{
		Query:                req.Query,
		Platform:             req.Platform,
		TopK:                 req.TopK,
		MinResults:           req.MinResults,
		RRFK:                 req.RRFK,
		DecayHalfLifeDays:    req.DecayHalfLifeDays,
		DecayFloor:           req.DecayFloor,
		ErrorBoostMultiplier: req.ErrorBoostMultiplier,
		RerankTopN:           req.RerankTopN,
		TimeoutMS:            req.TimeoutMS,
	})
	if err != nil {
		s.writeRetrieveError(w, err)
		return
	}

	results := make([]retrieveResult, len(resp.Results))
	for i, res := range resp.Results {
		out := retrieveResult{
			DocumentID: res.DocumentID,
			FinalScore: res.FinalScore,
			Rank:       res.Rank,
			Sources:    res.Sources,
			Reranked:   res.Reranked,
			DocType:    res.Metadata.DocType,
			ErrorCode:  res.Metadata.ErrorCode,
			Content:    res.Content,
			Boosts:     res.Boosts,
		}
		if !res.Metadata.CreatedAt.IsZero() {
			created := res.Metadata.CreatedAt
			out.CreatedAt = &created
		}
		results[i] = out
	}

	writeJSON(w, http.StatusOK, retrieveResponse{
		Results:        results,
		Degraded:       resp.Degraded,
		DegradedReason: resp.DegradedReason,
	})
}

// writeRetrieveError maps pipeline errors to HTTP statuses. Degraded
// modes never reach here; only hard failures do.
func (s *HTTPServer) writeRetrieveError(w http.ResponseWriter, err error) {
	var insufficient *retrieval.InsufficientResultsError
	var isolation *retrieval.TenantIsolationError
	var inconsistency *retrieval.DataInconsistencyError

	switch {
	case errors.Is(err, retrieval.ErrAllSourcesUnavailable):
		writeError(w, http.StatusServiceUnavailable, "search backends unavailable")
	case errors.As(err, &insufficient):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &isolation), errors.As(err, &inconsistency):
		// Details are logged at the pipeline; do not echo internals.
		writeError(w, http.StatusInternalServerError, "retrieval failed")
	default:
		writeError(w, http.StatusInternalServerError, "retrieval failed")
	}
}

type createTenantRequest struct {
	Name string `json:"name"`
}

type tenantResponse struct {
	ID        uuid.UUID                  `json:"id"`
	Name      string                     `json:"name"`
	APIKey    string                     `json:"api_key,omitempty"`
	Config    repository.RetrievalConfig `json:"config"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

func toTenantResponse(t *repository.Tenant, includeKey bool) tenantResponse {
	resp := tenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Config:    t.Config,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if includeKey {
		resp.APIKey = t.APIKey
	}
	return resp
}

func (s *HTTPServer) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	tenant, err := s.tenantSvc.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}

	// The API key is returned once, at creation.
	writeJSON(w, http.StatusCreated, toTenantResponse(tenant, true))
}

func (s *HTTPServer) handleListTenants(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	tenants, total, err := s.tenantSvc.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}

	items := make([]tenantResponse, len(tenants))
	for i, t := range tenants {
		items[i] = toTenantResponse(t, false)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenants": items,
		"total":   total,
	})
}

func (s *HTTPServer) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	tenant, err := s.tenantSvc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}

	writeJSON(w, http.StatusOK, toTenantResponse(tenant, false))
}

func (s *HTTPServer) handleUpdateTenantConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	var config repository.RetrievalConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenant, err := s.tenantSvc.UpdateConfig(r.Context(), id, config)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update tenant config")
		return
	}

	writeJSON(w, http.StatusOK, toTenantResponse(tenant, false))
}

func (s *HTTPServer) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	if err := s.tenantSvc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete tenant")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleRegenerateKey(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	apiKey, err := s.tenantSvc.RegenerateAPIKey(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to regenerate API key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"api_key": apiKey})
}

func (s *HTTPServer) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	token, err := s.tenantSvc.IssueToken(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func tenantIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLoggingMiddleware logs HTTP requests.
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", duration,
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 {
				// If no origins specified, allow all in development
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-API-Key")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// healthCheckHandler returns a handler for the /healthz endpoint.
func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// readinessCheckHandler returns a handler for the /readyz endpoint.
func readinessCheckHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
