package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/liamcoop/storecheck/internal/logger"
	"github.com/liamcoop/storecheck/purchase"
	"github.com/liamcoop/storecheck/report"
	"github.com/liamcoop/storecheck/rules"
	"github.com/liamcoop/storecheck/unlock"
)

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options wires the server to its collaborators
type Options struct {
	Engine    *rules.Engine
	State     *unlock.State
	Completer *purchase.Completer
	Policy    rules.ReferencePolicy

	// RateLimit and RateBurst bound verify-purchase requests per client IP.
	// A zero RateLimit disables limiting.
	RateLimit float64
	RateBurst int

	// TrustProxy takes the client IP from X-Forwarded-For and X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool

	// AdminToken authorises DELETE /api/v1/unlock. Empty disables the route.
	AdminToken string

	// DB is pinged by the health check when set
	DB Pinger
}

type Server struct {
	engine    *rules.Engine
	state     *unlock.State
	completer *purchase.Completer
	policy    rules.ReferencePolicy
	limiter    *ipRateLimiter
	trustProxy bool
	adminToken string
	db         Pinger
	router     *chi.Mux
}

func NewServer(opts Options) *Server {
	s := &Server{
		engine:    opts.Engine,
		state:     opts.State,
		completer: opts.Completer,
		policy:     opts.Policy,
		trustProxy: opts.TrustProxy,
		adminToken: opts.AdminToken,
		db:         opts.DB,
	}
	if s.policy == "" {
		s.policy = rules.ReferenceRefuse
	}
	if opts.RateLimit > 0 {
		s.limiter = newIPRateLimiter(opts.RateLimit, max(opts.RateBurst, 1))
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Post("/api/v1/check", s.handleCheck)
	r.Get("/api/v1/rules", s.handleListCatalogue)

	r.Get("/api/v1/unlock", s.handleGetUnlock)
	r.With(requireAdmin(s.adminToken)).Delete("/api/v1/unlock", s.handleResetUnlock)
	r.With(s.rateLimited).Post("/api/v1/checkout/events", s.handleCheckoutEvent)

	// Answers every method itself so browsers get JSON for 405 and CORS preflight
	r.Handle("/api/verify-purchase", s.rateLimited(http.HandlerFunc(s.handleVerifyPurchase)))

	// Expression rule management
	r.Route("/api/v1/rules/custom", func(r chi.Router) {
		r.Get("/", s.handleListDefinitions)
		r.Post("/", s.handleCreateDefinition)

		r.Route("/{ruleId}", func(r chi.Router) {
			r.Get("/", s.handleGetDefinition)
			r.Put("/", s.handleUpdateDefinition)
			r.Delete("/", s.handleDeleteDefinition)
		})
	})

	s.router = r
}

// rateLimited applies the per-client limiter when one is configured
func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.middleware(next)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request and feeds the HTTP status counters
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
		case status >= 400:
			logger.WarnHttp4xx(status)
		}
		logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start).String(),
			"requestId", middleware.GetReqID(r.Context()))
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	cat, err := s.engine.Catalogue()
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"rules":    len(cat),
		"unlocked": s.state.Unlocked(),
		"counters": logger.Counters(),
	})
}

// Check handler
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	text, err := rules.PrepareInput(req.Text, req.URL, s.policy)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	start := time.Now()
	rep, err := s.engine.Check(text)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "check failed", err)
		return
	}
	elapsed := time.Since(start)
	logger.CheckCompleted(rep.Counts.Locked)

	respondJSON(w, http.StatusOK, CheckResponse{
		ID:             uuid.New().String(),
		Results:        rep.Results,
		Counts:         rep.Counts,
		Unlocked:       s.engine.Unlocked(),
		CopyText:       report.Text(rep),
		EvaluationTime: elapsed.String(),
	})
}

// Catalogue listing handler
func (s *Server) handleListCatalogue(w http.ResponseWriter, r *http.Request) {
	cat, err := s.engine.Catalogue()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	list := make([]RuleSummary, 0, len(cat))
	for _, rule := range cat {
		source := "custom"
		if rules.IsBuiltinID(rule.ID) {
			source = "builtin"
		}
		list = append(list, RuleSummary{ID: rule.ID, Name: rule.Name, Premium: rule.Premium, Source: source})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"rules": list,
	})
}

// Unlock state handler. The flag is re-read so unlocks made by other
// replicas sharing the store become visible.
func (s *Server) handleGetUnlock(w http.ResponseWriter, r *http.Request) {
	if err := s.state.Reload(r.Context()); err != nil {
		logger.Warn("unlock state reload failed", "error", err)
	}
	respondJSON(w, http.StatusOK, UnlockResponse{Unlocked: s.state.Unlocked()})
}

// Unlock reset handler
func (s *Server) handleResetUnlock(w http.ResponseWriter, r *http.Request) {
	if err := s.state.Reset(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to persist reset", err)
		return
	}
	respondJSON(w, http.StatusOK, UnlockResponse{Unlocked: false})
}

// Checkout event handler
func (s *Server) handleCheckoutEvent(w http.ResponseWriter, r *http.Request) {
	var ev purchase.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	unlocked, err := s.completer.HandleEvent(r.Context(), ev)
	switch {
	case errors.Is(err, purchase.ErrNotConfigured):
		respondError(w, http.StatusServiceUnavailable, "purchase verification is not configured", err)
	case errors.Is(err, purchase.ErrEmailRequired):
		respondError(w, http.StatusBadRequest, "email is required", err)
	case errors.Is(err, purchase.ErrPurchaseNotFound):
		respondError(w, http.StatusPaymentRequired, "purchase not found", err)
	case errors.Is(err, purchase.ErrVerificationUnavailable):
		respondError(w, http.StatusServiceUnavailable, "unable to verify purchase", err)
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to complete checkout", err)
	default:
		respondJSON(w, http.StatusOK, UnlockResponse{Unlocked: unlocked})
	}
}

// Purchase restore handler
func (s *Server) handleVerifyPurchase(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		respondJSON(w, http.StatusMethodNotAllowed, VerifyPurchaseResponse{Error: "Method not allowed"})
		return
	}

	var req VerifyPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		respondJSON(w, http.StatusBadRequest, VerifyPurchaseResponse{Error: "Email is required"})
		return
	}

	v, err := s.completer.Restore(r.Context(), req.Email)
	switch {
	case errors.Is(err, purchase.ErrNotConfigured):
		logger.Error("purchase verification requested but PADDLE_API_KEY is not set")
		respondJSON(w, http.StatusInternalServerError, VerifyPurchaseResponse{Error: "Server configuration error"})
	case errors.Is(err, purchase.ErrEmailRequired):
		respondJSON(w, http.StatusBadRequest, VerifyPurchaseResponse{Error: "Email is required"})
	case errors.Is(err, purchase.ErrPurchaseNotFound):
		msg := "No purchase found for this email"
		if v != nil && v.Message != "" {
			msg = v.Message
		}
		respondJSON(w, http.StatusOK, VerifyPurchaseResponse{Error: msg})
	case errors.Is(err, purchase.ErrVerificationUnavailable):
		respondJSON(w, http.StatusInternalServerError, VerifyPurchaseResponse{Error: "Unable to verify purchase"})
	case err != nil:
		logger.Error("purchase restore failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, VerifyPurchaseResponse{Error: "Verification failed"})
	default:
		respondJSON(w, http.StatusOK, VerifyPurchaseResponse{
			Success:          true,
			Message:          v.Message,
			TransactionCount: v.TransactionCount,
		})
	}
}

// List definitions handler
func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.engine.Definitions()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if defs == nil {
		defs = []*rules.Definition{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"rules": defs,
	})
}

// Create definition handler
func (s *Server) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var req DefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.ID == "" {
		req.ID = "rule-" + uuid.New().String()
	}
	d := req.definition(req.ID)

	if err := s.engine.AddDefinition(d); err != nil {
		respondDefinitionError(w, "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, d)
}

// Get definition handler
func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	d, err := s.engine.Definition(ruleID)
	if err != nil {
		respondDefinitionError(w, "failed to get rule", err)
		return
	}

	respondJSON(w, http.StatusOK, d)
}

// Update definition handler
func (s *Server) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	var req DefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	d := req.definition(ruleID)
	if err := s.engine.UpdateDefinition(d); err != nil {
		respondDefinitionError(w, "failed to update rule", err)
		return
	}

	updated, err := s.engine.Definition(ruleID)
	if err != nil {
		respondDefinitionError(w, "failed to get rule", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// Delete definition handler
func (s *Server) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	if err := s.engine.DeleteDefinition(ruleID); err != nil {
		respondDefinitionError(w, "failed to delete rule", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (req DefinitionRequest) definition(id string) *rules.Definition {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &rules.Definition{
		ID:           id,
		Name:         req.Name,
		Expression:   req.Expression,
		Premium:      req.Premium,
		Active:       active,
		PassMessage:  req.PassMessage,
		FailMessage:  req.FailMessage,
		FailSeverity: rules.Severity(req.FailSeverity),
	}
}

func respondDefinitionError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, rules.ErrDefinitionNotFound):
		respondError(w, http.StatusNotFound, "rule not found", err)
	case errors.Is(err, rules.ErrDefinitionExists):
		respondError(w, http.StatusConflict, "rule already exists", err)
	case errors.Is(err, rules.ErrInvalidDefinition):
		respondError(w, http.StatusBadRequest, message, err)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
		if status >= 500 {
			logger.Error(message, "error", err)
		}
	}
	respondJSON(w, status, response)
}
