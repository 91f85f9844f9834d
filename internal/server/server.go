// Package server exposes the storefront HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"pianolearn/internal/admintoken"
	"pianolearn/internal/app"
	"pianolearn/internal/ratelimit"
	"pianolearn/internal/util"
	"pianolearn/pkg/storage"
)

var (
	errInvalidForm  = errors.New("invalid form data")
	errNotPDFUpload = errors.New("only PDF files are accepted")
)

// Limiters groups the per-endpoint rate limiters. Nil entries disable
// limiting for that endpoint.
type Limiters struct {
	Contact    *ratelimit.FixedWindowLimiter
	Newsletter *ratelimit.FixedWindowLimiter
	Login      *ratelimit.FixedWindowLimiter
	Purchase   *ratelimit.FixedWindowLimiter
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App        *app.App
	Tokens     *admintoken.Manager
	Static     *storage.DiskStore
	CORSOrigin string
	Limits     Limiters
}

// Server exposes HTTP endpoints for the storefront and admin panel.
type Server struct {
	app        *app.App
	tokens     *admintoken.Manager
	static     *storage.DiskStore
	corsOrigin string
	limits     Limiters
	mux        *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token manager required")
	}
	s := &Server{
		app:        cfg.App,
		tokens:     cfg.Tokens,
		static:     cfg.Static,
		corsOrigin: cfg.CORSOrigin,
		limits:     cfg.Limits,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the shared middleware.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.corsOrigin, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// storefront
	s.mux.HandleFunc("/api/products", s.handleProducts)
	s.mux.HandleFunc("/api/products/", s.handleProductByID)
	s.mux.Handle("/api/purchase/create-intent", s.withLimit(s.limits.Purchase, s.handleCreateIntent))
	s.mux.Handle("/api/purchase/confirm", s.withLimit(s.limits.Purchase, s.handleConfirm))
	s.mux.HandleFunc("/api/purchase/download/", s.handleDownload)
	s.mux.HandleFunc("/api/purchase/history/", s.handleHistory)
	s.mux.Handle("/api/purchase/send-payment-email", s.withLimit(s.limits.Purchase, s.handleSendPaymentEmail))
	s.mux.Handle("/api/contact", s.withLimit(s.limits.Contact, s.handleContact))
	s.mux.Handle("/api/newsletter/subscribe", s.withLimit(s.limits.Newsletter, s.handleSubscribe))
	s.mux.Handle("/api/newsletter/unsubscribe", s.withLimit(s.limits.Newsletter, s.handleUnsubscribe))
	s.mux.Handle("/api/newsletter/stats", s.adminOnly(s.handleNewsletterStats))

	// admin panel
	s.mux.Handle("/api/admin/login", s.withLimit(s.limits.Login, s.handleLogin))
	s.mux.Handle("/api/admin/dashboard", s.adminOnly(s.handleDashboard))
	s.mux.Handle("/api/admin/products", s.adminOnly(s.handleAdminProducts))
	s.mux.Handle("/api/admin/products/", s.adminOnly(s.handleAdminProductByID))
	s.mux.Handle("/api/admin/messages", s.adminOnly(s.handleAdminMessages))
	s.mux.Handle("/api/admin/messages/", s.adminOnly(s.handleAdminMessageByID))
	s.mux.Handle("/api/admin/purchases", s.adminOnly(s.handleAdminPurchases))
	s.mux.Handle("/api/admin/subscribers", s.adminOnly(s.handleAdminSubscribers))

	// free preview files
	if s.static != nil {
		s.mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.static.BasePath()))))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type adminHandler func(http.ResponseWriter, *http.Request, admintoken.Principal)

func (s *Server) adminOnly(next adminHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := admintoken.BearerToken(r)
		if !ok {
			s.audit(r, "admin.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		principal, err := s.tokens.Verify(token)
		if err != nil {
			s.audit(r, "admin.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if principal.Role != "admin" {
			s.audit(r, "admin.authorize", "fail", "subject", principal.Subject, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, principal)
	})
}

// audit emits a structured security event log.
func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func (s *Server) withLimit(limiter *ratelimit.FixedWindowLimiter, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil && !limiter.Allow(util.ClientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	})
}

// writeAppError maps core errors onto the HTTP taxonomy. Anything
// unrecognized becomes a logged 500 with a generic message.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrNotPDF), errors.Is(err, app.ErrAlreadySubscribed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrProductNotFound),
		errors.Is(err, app.ErrPurchaseNotFound),
		errors.Is(err, app.ErrMessageNotFound),
		errors.Is(err, app.ErrSubscriberNotFound),
		errors.Is(err, app.ErrDownloadNotFound),
		errors.Is(err, app.ErrInvalidProof):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrDownloadExpired):
		writeError(w, http.StatusGone, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess emits the envelope every JSON endpoint shares. Extra fields
// are merged alongside success and message.
func writeSuccess(w http.ResponseWriter, status int, message string, fields map[string]any) {
	payload := map[string]any{"success": true}
	if message != "" {
		payload["message"] = message
	}
	for k, v := range fields {
		payload[k] = v
	}
	writeJSON(w, status, payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success":   false,
		"message":   msg,
		"requestId": strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
