// Package verifier implements the notary service's HTTP API: session
// creation, MPC-TLS notarization, and proof verification, each backed by
// the range-preserving parser and selective-disclosure layers.
package verifier

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tlsnotary/notaryd/internal/config"
	"github.com/tlsnotary/notaryd/internal/store"
	"github.com/tlsnotary/notaryd/internal/tlsengine"
	"github.com/tlsnotary/notaryd/internal/ws"
)

// Server is the notary's REST API server.
type Server struct {
	cfg         *config.Config
	store       store.Store
	hub         *ws.Hub
	prover      tlsengine.Prover
	verifier    tlsengine.ProofVerifier
	logger      *slog.Logger
	mux         *http.ServeMux
	startTime   time.Time
	rateLimiter *RateLimiter
	sem         chan struct{} // bounds concurrent in-flight notarization sessions
}

// NewServer creates a new notary API server. prover and proofVerifier may
// be tlsengine's not-implemented stubs until a real MPC-TLS engine is
// wired in — a prover failure makes notarize respond 501, and a proof
// verifier failure makes verify report verified=false and fail the session.
func NewServer(cfg *config.Config, dataStore store.Store, hub *ws.Hub, prover tlsengine.Prover, proofVerifier tlsengine.ProofVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	maxConcurrent := cfg.Notarization.MaxConcurrentSessions
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	s := &Server{
		cfg:         cfg,
		store:       dataStore,
		hub:         hub,
		prover:      prover,
		verifier:    proofVerifier,
		logger:      logger,
		mux:         http.NewServeMux(),
		startTime:   time.Now(),
		rateLimiter: NewRateLimiter(20, 100),
		sem:         make(chan struct{}, maxConcurrent),
	}

	s.mux.HandleFunc("POST /session", s.authMiddleware(s.createSession))
	s.mux.HandleFunc("GET /session/{id}", s.authMiddleware(s.getSession))
	s.mux.HandleFunc("POST /session/{id}/notarize", s.authMiddleware(s.notarize))
	s.mux.HandleFunc("POST /session/{id}/verify", s.authMiddleware(s.verify))
	s.mux.HandleFunc("GET /health", s.healthCheck)
	if hub != nil {
		s.mux.HandleFunc("GET /ws", hub.Handler(cfg.Auth.Token))
	}

	return s
}

// Handler returns the HTTP handler chain: CORS -> rate limit -> routes.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.rateLimiter.Middleware(s.mux))
}

// authMiddleware wraps a handler with bearer token authentication, using
// a constant-time comparison to avoid leaking token length/prefix via
// timing. Rejects tokens passed as URL query params, which proxies and
// access logs routinely capture in plaintext.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "" {
			s.logger.Warn("rejected token in URL", "path", r.URL.Path, "remote", r.RemoteAddr)
			http.Error(w, "Token in URL is not allowed. Use Authorization header instead.", http.StatusBadRequest)
			return
		}

		auth := r.Header.Get("Authorization")
		expected := "Bearer " + s.cfg.Auth.Token
		if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			s.logger.Debug("auth failed", "provided_len", len(auth))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// corsMiddleware adds CORS headers for local development clients.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1") {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	s.writeJSON(w, HealthResponse{
		Status:           "ok",
		Uptime:           time.Since(s.startTime).String(),
		ActiveSessions:   len(s.sem),
		ConnectedClients: clients,
	})
}
