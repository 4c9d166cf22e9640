package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"time"
)

// BuildInfo identifies the running binary in logs and health output.
type BuildInfo struct {
	Version string
	Commit  string
}

// Policy controls the admin-role overrides on per-IP file ownership.
//
// The observed behavior of the service is asymmetric: admins may download
// any file but may not delete files they do not own. Both switches exist so
// the asymmetry is an explicit product decision rather than an accident.
type Policy struct {
	AdminCanDownloadAny bool
	AdminCanDeleteAny   bool
}

// DefaultPolicy matches the observed behavior: download override on,
// delete override off.
func DefaultPolicy() Policy {
	return Policy{AdminCanDownloadAny: true}
}

// Config carries everything the handlers need. It is constructed once at
// process start and passed by value; handlers never read ambient state.
type Config struct {
	Addr  string // e.g. ":8080"
	Build BuildInfo

	Auth   AuthConfig
	Policy Policy

	Users UserStore
	Files FileRegistry
	Blobs BlobStore

	// DB is only used by the health endpoints; all queries go through the
	// stores above.
	DB *sql.DB

	// MaxUploadBytes caps the upload request body. Zero means no limit.
	MaxUploadBytes int64

	Log *Logger
}

type Server struct {
	httpServer *http.Server
}

// New builds the route table and middleware chain around cfg.
func New(cfg Config) *Server {
	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cfg.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{httpServer: s}
}

// handler returns the fully wired HTTP handler. Split out from New so tests
// can drive the real routing without opening a socket.
func (cfg Config) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", cfg.healthHandler)
	mux.HandleFunc("GET /ready", cfg.readyHandler)

	mux.HandleFunc("POST /api/auth/login", cfg.loginHandler)

	protect := func(h http.HandlerFunc) http.Handler {
		return cfg.Auth.requireAuth(h)
	}
	mux.Handle("GET /api/files/{$}", protect(cfg.listOwnHandler))
	mux.Handle("GET /api/files/by-ip", protect(cfg.listByIPHandler))
	mux.Handle("GET /api/files/download/{filename}", protect(cfg.downloadHandler))
	mux.Handle("POST /api/files/upload", protect(cfg.uploadHandler))
	mux.Handle("DELETE /api/files/{filename}", protect(cfg.deleteHandler))
	mux.Handle("GET /api/files/export/csv", protect(cfg.exportOwnCSVHandler))
	mux.Handle("GET /api/files/export/xlsx", protect(cfg.exportOwnXLSXHandler))
	mux.Handle("GET /api/files/by-ip/export/csv", protect(cfg.exportByIPCSVHandler))
	mux.Handle("GET /api/files/by-ip/export/xlsx", protect(cfg.exportByIPXLSXHandler))

	// requestID -> logging -> security headers -> mux
	var handler http.Handler = mux
	handler = securityHeaders(handler)
	handler = cfg.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

// Handler exposes the wired handler so integration tests can serve it from
// an httptest server.
func (cfg Config) Handler() http.Handler {
	return cfg.handler()
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// securityHeaders sets the baseline response headers on every route.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

type msgResponse struct {
	Msg string `json:"msg"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a handler failure to an HTTP status plus a short message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, msgResponse{Msg: msg})
}
