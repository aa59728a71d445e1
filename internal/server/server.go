// Package server implements the HTTP server and routing logic.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tabulahq/tabula/internal/blog"
	"github.com/tabulahq/tabula/internal/config"
	"github.com/tabulahq/tabula/internal/identity"
	"github.com/tabulahq/tabula/internal/server/ratelimit"
	"github.com/tabulahq/tabula/internal/server/reqctx"
	"github.com/tabulahq/tabula/internal/storage"
)

// Services bundles everything the handlers need.
type Services struct {
	Meta  storage.Metadata
	Data  storage.Userdata
	Users *identity.UserService
	Blog  *blog.Store
}

// Config is the server-level configuration.
type Config struct {
	BaseURL string
	Version string
	Server  *config.Config
}

// Server holds the handler state.
type Server struct {
	svc      Services
	cfg      Config
	sessions *sessions
	limits   *ratelimit.Config
	logger   *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(svc Services, cfg Config, logger *slog.Logger) http.Handler {
	s := &Server{
		svc: svc,
		cfg: cfg,
		sessions: &sessions{
			secret:   cfg.Server.SecretBytes(),
			duration: time.Duration(cfg.Server.SessionDurationDays) * 24 * time.Hour,
		},
		limits: ratelimit.NewConfig(
			cfg.Server.RateLimits.AuthRatePerMin,
			cfg.Server.RateLimits.WriteRatePerMin,
			cfg.Server.RateLimits.ReadRatePerMin,
		),
		logger: logger,
	}

	mux := &http.ServeMux{}

	mux.Handle("GET /{$}", s.wrap(s.handleIndex))
	mux.Handle("GET /healthz", s.wrap(s.handleHealth))

	// Blog. The literal /blog segment outranks the /{username} wildcard.
	mux.Handle("GET /blog", s.wrap(s.handleBlogIndex))
	mux.Handle("GET /blog/{slug}", s.wrap(s.handleBlogPost))

	// Account flows.
	mux.Handle("GET /register", s.wrap(s.handleRegisterForm))
	mux.Handle("POST /register", s.wrap(s.handleRegister))
	mux.Handle("GET /sign-in", s.wrap(s.handleSignInForm))
	mux.Handle("POST /sign-in", s.wrap(s.handleSignIn))
	mux.Handle("POST /sign-out", s.wrap(s.handleSignOut))

	// Users and tables.
	mux.Handle("GET /{username}", s.wrap(s.handleUserPage))
	mux.Handle("GET /{username}/{tablename}", s.wrap(s.handleTableView))
	mux.Handle("PUT /{username}/{tablename}", s.wrap(s.handleTablePut))
	mux.Handle("DELETE /{username}/{tablename}", s.wrap(s.handleTableDelete))

	// Rows.
	mux.Handle("POST /{username}/{tablename}/rows", s.wrap(s.handleRowCreate))
	mux.Handle("GET /{username}/{tablename}/rows/{rowid}", s.wrap(s.handleRowView))
	mux.Handle("PUT /{username}/{tablename}/rows/{rowid}", s.wrap(s.handleRowPut))
	mux.Handle("POST /{username}/{tablename}/rows/{rowid}", s.wrap(s.handleRowFormUpdate))
	mux.Handle("DELETE /{username}/{tablename}/rows/{rowid}", s.wrap(s.handleRowDelete))

	return mux
}

// Close releases the rate limiter goroutines.
func (s *Server) Close() {
	s.limits.Close()
}

// resolveUser authenticates the request, via HTTP Basic (username + API key)
// or the session cookie. Anonymous requests pass through with a nil user;
// requests with bad credentials do not.
func (s *Server) resolveUser(r *http.Request) (*storage.User, error) {
	if username, key, ok := r.BasicAuth(); ok {
		return s.svc.Users.AuthenticateAPIKey(r.Context(), username, key)
	}
	if username, err := s.sessions.validate(r); err == nil {
		user, err := s.svc.Users.Get(r.Context(), username)
		if err != nil {
			// Stale cookie for a deleted account; treat as anonymous.
			return nil, nil
		}
		return user, nil
	}
	return nil, nil
}

// clientKey returns the rate limit identifier for a tier scope.
func clientKey(r *http.Request, user *storage.User, scope ratelimit.Scope) string {
	if scope == ratelimit.ScopeUser && user != nil {
		return user.Username
	}
	return reqctx.GetClientIP(r)
}
