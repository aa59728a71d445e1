// Standardizes HTTP handlers: request metadata, authentication, rate
// limiting, body limits, panic recovery and error rendering.

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/tabulahq/tabula/internal/identity"
	"github.com/tabulahq/tabula/internal/server/dto"
	"github.com/tabulahq/tabula/internal/server/ratelimit"
	"github.com/tabulahq/tabula/internal/server/reqctx"
)

// handlerFunc is an HTTP handler that reports failures as errors. Errors
// implementing dto.ErrorWithStatus choose their status code; anything else is
// a 500.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) wrap(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := reqctx.WithClientIP(r.Context(), reqctx.GetClientIP(r))
		r = r.WithContext(ctx)

		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(r.Context(), "Handler panic",
					"panic", rec, "path", r.URL.Path, "stack", string(debug.Stack()))
				s.writeError(w, r, dto.Internal("internal server error"))
			}
		}()

		user, err := s.resolveUser(r)
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.writeError(w, r, dto.Unauthorized().Wrap(err))
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if user != nil {
			r = r.WithContext(reqctx.WithUser(r.Context(), user))
		}

		if tier := s.limits.Match(r.Method, r.URL.Path); tier != nil {
			key := ratelimit.BuildKey(tier.Scope, clientKey(r, user, tier.Scope), tier.Name)
			result := tier.Limiter.Allow(key)
			w = ratelimit.NewResponseWriter(w, result)
			if !result.Allowed {
				s.writeError(w, r, dto.RateLimited())
				return
			}
		}

		if limit := s.cfg.Server.MaxRequestBodyBytes; limit > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		if err := fn(w, r); err != nil {
			s.writeError(w, r, err)
		}
	})
}

// writeError renders an error in the representation the client asked for:
// an HTML error page for browsers, a structured JSON object otherwise.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := http.StatusInternalServerError
	code := dto.ErrorCodeInternal
	details := map[string]any{}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		err = dto.PayloadTooLarge(maxBytesErr.Limit)
	}

	var apiErr dto.ErrorWithStatus
	if errors.As(err, &apiErr) {
		statusCode = apiErr.StatusCode()
		code = apiErr.Code()
		if d := apiErr.Details(); d != nil {
			details = d
		}
	}

	if statusCode >= 500 {
		slog.ErrorContext(r.Context(), "Handler error", "err", err, "path", r.URL.Path, "status", statusCode)
	} else {
		slog.DebugContext(r.Context(), "Request failed", "err", err, "path", r.URL.Path, "status", statusCode)
	}

	if statusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="tabula"`)
	}

	if wantsHTMLError(r) {
		s.renderErrorPage(w, r, statusCode, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp := dto.ErrorResponse{
		Error:   dto.ErrorDetails{Code: code, Message: err.Error()},
		Details: details,
	}
	if len(resp.Details) == 0 {
		resp.Details = nil
	}
	if err := json.NewEncoder(w).Encode(&resp); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode error response", "err", err)
	}
}

// wantsHTMLError reports whether the client is a browser. Only an explicit
// text/html in Accept opts into HTML errors; API clients get JSON.
func wantsHTMLError(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode response", "err", err)
	}
	return nil
}
