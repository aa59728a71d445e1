// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"net/http"
	"time"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses the client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeUser uses the authenticated username as the rate limit key.
	ScopeUser
)

// Tier defines a rate limit tier with its limiter and scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Config holds rate limiters for the different tiers. A nil tier pointer
// means that tier is unlimited.
type Config struct {
	Auth  *Tier // sign-in and register attempts, per IP
	Write *Tier // PUT/POST/DELETE, per user
	Read  *Tier // GETs, per IP
}

// NewConfig builds tiers from per-minute limits. A limit of 0 disables that
// tier.
func NewConfig(authPerMin, writePerMin, readPerMin int) *Config {
	c := &Config{}
	if authPerMin > 0 {
		c.Auth = &Tier{Name: "auth", Limiter: NewLimiter(authPerMin, time.Minute, authPerMin), Scope: ScopeIP}
	}
	if writePerMin > 0 {
		c.Write = &Tier{Name: "write", Limiter: NewLimiter(writePerMin, time.Minute, max(writePerMin/6, 1)), Scope: ScopeUser}
	}
	if readPerMin > 0 {
		c.Read = &Tier{Name: "read", Limiter: NewLimiter(readPerMin, time.Minute, max(readPerMin/6, 1)), Scope: ScopeIP}
	}
	return c
}

// Match returns the tier for a request, nil when the request is not limited.
func (c *Config) Match(method, path string) *Tier {
	if path == "/healthz" {
		return nil
	}
	if method == http.MethodPost && (path == "/sign-in" || path == "/register") {
		return c.Auth
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return c.Write
	case http.MethodGet:
		return c.Read
	}
	return nil
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	for _, t := range []*Tier{c.Auth, c.Write, c.Read} {
		if t != nil {
			t.Limiter.Close()
		}
	}
}
