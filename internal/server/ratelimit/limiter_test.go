package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterAllowsWithinBurst(t *testing.T) {
	l := NewLimiter(60, time.Minute, 5)
	defer l.Close()
	for i := range 5 {
		if res := l.Allow("k"); !res.Allowed {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	res := l.Allow("k")
	if res.Allowed {
		t.Error("request allowed past burst")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", res.RetryAfter)
	}
}

func TestLimiterKeysIndependent(t *testing.T) {
	l := NewLimiter(60, time.Minute, 1)
	defer l.Close()
	if !l.Allow("a").Allowed {
		t.Fatal("first request for a denied")
	}
	if !l.Allow("b").Allowed {
		t.Error("first request for b denied; keys not independent")
	}
}

func TestConfigMatch(t *testing.T) {
	c := NewConfig(5, 60, 6000)
	defer c.Close()
	tests := []struct {
		method, path string
		want         *Tier
	}{
		{"POST", "/sign-in", c.Auth},
		{"POST", "/register", c.Auth},
		{"POST", "/ada/plans/rows", c.Write},
		{"PUT", "/ada/plans", c.Write},
		{"DELETE", "/ada/plans/rows/3", c.Write},
		{"GET", "/ada/plans", c.Read},
		{"GET", "/healthz", nil},
	}
	for _, tt := range tests {
		if got := c.Match(tt.method, tt.path); got != tt.want {
			t.Errorf("Match(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestConfigZeroDisablesTier(t *testing.T) {
	c := NewConfig(0, 0, 0)
	defer c.Close()
	if got := c.Match("POST", "/sign-in"); got != nil {
		t.Errorf("Match = %v, want nil for disabled tier", got)
	}
}

func TestResponseWriterHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	res := Result{Allowed: true, Limit: 60, Remaining: 12, ResetAt: time.Unix(1700000000, 0)}
	w := NewResponseWriter(rec, res)
	w.WriteHeader(http.StatusOK)
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "12" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if got := rec.Header().Get("Retry-After"); got != "" {
		t.Errorf("Retry-After set on allowed response: %q", got)
	}
}
