// Browser session cookies, signed as JWTs.

package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookieName = "tabula_session"

var errInvalidSession = errors.New("invalid session")

// sessions issues and validates the sign-in cookie. The subject claim is the
// username.
type sessions struct {
	secret   []byte
	duration time.Duration
}

// issue returns a cookie carrying a signed token for username.
func (s *sessions) issue(username string, now time.Time) (*http.Cookie, error) {
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(s.duration).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(s.duration),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// clear returns an expired cookie that removes the session.
func (s *sessions) clear() *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// validate returns the username for a request's session cookie, or
// errInvalidSession.
func (s *sessions) validate(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", errInvalidSession
	}
	token, err := jwt.Parse(cookie.Value, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errInvalidSession
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errInvalidSession
	}
	username, ok := claims["sub"].(string)
	if !ok || username == "" {
		return "", errInvalidSession
	}
	return username, nil
}
