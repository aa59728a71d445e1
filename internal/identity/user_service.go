// Package identity handles account registration and authentication on top of
// the metadata store.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tabulahq/tabula/internal/storage"
	"github.com/tabulahq/tabula/internal/table"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for a wrong username, password or
	// API key. Callers must not distinguish which part was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	errPasswordTooShort = errors.New("password must be at least 8 characters")
)

// UserService handles account management and authentication.
type UserService struct {
	meta storage.Metadata
}

// NewUserService creates a new user service.
func NewUserService(meta storage.Metadata) *UserService {
	return &UserService{meta: meta}
}

// generateAPIKey returns a fresh hex API key.
func generateAPIKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}

// Register creates a new account. The API key is generated here and shown to
// the user afterwards; it doubles as the Basic auth password for the API.
func (s *UserService) Register(ctx context.Context, username, password string) (*storage.User, error) {
	if err := table.CheckUsername(username); err != nil {
		return nil, err
	}
	if len(password) < 8 {
		return nil, errPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	user := &storage.User{
		UUID:         uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		APIKey:       apiKey,
		Registered:   time.Now().UTC(),
	}
	if err := s.meta.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Get retrieves an account by username.
func (s *UserService) Get(ctx context.Context, username string) (*storage.User, error) {
	return s.meta.UserByName(ctx, username)
}

// Authenticate checks a username and password.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*storage.User, error) {
	user, err := s.meta.UserByName(ctx, username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// AuthenticateAPIKey checks a username and API key, as sent via HTTP Basic.
func (s *UserService) AuthenticateAPIKey(ctx context.Context, username, key string) (*storage.User, error) {
	user, err := s.meta.UserByName(ctx, username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(user.APIKey), []byte(key)) != 1 {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
