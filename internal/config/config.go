// Package config manages server configuration stored in config.yml.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RateLimits is the rate limiting configuration, in requests per minute.
// 0 means unlimited.
type RateLimits struct {
	// AuthRatePerMin limits authentication attempts (sign-in, register),
	// per client IP.
	AuthRatePerMin int `yaml:"auth_rate_per_min"`

	// WriteRatePerMin limits write operations (PUT/POST/DELETE), per user.
	WriteRatePerMin int `yaml:"write_rate_per_min"`

	// ReadRatePerMin limits read operations, per client IP.
	ReadRatePerMin int `yaml:"read_rate_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.AuthRatePerMin < 0 {
		return errors.New("auth_rate_per_min must be non-negative")
	}
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if r.ReadRatePerMin < 0 {
		return errors.New("read_rate_per_min must be non-negative")
	}
	return nil
}

// DefaultRateLimits returns the default rate limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		AuthRatePerMin:  5,
		WriteRatePerMin: 60,
		ReadRatePerMin:  6000,
	}
}

// Config stores all server-wide configuration.
// Loaded from config.yml, created with defaults if missing.
type Config struct {
	// JWTSecret signs session cookies, hex encoded.
	// Auto-generated if empty on first load.
	JWTSecret string `yaml:"jwt_secret"`

	// MaxRequestBodyBytes limits the size of any single HTTP request body,
	// CSV uploads included.
	MaxRequestBodyBytes int64 `yaml:"max_request_body_bytes"`

	// SessionDurationDays is how long a sign-in cookie stays valid.
	SessionDurationDays int `yaml:"session_duration_days"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `yaml:"rate_limits"`
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	secret, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return fmt.Errorf("jwt_secret must be hex: %w", err)
	}
	if len(secret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return errors.New("max_request_body_bytes must be positive")
	}
	if c.SessionDurationDays <= 0 {
		return errors.New("session_duration_days must be positive")
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	return nil
}

// SecretBytes returns the decoded JWT secret. Validate must have passed.
func (c *Config) SecretBytes() []byte {
	b, _ := hex.DecodeString(c.JWTSecret)
	return b
}

func defaults() Config {
	return Config{
		MaxRequestBodyBytes: 50 * 1024 * 1024, // 50 MiB, CSV uploads can be big
		SessionDurationDays: 30,
		RateLimits:          DefaultRateLimits(),
	}
}

// Load loads configuration from dataDir/config.yml.
// Creates the file with defaults if it doesn't exist.
// Auto-generates JWTSecret if empty.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.yml")

	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config.yml: %w", err)
		}
		// File doesn't exist, will create with defaults.
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config.yml: %w", err)
		}
	}

	modified := false
	if cfg.JWTSecret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(secret)
		modified = true
	}

	if modified || errors.Is(err, os.ErrNotExist) {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config.yml: %w", err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/config.yml.
func (c *Config) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "config.yml"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config.yml: %w", err)
	}
	return nil
}
