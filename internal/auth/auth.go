// Package auth implements the JWT login handshake used by the
// operator-console and pilot-query stream endpoints (spec §10.3, an
// ambient addition — the detection-ingest and bird-subsystem endpoints are
// trusted and skip it). Adapted from the teacher's authenticator, driven
// by falcon's TOML config instead of environment variables.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAuthDisabled       = errors.New("auth: authentication is disabled")
)

// Authenticator validates operator/pilot console logins and issues session
// tokens via its JWTManager.
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	jwtManager   *JWTManager
}

// Config names the single operator/pilot account and JWT parameters (spec
// §10.3; a single shared console account is sufficient for this scope).
type Config struct {
	Enabled      bool
	Username     string
	PasswordHash string // bcrypt hash, as stored in server.toml
	Secret       string
	TTLMinutes   int
}

// NewAuthenticator builds an Authenticator from configuration.
func NewAuthenticator(cfg Config) *Authenticator {
	username := cfg.Username
	if username == "" {
		username = "operator"
	}
	return &Authenticator{
		enabled:      cfg.Enabled,
		username:     username,
		passwordHash: []byte(cfg.PasswordHash),
		jwtManager:   NewJWTManager(cfg.Secret, cfg.TTLMinutes),
	}
}

// IsEnabled returns whether authentication is enabled. When disabled, the
// dispatch core skips the login handshake entirely for consoles configured
// without credentials (e.g. local development).
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and returns a session token.
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}
	if username != a.username {
		return "", 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtManager.GenerateToken(username)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a session token presented by a console.
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}

// HashPassword bcrypt-hashes a plaintext password for storage in config.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
