package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrExpiredToken = errors.New("auth: token has expired")
)

// Claims is the JWT payload for an operator/pilot console session.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates console session tokens.
type JWTManager struct {
	secretKey []byte
	expiry    time.Duration
}

// NewJWTManager creates a manager using secret (falcon config has no
// dynamic reload, so the secret is read once at startup from server.toml,
// not from the environment). An empty secret generates a random one,
// usable only for a single process lifetime — fine for local development,
// never for a multi-instance deployment. A non-positive ttlMinutes
// defaults to 24 hours.
func NewJWTManager(secret string, ttlMinutes int) *JWTManager {
	if secret == "" {
		randomBytes := make([]byte, 32)
		rand.Read(randomBytes)
		secret = hex.EncodeToString(randomBytes)
	}

	expiry := 24 * time.Hour
	if ttlMinutes > 0 {
		expiry = time.Duration(ttlMinutes) * time.Minute
	}

	return &JWTManager{secretKey: []byte(secret), expiry: expiry}
}

// GenerateToken creates a new session token for username.
func (m *JWTManager) GenerateToken(username string) (string, time.Time, error) {
	expiresAt := time.Now().Add(m.expiry)

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "falcon",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ValidateToken validates a session token and returns its claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetExpiry returns the configured token lifetime.
func (m *JWTManager) GetExpiry() time.Duration {
	return m.expiry
}
