package auth

import "testing"

func testConfig(t *testing.T) Config {
	t.Helper()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return Config{
		Enabled:      true,
		Username:     "operator",
		PasswordHash: hash,
		Secret:       "test-secret",
		TTLMinutes:   60,
	}
}

func TestAuthenticateSucceedsWithCorrectCredentials(t *testing.T) {
	a := NewAuthenticator(testConfig(t))

	token, expiresAt, err := a.Authenticate("operator", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if expiresAt <= 0 {
		t.Fatalf("expected positive expiry, got %d", expiresAt)
	}
}

func TestAuthenticateFailsWithWrongPassword(t *testing.T) {
	a := NewAuthenticator(testConfig(t))

	if _, _, err := a.Authenticate("operator", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateFailsWithWrongUsername(t *testing.T) {
	a := NewAuthenticator(testConfig(t))

	if _, _, err := a.Authenticate("someone-else", "s3cret"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateFailsWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false
	a := NewAuthenticator(cfg)

	if _, _, err := a.Authenticate("operator", "s3cret"); err != ErrAuthDisabled {
		t.Fatalf("expected ErrAuthDisabled, got %v", err)
	}
}

func TestValidateTokenRoundTrip(t *testing.T) {
	a := NewAuthenticator(testConfig(t))

	token, _, err := a.Authenticate("operator", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Username != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	a := NewAuthenticator(testConfig(t))

	if _, err := a.ValidateToken("not-a-token"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	cfg := testConfig(t)
	a := NewAuthenticator(cfg)
	token, _, err := a.Authenticate("operator", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	other := testConfig(t)
	other.Secret = "different-secret"
	b := NewAuthenticator(other)

	if _, err := b.ValidateToken(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken across differing secrets, got %v", err)
	}
}
