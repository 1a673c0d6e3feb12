package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpguard/gateway/internal/gatewayerr"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestSymmetricJWTProvider_ValidToken(t *testing.T) {
	t.Parallel()

	p, err := NewSymmetricJWTProvider(SymmetricJWTConfig{Secret: "s3cr3t", Issuer: "gw", Audience: "mcp"})
	if err != nil {
		t.Fatalf("NewSymmetricJWTProvider() error: %v", err)
	}

	token := signHS256(t, "s3cr3t", jwt.MapClaims{
		"sub": "user-1",
		"iss": "gw",
		"aud": "mcp",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	id, gwErr := p.Authenticate(context.Background(), token)
	if gwErr != nil {
		t.Fatalf("Authenticate() error: %v", gwErr)
	}
	if id.ID != "user-1" || id.Provider != "jwt" {
		t.Errorf("id = %+v", id)
	}
}

func TestSymmetricJWTProvider_ExpiredToken(t *testing.T) {
	t.Parallel()

	p, _ := NewSymmetricJWTProvider(SymmetricJWTConfig{Secret: "s3cr3t"})
	token := signHS256(t, "s3cr3t", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, gwErr := p.Authenticate(context.Background(), token)
	if gwErr == nil || gwErr.Kind != gatewayerr.TokenExpired {
		t.Fatalf("err = %v, want TokenExpired", gwErr)
	}
}

func TestSymmetricJWTProvider_WrongSecret(t *testing.T) {
	t.Parallel()

	p, _ := NewSymmetricJWTProvider(SymmetricJWTConfig{Secret: "right-secret"})
	token := signHS256(t, "wrong-secret", jwt.MapClaims{"sub": "user-1"})

	_, gwErr := p.Authenticate(context.Background(), token)
	if gwErr == nil || gwErr.Kind != gatewayerr.InvalidJWT {
		t.Fatalf("err = %v, want InvalidJwt", gwErr)
	}
}

func TestSymmetricJWTProvider_WrongIssuer(t *testing.T) {
	t.Parallel()

	p, _ := NewSymmetricJWTProvider(SymmetricJWTConfig{Secret: "s3cr3t", Issuer: "expected-issuer"})
	token := signHS256(t, "s3cr3t", jwt.MapClaims{"sub": "user-1", "iss": "other-issuer"})

	_, gwErr := p.Authenticate(context.Background(), token)
	if gwErr == nil || gwErr.Kind != gatewayerr.InvalidIssuer {
		t.Fatalf("err = %v, want InvalidIssuer", gwErr)
	}
}

func TestSymmetricJWTProvider_MissingSubject(t *testing.T) {
	t.Parallel()

	p, _ := NewSymmetricJWTProvider(SymmetricJWTConfig{Secret: "s3cr3t"})
	token := signHS256(t, "s3cr3t", jwt.MapClaims{"name": "no-sub-here"})

	_, gwErr := p.Authenticate(context.Background(), token)
	if gwErr == nil || gwErr.Kind != gatewayerr.InvalidJWT {
		t.Fatalf("err = %v, want InvalidJwt for missing subject", gwErr)
	}
}
