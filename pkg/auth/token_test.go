package auth

import (
	"testing"
	"time"

	"github.com/angelmondragon/ramp-settlement/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "ramp", TTL: 30 * time.Minute}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now().UTC(), userID)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Subject != userID.String() {
		t.Fatalf("expected subject %s, got %s", userID, claims.Subject)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testConfig()
	userID := uuid.New()

	expired, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), userID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	valid, err := MintAccessToken(cfg, time.Now(), userID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := map[string]struct {
		cfg   config.JWTConfig
		token string
	}{
		"expired":      {cfg: cfg, token: expired},
		"wrong secret": {cfg: config.JWTConfig{Secret: "other", Issuer: cfg.Issuer}, token: valid},
		"wrong issuer": {cfg: config.JWTConfig{Secret: cfg.Secret, Issuer: "someone-else"}, token: valid},
		"missing user": {cfg: cfg, token: noUser},
		"garbage":      {cfg: cfg, token: "not-a-jwt"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseAccessToken(tc.cfg, tc.token); err == nil {
				t.Fatal("expected parse to fail")
			}
		})
	}
}

func TestMintAccessTokenValidatesInput(t *testing.T) {
	if _, err := MintAccessToken(config.JWTConfig{Issuer: "ramp", TTL: time.Minute}, time.Now(), uuid.New()); err == nil {
		t.Fatal("expected missing secret to fail")
	}
	if _, err := MintAccessToken(testConfig(), time.Now(), uuid.Nil); err == nil {
		t.Fatal("expected nil user to fail")
	}
}
