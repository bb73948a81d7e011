package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "cribnosh", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: userID,
		Roles:  []enums.UserRole{enums.RoleCustomer, enums.RoleChef},
		JTI:    "session-1",
	})
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
	if len(claims.Roles) != 2 || claims.Roles[1] != enums.RoleChef {
		t.Fatalf("roles not preserved: %v", claims.Roles)
	}
	if claims.ID != "session-1" || claims.Issuer != cfg.Issuer {
		t.Fatalf("registered claims mismatch: %+v", claims.RegisteredClaims)
	}
	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != 30*time.Minute {
		t.Fatalf("unexpected ttl %s", got)
	}
	if actor := claims.Actor(); actor.UserID != userID || !actor.Has(enums.RoleChef) {
		t.Fatalf("actor mismatch %+v", actor)
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	cfg := testJWTConfig()
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New()}); err == nil {
		t.Fatal("expected error without roles")
	}
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Roles: []enums.UserRole{"root"}}); err == nil {
		t.Fatal("expected error for unknown role")
	}
	noSecret := cfg
	noSecret.Secret = ""
	if _, err := MintAccessToken(noSecret, time.Now(), AccessTokenPayload{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleAdmin}}); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testJWTConfig()
	payload := AccessTokenPayload{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleCustomer}}

	expired, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), payload)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	valid, _ := MintAccessToken(cfg, time.Now(), payload)
	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, valid); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
	wrongSecret := cfg
	wrongSecret.Secret = "nope"
	if _, err := ParseAccessToken(wrongSecret, valid); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
	if _, err := ParseAccessToken(cfg, strings.Repeat("x", 20)); err == nil {
		t.Fatal("expected garbage token to fail")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodHS512, AccessTokenClaims{
		UserID: uuid.New(),
		Roles:  []enums.UserRole{enums.RoleAdmin},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, _ := none.SignedString([]byte(cfg.Secret))
	if _, err := ParseAccessToken(cfg, signed); err == nil {
		t.Fatal("expected unexpected signing method to fail")
	}
}

func TestActorRoles(t *testing.T) {
	actor := Actor{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleCustomer, enums.RoleStaff}}
	if !actor.IsOperator() {
		t.Fatal("staff should be an operator")
	}
	if actor.PrimaryRole() != enums.RoleStaff {
		t.Fatalf("unexpected primary role %s", actor.PrimaryRole())
	}
	role, ok := actor.RoleAmong([]enums.UserRole{enums.RoleCustomer, enums.RoleChef})
	if !ok || role != enums.RoleCustomer {
		t.Fatalf("expected customer among allowed, got %s ok=%v", role, ok)
	}
	if _, ok := actor.RoleAmong([]enums.UserRole{enums.RoleChef}); ok {
		t.Fatal("actor is not a chef")
	}
	if (Actor{}).PrimaryRole() != enums.RoleCustomer {
		t.Fatal("role-less actor defaults to customer")
	}
}
