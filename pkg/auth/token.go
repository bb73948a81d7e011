package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// clockSkew is how far exp/iat may drift between the identity service and us.
const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

func checkKey(cfg config.JWTConfig) error {
	if cfg.Secret == "" {
		return errors.New("jwt secret is required")
	}
	return nil
}

// MintAccessToken signs an HS256 access token. The identity service issues
// real tokens; this is for tooling and tests that share the secret.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkKey(cfg); err != nil {
		return "", err
	}
	switch {
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.AccessTTL() <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	}
	if err := checkRoles(payload.Roles); err != nil {
		return "", err
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Roles:  payload.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessTTL())),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then checks that
// the token names a user and only known roles.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if err := checkKey(cfg); err != nil {
		return nil, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)

	claims := &AccessTokenClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("token missing user_id")
	}
	if err := checkRoles(claims.Roles); err != nil {
		return nil, err
	}
	return claims, nil
}

func checkRoles(roles []enums.UserRole) error {
	if len(roles) == 0 {
		return errors.New("at least one role is required")
	}
	for _, r := range roles {
		if !r.IsValid() {
			return fmt.Errorf("invalid role %q", r)
		}
	}
	return nil
}
