package auth

import (
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data carried by an access token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Roles  []enums.UserRole
	JTI    string
}

// AccessTokenClaims is the typed JWT presented by clients.
type AccessTokenClaims struct {
	UserID uuid.UUID        `json:"user_id"`
	Roles  []enums.UserRole `json:"roles"`
	jwt.RegisteredClaims
}

// Actor returns the authenticated principal described by the claims.
func (c AccessTokenClaims) Actor() Actor {
	return Actor{UserID: c.UserID, Roles: c.Roles}
}
