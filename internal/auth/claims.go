package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims carry the campaign operator behind a token. The user id travels in
// the registered "sub" claim.
//
// There is no user store behind the admin API, so refresh tokens carry the
// role too: a refreshed pair keeps the role it was issued with.
type Claims struct {
	jwt.RegisteredClaims

	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// Identity is what the admin handlers know about the caller.
type Identity struct {
	UserID string
	Role   string
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.Subject, Role: c.Role}
}
