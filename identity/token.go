package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the subset of access-token claims the engine reads.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// InspectAccessToken decodes the registered claims of a JWT access token
// without verifying its signature.
func InspectAccessToken(token string) (TokenClaims, error) {
	if token == "" {
		return TokenClaims{}, ErrTokenMalformed
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	out := TokenClaims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// Normalize returns a copy of s with the validity window and owning user
// filled from the access token when the provider left them empty.
// Undecodable tokens leave the copy unchanged.
func Normalize(s *Session) *Session {
	out := s.Clone()
	if out == nil || out.AccessToken == "" {
		return out
	}
	if !out.ExpiresAt.IsZero() && out.User != nil && out.User.ID != "" {
		return out
	}

	claims, err := InspectAccessToken(out.AccessToken)
	if err != nil {
		return out
	}
	if out.ExpiresAt.IsZero() {
		out.ExpiresAt = claims.ExpiresAt
	}
	if claims.Subject != "" {
		if out.User == nil {
			out.User = &User{ID: claims.Subject}
		} else if out.User.ID == "" {
			out.User.ID = claims.Subject
		}
	}
	return out
}
