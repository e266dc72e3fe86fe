package identitysvc

import (
	"time"

	"github.com/dgrijalva/jwt-go"
)

// UserFromIDToken reads the account fields carried in a provider ID token.
// The signature is not verified; the token was received directly from the
// provider over TLS and is only used to fill in missing profile fields.
func UserFromIDToken(token string) (User, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return User{}, ErrTokenMalformed
	}

	var u User
	u.IDToken = token
	if v, ok := claims["user_id"].(string); ok {
		u.UID = v
	} else if v, ok := claims["sub"].(string); ok {
		u.UID = v
	}
	if v, ok := claims["email"].(string); ok {
		u.Email = v
	}
	if v, ok := claims["name"].(string); ok {
		u.DisplayName = v
	}
	if v, ok := claims["exp"].(float64); ok {
		u.ExpiresAt = time.Unix(int64(v), 0).UTC()
	}
	return u, nil
}

// Expired reports whether the ID token held by u is past its expiry at now.
// A user without a known expiry never expires.
func (u User) Expired(now time.Time) bool {
	return !u.ExpiresAt.IsZero() && !now.Before(u.ExpiresAt)
}

// Fill returns u with its empty fields taken from fallback.
func (u User) Fill(fallback User) User {
	if u.UID == "" {
		u.UID = fallback.UID
	}
	if u.Email == "" {
		u.Email = fallback.Email
	}
	if u.DisplayName == "" {
		u.DisplayName = fallback.DisplayName
	}
	if u.IDToken == "" {
		u.IDToken = fallback.IDToken
	}
	if u.RefreshToken == "" {
		u.RefreshToken = fallback.RefreshToken
	}
	if u.ExpiresAt.IsZero() {
		u.ExpiresAt = fallback.ExpiresAt
	}
	return u
}
