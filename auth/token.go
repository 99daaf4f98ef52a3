// Package auth implements the credential verifier for the gateway: stateless
// session tokens (HS256 JWTs) signed and verified against a single shared
// secret. Verification is pure - no store access, no side effects.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/c360/socialgate/errors"
)

// Claims is the decoded identity claim carried by a session token. It is
// ephemeral: produced here, consumed by the context builder, never persisted.
type Claims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ID returns the subject identifier of the authenticated user.
func (c *Claims) ID() string {
	return c.Subject
}

// IsAdmin reports whether the claim carries the admin role. Role checks
// beyond this live in the resolver layer.
func (c *Claims) IsAdmin() bool {
	return c.Role == "ADMIN"
}

// Sign issues a session token for the given identity, valid for ttl.
func Sign(id, username, email, role, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.WrapAuthentication(errors.ErrMissingSecret, "auth", "Sign")
	}

	now := time.Now()
	claims := &Claims{
		Username: username,
		Email:    email,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.WrapTransient(err, "auth", "Sign", "token signing")
	}
	return signed, nil
}

// Verify validates a session token against the shared secret and returns the
// decoded claim. Every verification failure (malformed, expired, wrong
// signature, wrong algorithm) collapses to the same authentication error with
// the fixed user-facing message; internals stay in the wrapped chain for logs.
//
// An absent token is the caller's concern: the context builder treats "no
// token" as anonymous and never invokes Verify for it. An empty secret fails
// closed - every token is treated as invalid.
func Verify(token, secret string) (*Claims, error) {
	if secret == "" {
		return nil, errors.WrapAuthentication(errors.ErrMissingSecret, "auth", "Verify")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.ErrSessionExpired
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.WrapAuthentication(err, "auth", "Verify")
	}
	if !parsed.Valid {
		return nil, errors.WrapAuthentication(errors.ErrSessionExpired, "auth", "Verify")
	}

	return claims, nil
}
