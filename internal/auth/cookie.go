package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const cookieIssuer = "meetbook"

// ErrInvalidToken indicates the cookie value failed validation.
var ErrInvalidToken = errors.New("auth: invalid token")

// cookieClaims carry the session id as subject. They hold no user data:
// the session table stays the source of truth.
type cookieClaims struct {
	jwt.RegisteredClaims
}

// CookieCodec signs session handles before they leave the server so that
// clients cannot forge or tamper with them. The secret is supplied by the
// caller at construction time.
type CookieCodec struct {
	secret []byte
	now    func() time.Time
}

// NewCookieCodec returns a codec using HS256 with the given secret.
func NewCookieCodec(secret []byte) (*CookieCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 bytes")
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return &CookieCodec{secret: cp, now: time.Now}, nil
}

// Encode wraps the session id into a signed token that expires with the session.
func (c *CookieCodec) Encode(s Session) (string, error) {
	if strings.TrimSpace(s.ID) == "" {
		return "", errors.New("auth: session id is required")
	}
	claims := cookieClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   cookieIssuer,
			Subject:  s.ID,
			IssuedAt: jwt.NewNumericDate(c.now().UTC()),
			ID:       uuid.NewString(),
		},
	}
	if !s.ExpiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(s.ExpiresAt)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies the token and returns the session id it carries.
func (c *CookieCodec) Decode(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &cookieClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	},
		jwt.WithIssuer(cookieIssuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*cookieClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
