// Package token issues and verifies the signed confirmation tokens embedded
// in double opt-in emails. Tokens are self-contained HS256 JWTs binding a
// subscriber id to an absolute expiry; nothing is persisted server-side, so a
// valid link stays valid until it expires and re-visiting it is idempotent.
package token

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed means the token string could not be parsed at all.
	ErrMalformed = errors.New("token is malformed")
	// ErrSignatureMismatch means the recomputed MAC did not match.
	ErrSignatureMismatch = errors.New("token signature mismatch")
	// ErrExpired means the token was valid but its expiry has passed.
	ErrExpired = errors.New("token has expired")
)

// Codec signs and verifies confirmation tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec creates a codec. An empty secret is fatal misconfiguration.
func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is not configured")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid token ttl %v", ttl)
	}
	return &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the codec's clock. Intended for tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Issue creates a signed token for the subscriber and returns it together
// with the absolute expiry the signature covers.
func (c *Codec) Issue(subscriberID string) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)
	claims := jwtlib.RegisteredClaims{
		Subject:   subscriberID,
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of a token and returns the
// subscriber id it was issued for. The three failure modes are distinguished
// so callers can message users differently: a garbled link, a forged link,
// and a stale link are not the same problem.
func (c *Codec) Verify(tokenStr string) (string, error) {
	parsed, err := jwtlib.ParseWithClaims(tokenStr, &jwtlib.RegisteredClaims{},
		func(t *jwtlib.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return c.secret, nil
		},
		jwtlib.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwtlib.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwtlib.ErrTokenSignatureInvalid):
			return "", ErrSignatureMismatch
		default:
			return "", ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*jwtlib.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrMalformed
	}
	return claims.Subject, nil
}
