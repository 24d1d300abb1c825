// Package token signs and parses the bearer credentials issued by the API.
// A codec is a pure function of its secret: it keeps no state beyond the
// injected key and clock, so a single instance is safe for unbounded
// concurrent use.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed indicates the raw token is not a structurally valid JWT.
	ErrMalformed = errors.New("token: malformed")
	// ErrInvalidSignature indicates the payload does not match its signature.
	ErrInvalidSignature = errors.New("token: invalid signature")
)

// Token kinds. Access and refresh tokens share the encoding and differ only
// in lifetime and claim set.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims is the verified payload of a parsed token. Extra carries the
// arbitrary claims attached to refresh tokens.
type Claims struct {
	Kind  string         `json:"token_type"`
	Extra map[string]any `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a symmetric HS256 key.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source, used by tests.
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a codec around the given signing secret. The secret is
// injected here and nowhere else; there is no process-global key.
func NewCodec(secret, issuer string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: signing secret is required")
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for subject with expires_at = now + ttl. A zero or
// negative ttl produces an already-expired token; expiry is a property the
// caller checks at use time, not at issuance.
func (c *Codec) Issue(subject, kind string, ttl time.Duration, extra map[string]any) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", time.Time{}, errors.New("token: unknown token kind")
	}
	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Kind:  kind,
		Extra: extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature and structural shape of raw and returns its
// claims. Expiry is deliberately not enforced here so that callers can
// distinguish an expired session from a forged one; use IsExpired on the
// result. No claim is exposed before the signature verifies.
func (c *Codec) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformed
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformed
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMalformed
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrMalformed
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, ErrMalformed
	}
	return claims, nil
}

// IsExpired compares the expiry claim against the wall clock. There is no
// grace period; a token expiring at instant T is invalid at T.
func (c *Codec) IsExpired(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}
