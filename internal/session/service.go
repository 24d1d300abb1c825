package session

import (
	"context"
	"errors"
	"time"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/ids"
	"atlaskg.org/internal/token"
)

const (
	defaultAccessTTL  = 72 * time.Hour
	defaultRefreshTTL = 168 * time.Hour
)

// ErrInvalidToken indicates a refresh token that failed verification.
var ErrInvalidToken = errors.New("session: invalid token")

// Service issues token pairs and authenticates bearer tokens against the
// identity store. It holds no per-session state.
type Service struct {
	accounts   *account.Service
	codec      *token.Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Option configures Service.
type Option func(*Service)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// NewService constructs the session service.
func NewService(accounts *account.Service, codec *token.Codec, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, errors.New("account service is required")
	}
	if codec == nil {
		return nil, errors.New("token codec is required")
	}
	s := &Service{
		accounts:   accounts,
		codec:      codec,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TokenPair is the credential set returned by sign-in and refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SignIn verifies credentials and issues a fresh token pair.
func (s *Service) SignIn(ctx context.Context, username, password string) (TokenPair, *account.User, error) {
	user, err := s.accounts.Authenticate(ctx, username, password)
	if err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := s.mintPair(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh exchanges a valid refresh token for a new pair. The subject is
// re-resolved so revoked or locked accounts stop refreshing immediately.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *account.User, error) {
	claims, err := s.codec.Parse(refreshToken)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if claims.Kind != token.KindRefresh || s.codec.IsExpired(claims) {
		return TokenPair{}, nil, ErrInvalidToken
	}
	user, err := s.accounts.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidToken
		}
		return TokenPair{}, nil, err
	}
	if user.Locked {
		return TokenPair{}, nil, account.ErrAccountLocked
	}
	pair, err := s.mintPair(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

func (s *Service) mintPair(user *account.User) (TokenPair, error) {
	access, accessExp, err := s.codec.Issue(user.Username, token.KindAccess, s.accessTTL, nil)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.codec.Issue(user.Username, token.KindRefresh, s.refreshTTL, map[string]any{
		"session": ids.New(),
	})
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Authenticate classifies a raw bearer token. It never returns an error:
// every failure mode maps to an Outcome so the caller can defer the
// decision to the authorization layer.
//
// An unknown subject reads as anonymous rather than rejected, so probing
// with fabricated-but-signed subjects behaves exactly like sending no
// token at all.
func (s *Service) Authenticate(ctx context.Context, raw string) Outcome {
	claims, err := s.codec.Parse(raw)
	if err != nil {
		return Rejected(ReasonInvalid)
	}
	if claims.Kind != token.KindAccess {
		return Rejected(ReasonInvalid)
	}
	if s.codec.IsExpired(claims) {
		return Rejected(ReasonExpired)
	}
	user, err := s.accounts.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return Anonymous()
		}
		// A store outage is not a verdict on the token.
		return Failed()
	}
	if user.Username != claims.Subject {
		return Rejected(ReasonInvalid)
	}
	if user.Locked {
		return Rejected(ReasonLocked)
	}
	return Authenticated(user)
}
