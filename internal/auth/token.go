// Package auth issues and verifies bearer tokens and decides whether a
// caller may act on a resource.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jun/voznota/internal/apperr"
	"github.com/jun/voznota/internal/model"
)

// Claims is the token payload.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserLookup resolves a token subject. *user.Service satisfies it.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, bool, error)
}

// TokenService signs and verifies HMAC JWTs.
type TokenService struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	users  UserLookup
	now    func() time.Time
}

// NewTokenService returns a TokenService for the given algorithm
// (HS256, HS384 or HS512).
func NewTokenService(secret, algorithm string, ttl time.Duration, users UserLookup) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", algorithm)
	}
	return &TokenService{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
		users:  users,
		now:    time.Now,
	}, nil
}

// Issue returns a signed token for the subject, valid for the configured TTL.
func (s *TokenService) Issue(subjectID, email string) (string, error) {
	now := s.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry and returns the token's
// identity. Every failure is apperr.ErrInvalidToken.
func (s *TokenService) Verify(token string) (*model.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", apperr.ErrInvalidToken)
	}
	return &model.Identity{SubjectID: claims.Subject, Email: claims.Email}, nil
}

// ResolveCurrentUser verifies token and loads its subject. A subject that no
// longer exists is an invalid token; a deactivated one is
// apperr.ErrInactiveAccount.
func (s *TokenService) ResolveCurrentUser(ctx context.Context, token string) (*model.User, error) {
	id, err := s.Verify(token)
	if err != nil {
		return nil, err
	}
	u, ok, err := s.users.GetByID(ctx, id.SubjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: unknown subject", apperr.ErrInvalidToken)
	}
	if !u.IsActive {
		return nil, apperr.ErrInactiveAccount
	}
	return u, nil
}
