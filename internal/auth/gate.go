package auth

import (
	"context"
	"strings"

	"github.com/jun/voznota/internal/apperr"
	"github.com/jun/voznota/internal/model"
)

// Outcome tags a Decision.
type Outcome int

const (
	Authorized Outcome = iota
	Forbidden
	Unauthenticated
)

func (o Outcome) String() string {
	switch o {
	case Authorized:
		return "authorized"
	case Forbidden:
		return "forbidden"
	default:
		return "unauthenticated"
	}
}

// Decision is the result of an ownership check. User is set for Authorized
// and Forbidden; Err is set for Unauthenticated.
type Decision struct {
	Outcome Outcome
	User    *model.User
	Err     error
}

// AsError returns nil when authorized, apperr.ErrForbidden when the caller is
// not the owner, and the authentication error otherwise.
func (d Decision) AsError() error {
	switch d.Outcome {
	case Authorized:
		return nil
	case Forbidden:
		return apperr.ErrForbidden
	default:
		return d.Err
	}
}

// Gate authenticates bearer headers and checks resource ownership.
type Gate struct {
	tokens *TokenService
}

func NewGate(tokens *TokenService) *Gate {
	return &Gate{tokens: tokens}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticate resolves the caller from an Authorization header.
func (g *Gate) Authenticate(ctx context.Context, header string) (*model.User, error) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, apperr.ErrMissingCredentials
	}
	return g.tokens.ResolveCurrentUser(ctx, token)
}

// OwnerLookup loads a resource and returns its owner id. It runs only after
// the caller has been authenticated.
type OwnerLookup func(ctx context.Context) (string, error)

// Authorize authenticates the caller, then loads the resource through
// ownerOf and checks ownership. Authentication failures come back as an
// Unauthenticated decision; an error from ownerOf (not found, store down)
// is returned as is.
func (g *Gate) Authorize(ctx context.Context, header string, ownerOf OwnerLookup) (Decision, error) {
	u, err := g.Authenticate(ctx, header)
	if err != nil {
		return Decision{Outcome: Unauthenticated, Err: err}, nil
	}
	ownerID, err := ownerOf(ctx)
	if err != nil {
		return Decision{}, err
	}
	return Owns(u, ownerID), nil
}

// Owns checks an already authenticated caller against ownerID. Ownership
// is an exact match; a resource with no owner belongs to nobody.
func Owns(u *model.User, ownerID string) Decision {
	if ownerID == "" || u.ID != ownerID {
		return Decision{Outcome: Forbidden, User: u}
	}
	return Decision{Outcome: Authorized, User: u}
}
