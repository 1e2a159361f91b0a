// Package user holds the credential store: account creation, password
// verification and lookup by id.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jun/voznota/internal/apperr"
	"github.com/jun/voznota/internal/logging"
	"github.com/jun/voznota/internal/model"
)

// Repository is the persistence the service needs. *store.UserTable satisfies it.
type Repository interface {
	Create(ctx context.Context, u model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// Service manages user accounts.
type Service struct {
	repo       Repository
	bcryptCost int
	now        func() time.Time
	log        zerolog.Logger
}

// NewService returns a Service hashing passwords at the given bcrypt cost.
func NewService(repo Repository, bcryptCost int, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		bcryptCost: bcryptCost,
		now:        time.Now,
		log:        logging.Component(log, "user"),
	}
}

// CreateUser registers a new active account. It returns
// apperr.ErrDuplicateIdentity if the email is already registered. The
// returned user carries no password hash.
func (s *Service) CreateUser(ctx context.Context, email, password string) (*model.User, error) {
	_, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperr.ErrDuplicateIdentity
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := model.User{
		ID:             uuid.NewString(),
		Email:          email,
		HashedPassword: hash,
		CreatedAt:      s.now().UTC(),
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.log.Info().Str(logging.FieldUserID, u.ID).Msg("user registered")
	pub := u.Public()
	return &pub, nil
}

// Authenticate checks email and password. The boolean is false for an
// unknown email, a wrong password or an inactive account; err is reserved
// for store failures.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, bool, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup email: %w", err)
	}

	if !VerifyPassword(password, u.HashedPassword) {
		return nil, false, nil
	}
	if !u.IsActive {
		s.log.Warn().Str(logging.FieldUserID, u.ID).Msg("login attempt on inactive account")
		return nil, false, nil
	}

	pub := u.Public()
	return &pub, true, nil
}

// GetByID returns the user without its hash. The boolean is false when no
// such user exists.
func (s *Service) GetByID(ctx context.Context, id string) (*model.User, bool, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup user: %w", err)
	}
	pub := u.Public()
	return &pub, true, nil
}
