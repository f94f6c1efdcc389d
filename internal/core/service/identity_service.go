package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/milsabores/identity-service/internal/core/domain"
	"github.com/milsabores/identity-service/internal/core/ports"
)

// IdentityService implements registration, login, profile updates and the
// simplified password recovery flow.
type IdentityService struct {
	users    ports.UserDirectory
	hasher   ports.PasswordHasher
	tokens   ports.TokenService
	recovery ports.RecoveryQueue
	log      zerolog.Logger
	now      func() time.Time

	// decoy is checked against on unknown-email logins so both failure
	// paths cost one hash comparison.
	decoyOnce sync.Once
	decoy     string
}

// NewIdentityService wires the service. recovery may be nil, in which case
// recovery requests are only logged.
func NewIdentityService(
	users ports.UserDirectory,
	hasher ports.PasswordHasher,
	tokens ports.TokenService,
	recovery ports.RecoveryQueue,
	log zerolog.Logger,
) *IdentityService {
	return &IdentityService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		recovery: recovery,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a customer account and returns a token for it. The email
// check runs before anything is written; a same-id registration replaces
// the stored record.
func (s *IdentityService) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	exists, err := s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if exists {
		return nil, domain.ErrDuplicateEmail
	}

	birthDate, err := domain.ParseDate(in.BirthDate)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:                 in.ID,
		DisplayName:        in.DisplayName,
		Email:              in.Email,
		PasswordHash:       hash,
		RoleID:             domain.RoleCustomer,
		ExternalIdentityID: in.ExternalIdentityID,
		BirthDate:          birthDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	saved, err := s.users.Save(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info().Str("user_id", saved.ID).Msg("user registered")
	return s.authResult(saved)
}

// Login verifies the credentials. Unknown email and wrong password both
// yield domain.ErrInvalidCredentials.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*ports.AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.hasher.Check(password, s.decoyHash())
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if !s.hasher.Check(password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	return s.authResult(user)
}

func (s *IdentityService) Profile(ctx context.Context, id string) (*domain.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *IdentityService) FindByExternalIdentity(ctx context.Context, externalID string) (*domain.User, error) {
	return s.users.FindByExternalIdentityID(ctx, externalID)
}

// UpdateName renames the user and always returns a freshly issued token.
func (s *IdentityService) UpdateName(ctx context.Context, id, newName string) (*ports.AuthResult, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user.DisplayName = newName
	user.UpdatedAt = s.now()

	saved, err := s.users.Save(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("update name: %w", err)
	}
	return s.authResult(saved)
}

// UpdateImage replaces the stored profile image.
func (s *IdentityService) UpdateImage(ctx context.Context, id string, image []byte) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}

	user.ProfileImage = image
	user.UpdatedAt = s.now()

	if _, err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("update image: %w", err)
	}
	return nil
}

// StartRecovery never reports an outcome to the caller, whether or not the
// email is registered. For a known email a recovery request is queued for
// the mailer; no code or token is created.
func (s *IdentityService) StartRecovery(ctx context.Context, email string) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log.Info().Msg("password recovery requested for unknown email")
		} else {
			s.log.Error().Err(err).Msg("password recovery lookup failed")
		}
		return
	}

	s.log.Info().Str("user_id", user.ID).Msg("password recovery requested")
	if s.recovery == nil {
		return
	}
	s.recovery.Enqueue(domain.RecoveryRequest{
		UserID:      user.ID,
		Email:       user.Email,
		RequestedAt: s.now(),
	})
}

// ResetPassword overwrites the password of the account registered under
// email. It requires no proof that the caller owns the address.
func (s *IdentityService) ResetPassword(ctx context.Context, email, newPassword string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("reset password: hash password: %w", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now()

	if _, err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset")
	return nil
}

// decoyHash returns a hash of a random value, built once on first use.
func (s *IdentityService) decoyHash() string {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.log.Error().Err(err).Msg("build decoy password hash")
			return
		}
		s.decoy = hash
	})
	return s.decoy
}

func (s *IdentityService) authResult(user *domain.User) (*ports.AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &ports.AuthResult{ID: user.ID, Email: user.Email, Token: token}, nil
}
