package ports

import (
	"context"

	"github.com/milsabores/identity-service/internal/core/domain"
)

// RegisterInput is the DTO passed from the transport layer on registration.
type RegisterInput struct {
	ID                 string
	DisplayName        string
	Email              string
	Password           string
	BirthDate          string  // dd-MM-yyyy, optional
	ExternalIdentityID *string // optional
}

// AuthResult is returned by every operation that issues a token.
type AuthResult struct {
	ID    string
	Email string
	Token string
}

type IdentityService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Profile(ctx context.Context, id string) (*domain.User, error)
	FindByExternalIdentity(ctx context.Context, externalID string) (*domain.User, error)
	UpdateName(ctx context.Context, id, newName string) (*AuthResult, error)
	UpdateImage(ctx context.Context, id string, image []byte) error
	StartRecovery(ctx context.Context, email string)
	ResetPassword(ctx context.Context, email, newPassword string) error
}
