package ports

import (
	"context"

	"github.com/milsabores/identity-service/internal/core/domain"
)

// UserDirectory is the durable store of users, keyed by id with a unique
// email. Lookups return domain.ErrUserNotFound when nothing matches.
type UserDirectory interface {
	// Save inserts or replaces the user with the same id. A violation of the
	// email uniqueness constraint is reported as domain.ErrDuplicateEmail.
	Save(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByExternalIdentityID(ctx context.Context, externalID string) (*domain.User, error)
}
