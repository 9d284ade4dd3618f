package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/creditgate/billing/internal/domain"
)

// AccountRepository defines the interface for account persistence
type AccountRepository interface {
	// Create inserts a new account
	Create(ctx context.Context, tx DBTX, account *domain.Account) error

	// GetByID retrieves an account by its ID, nil when none exists
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Account, error)

	// GetByIdentity retrieves an account by its normalized OAuth identity,
	// nil when none exists
	GetByIdentity(ctx context.Context, db DBTX, identity domain.Identity) (*domain.Account, error)

	// GetByIdentityForUpdate retrieves an account by identity while holding
	// a row lock. Must run inside a transaction. Nil when none exists.
	GetByIdentityForUpdate(ctx context.Context, tx DBTX, identity domain.Identity) (*domain.Account, error)

	// GetByIDForUpdate retrieves an account by ID while holding a row lock.
	// Must run inside a transaction. Nil when none exists.
	GetByIDForUpdate(ctx context.Context, tx DBTX, id uuid.UUID) (*domain.Account, error)

	// UpdatePools writes the spending pools, total uses, and updated_at for
	// an account whose row is already locked
	UpdatePools(ctx context.Context, tx DBTX, account *domain.Account) error

	// SyncProfile updates only the non-nil profile fields
	SyncProfile(ctx context.Context, db DBTX, id uuid.UUID, profile domain.Profile) error
}
