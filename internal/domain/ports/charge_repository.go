package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/creditgate/billing/internal/domain"
)

// ChargeRepository defines the interface for charge persistence
type ChargeRepository interface {
	// Create inserts a new charge
	Create(ctx context.Context, tx DBTX, charge *domain.Charge) error

	// GetByID retrieves a charge by its ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Charge, error)

	// GetByIdempotencyKey retrieves a charge by account and idempotency key,
	// nil when no charge matches
	GetByIdempotencyKey(ctx context.Context, db DBTX, accountID uuid.UUID, key string) (*domain.Charge, error)

	// ListByAccount lists up to limit charges for an account, newest first
	ListByAccount(ctx context.Context, db DBTX, accountID uuid.UUID, limit int) ([]*domain.Charge, error)

	// CountByAccount returns the total number of charges for an account
	CountByAccount(ctx context.Context, db DBTX, accountID uuid.UUID) (int64, error)
}
