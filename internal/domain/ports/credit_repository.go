package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/creditgate/billing/internal/domain"
)

// CreditRepository defines the interface for credit persistence
type CreditRepository interface {
	// Create inserts a new credit
	Create(ctx context.Context, tx DBTX, credit *domain.Credit) error

	// GetByID retrieves a credit by its ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Credit, error)

	// GetByIdempotencyKey retrieves a credit by account and idempotency key,
	// nil when no credit matches
	GetByIdempotencyKey(ctx context.Context, db DBTX, accountID uuid.UUID, key string) (*domain.Credit, error)

	// GetByExternalTransactionID retrieves a credit by the provider payment
	// id that funded it, nil when none matches. Used by the webhook
	// reconciler to detect already-fulfilled payments.
	GetByExternalTransactionID(ctx context.Context, db DBTX, externalID string) (*domain.Credit, error)

	// ListByAccount lists up to limit credits for an account, newest first
	ListByAccount(ctx context.Context, db DBTX, accountID uuid.UUID, limit int) ([]*domain.Credit, error)

	// CountByAccount returns the total number of credits for an account
	CountByAccount(ctx context.Context, db DBTX, accountID uuid.UUID) (int64, error)
}
