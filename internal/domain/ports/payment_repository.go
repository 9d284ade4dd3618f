package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/creditgate/billing/internal/domain"
)

// PaymentRepository defines the interface for payment record persistence
type PaymentRepository interface {
	// Create inserts a new payment record in pending state
	Create(ctx context.Context, tx DBTX, record *domain.PaymentRecord) error

	// GetByID retrieves a payment record by the provider payment id,
	// nil when none exists
	GetByID(ctx context.Context, db DBTX, paymentID string) (*domain.PaymentRecord, error)

	// GetByIDForUpdate retrieves a payment record while holding a row lock.
	// Must run inside a transaction. Nil when none exists.
	GetByIDForUpdate(ctx context.Context, tx DBTX, paymentID string) (*domain.PaymentRecord, error)

	// UpdateStatus transitions a payment record's status
	UpdateStatus(ctx context.Context, tx DBTX, paymentID string, status domain.PaymentStatus) error

	// ListByAccount lists payment records for an account, newest first
	ListByAccount(ctx context.Context, db DBTX, accountID uuid.UUID) ([]*domain.PaymentRecord, error)
}
