package ports

import (
	"context"

	"github.com/creditgate/billing/internal/domain"
)

// CheckRepository defines the interface for the credit check audit trail
type CheckRepository interface {
	// Create inserts a check record
	Create(ctx context.Context, db DBTX, record *domain.CheckRecord) error
}
