package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/creditgate/billing/internal/domain"
)

// ProductRepository defines the interface for product inventory persistence
type ProductRepository interface {
	// CreateInventory inserts a new inventory row seeded from product config
	CreateInventory(ctx context.Context, tx DBTX, inv *domain.ProductInventory) error

	// GetInventory retrieves the inventory row for an account and product,
	// nil when none exists
	GetInventory(ctx context.Context, db DBTX, accountID uuid.UUID, productType string) (*domain.ProductInventory, error)

	// GetInventoryForUpdate retrieves the inventory row while holding a row
	// lock. Must run inside a transaction. Nil when none exists.
	GetInventoryForUpdate(ctx context.Context, tx DBTX, accountID uuid.UUID, productType string) (*domain.ProductInventory, error)

	// UpdateInventory writes the pools, total uses, refresh date, and
	// updated_at for a locked inventory row
	UpdateInventory(ctx context.Context, tx DBTX, inv *domain.ProductInventory) error

	// ListInventories lists all inventory rows for an account
	ListInventories(ctx context.Context, db DBTX, accountID uuid.UUID) ([]*domain.ProductInventory, error)

	// CreateUsage inserts a product usage log row
	CreateUsage(ctx context.Context, tx DBTX, usage *domain.ProductUsage) error

	// GetUsageByIdempotencyKey retrieves a usage row by account and
	// idempotency key, nil when none matches
	GetUsageByIdempotencyKey(ctx context.Context, db DBTX, accountID uuid.UUID, key string) (*domain.ProductUsage, error)
}
