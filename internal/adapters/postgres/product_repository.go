package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/creditgate/billing/internal/converters"
	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
)

// inventoryColumns is the scan order shared by every inventory query
const inventoryColumns = `account_id, product_type, free_remaining, paid_remaining,
	last_daily_refresh, total_uses, created_at, updated_at`

// usageColumns is the scan order shared by every usage log query
const usageColumns = `id, account_id, charge_id, product_type, pool, cost_minor,
	free_remaining_before, free_remaining_after,
	paid_remaining_before, paid_remaining_after,
	idempotency_key, request_id, created_at`

// ProductRepository implements ports.ProductRepository over raw SQL.
// Inventory rows are keyed by (account_id, product_type); usage log rows
// are immutable.
type ProductRepository struct {
	db ports.DBPort
}

// NewProductRepository creates a new product repository
func NewProductRepository(db ports.DBPort) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// CreateInventory inserts a new inventory row seeded from product config.
// Callers serialize on the account row lock, so a duplicate insert means a
// caller skipped the lock and surfaces as a constraint error.
func (r *ProductRepository) CreateInventory(ctx context.Context, tx ports.DBTX, inv *domain.ProductInventory) error {
	const q = `
INSERT INTO product_inventory (
	account_id, product_type, free_remaining, paid_remaining,
	last_daily_refresh, total_uses
) VALUES (
	$1, $2, $3, $4, $5, $6
)
RETURNING created_at, updated_at
`
	err := r.executor(tx).QueryRow(ctx, q,
		inv.AccountID,
		inv.ProductType,
		inv.FreeRemaining,
		inv.PaidRemaining,
		converters.ToNullableTimestamptz(inv.LastDailyRefresh),
		inv.TotalUses,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product inventory: %w", err)
	}
	return nil
}

// GetInventory retrieves the inventory row for an account and product,
// nil when none exists
func (r *ProductRepository) GetInventory(ctx context.Context, db ports.DBTX, accountID uuid.UUID, productType string) (*domain.ProductInventory, error) {
	q := `SELECT ` + inventoryColumns + `
FROM product_inventory
WHERE account_id = $1 AND product_type = $2`

	inv, err := scanInventory(r.executor(db).QueryRow(ctx, q, accountID, productType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product inventory: %w", err)
	}
	return inv, nil
}

// GetInventoryForUpdate retrieves the inventory row while holding a row
// lock, nil when none exists
func (r *ProductRepository) GetInventoryForUpdate(ctx context.Context, tx ports.DBTX, accountID uuid.UUID, productType string) (*domain.ProductInventory, error) {
	q := `SELECT ` + inventoryColumns + `
FROM product_inventory
WHERE account_id = $1 AND product_type = $2
FOR UPDATE`

	inv, err := scanInventory(r.executor(tx).QueryRow(ctx, q, accountID, productType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock product inventory: %w", err)
	}
	return inv, nil
}

// UpdateInventory writes the pools, usage counter, and refresh date for a
// locked inventory row
func (r *ProductRepository) UpdateInventory(ctx context.Context, tx ports.DBTX, inv *domain.ProductInventory) error {
	const q = `
UPDATE product_inventory
SET free_remaining = $3,
	paid_remaining = $4,
	last_daily_refresh = $5,
	total_uses = $6,
	updated_at = NOW()
WHERE account_id = $1 AND product_type = $2
RETURNING updated_at
`
	err := r.executor(tx).QueryRow(ctx, q,
		inv.AccountID,
		inv.ProductType,
		inv.FreeRemaining,
		inv.PaidRemaining,
		converters.ToNullableTimestamptz(inv.LastDailyRefresh),
		inv.TotalUses,
	).Scan(&inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product inventory: %w", err)
	}
	return nil
}

// ListInventories lists all inventory rows for an account
func (r *ProductRepository) ListInventories(ctx context.Context, db ports.DBTX, accountID uuid.UUID) ([]*domain.ProductInventory, error) {
	q := `SELECT ` + inventoryColumns + `
FROM product_inventory
WHERE account_id = $1
ORDER BY product_type`

	rows, err := r.executor(db).Query(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("list product inventories: %w", err)
	}
	defer rows.Close()

	var inventories []*domain.ProductInventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product inventory: %w", err)
		}
		inventories = append(inventories, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list product inventories: %w", err)
	}
	return inventories, nil
}

// CreateUsage inserts a product usage log row
func (r *ProductRepository) CreateUsage(ctx context.Context, tx ports.DBTX, usage *domain.ProductUsage) error {
	const q = `
INSERT INTO product_usage_log (
	id, account_id, charge_id, product_type, pool, cost_minor,
	free_remaining_before, free_remaining_after,
	paid_remaining_before, paid_remaining_after,
	idempotency_key, request_id
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
)
RETURNING created_at
`
	err := r.executor(tx).QueryRow(ctx, q,
		usage.ID,
		usage.AccountID,
		usage.ChargeID,
		usage.ProductType,
		string(usage.Pool),
		usage.CostMinor,
		usage.FreeRemainingBefore,
		usage.FreeRemainingAfter,
		usage.PaidRemainingBefore,
		usage.PaidRemainingAfter,
		usage.IdempotencyKey,
		converters.ToNullableText(usage.RequestID),
	).Scan(&usage.CreatedAt)
	if err != nil {
		return fmt.Errorf("create product usage: %w", err)
	}
	return nil
}

// GetUsageByIdempotencyKey retrieves a usage row by account and idempotency
// key, nil when none matches
func (r *ProductRepository) GetUsageByIdempotencyKey(ctx context.Context, db ports.DBTX, accountID uuid.UUID, key string) (*domain.ProductUsage, error) {
	q := `SELECT ` + usageColumns + `
FROM product_usage_log
WHERE account_id = $1 AND idempotency_key = $2`

	usage, err := scanUsage(r.executor(db).QueryRow(ctx, q, accountID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product usage by idempotency key: %w", err)
	}
	return usage, nil
}

// scanInventory scans one inventory row in inventoryColumns order
func scanInventory(row pgx.Row) (*domain.ProductInventory, error) {
	var (
		inv         domain.ProductInventory
		lastRefresh pgtype.Timestamptz
	)

	err := row.Scan(
		&inv.AccountID,
		&inv.ProductType,
		&inv.FreeRemaining,
		&inv.PaidRemaining,
		&lastRefresh,
		&inv.TotalUses,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.LastDailyRefresh = converters.FromNullableTimestamptz(lastRefresh)
	return &inv, nil
}

// scanUsage scans one usage log row in usageColumns order
func scanUsage(row pgx.Row) (*domain.ProductUsage, error) {
	var (
		usage     domain.ProductUsage
		pool      string
		requestID pgtype.Text
	)

	err := row.Scan(
		&usage.ID,
		&usage.AccountID,
		&usage.ChargeID,
		&usage.ProductType,
		&pool,
		&usage.CostMinor,
		&usage.FreeRemainingBefore,
		&usage.FreeRemainingAfter,
		&usage.PaidRemainingBefore,
		&usage.PaidRemainingAfter,
		&usage.IdempotencyKey,
		&requestID,
		&usage.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	usage.Pool = domain.PoolSource(pool)
	usage.RequestID = converters.FromNullableText(requestID)
	return &usage, nil
}
