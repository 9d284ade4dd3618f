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

// chargeColumns is the scan order shared by every charge query
const chargeColumns = `id, account_id, amount_minor, currency,
	balance_before, balance_after, description, idempotency_key,
	used_free, used_paid, product_type,
	metadata_message_id, metadata_agent_id, metadata_channel_id, metadata_request_id,
	created_at`

// ChargeRepository implements ports.ChargeRepository over raw SQL.
// Charge rows are immutable; the only writes are inserts.
type ChargeRepository struct {
	db ports.DBPort
}

// NewChargeRepository creates a new charge repository
func NewChargeRepository(db ports.DBPort) *ChargeRepository {
	return &ChargeRepository{db: db}
}

func (r *ChargeRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create inserts a new charge. balance_before is reconstructed from the
// pool flags: paid charges moved the balance by amount_minor, free charges
// left it unchanged.
func (r *ChargeRepository) Create(ctx context.Context, tx ports.DBTX, charge *domain.Charge) error {
	const q = `
INSERT INTO charges (
	id, account_id, amount_minor, currency,
	balance_before, balance_after, description, idempotency_key,
	used_free, used_paid, product_type,
	metadata_message_id, metadata_agent_id, metadata_channel_id, metadata_request_id
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
)
RETURNING created_at
`
	balanceBefore := charge.BalanceAfter
	if charge.UsedPaid {
		balanceBefore += charge.AmountMinor
	}

	err := r.executor(tx).QueryRow(ctx, q,
		charge.ID,
		charge.AccountID,
		charge.AmountMinor,
		charge.Currency,
		balanceBefore,
		charge.BalanceAfter,
		charge.Description,
		charge.IdempotencyKey,
		charge.UsedFree,
		charge.UsedPaid,
		converters.ToNullableText(charge.ProductType),
		converters.ToNullableText(charge.Metadata.MessageID),
		converters.ToNullableText(charge.Metadata.AgentID),
		converters.ToNullableText(charge.Metadata.ChannelID),
		converters.ToNullableText(charge.Metadata.RequestID),
	).Scan(&charge.CreatedAt)
	if err != nil {
		return fmt.Errorf("create charge: %w", err)
	}
	return nil
}

// GetByID retrieves a charge by its ID, nil when none exists
func (r *ChargeRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Charge, error) {
	q := `SELECT ` + chargeColumns + ` FROM charges WHERE id = $1`

	charge, err := scanCharge(r.executor(db).QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get charge by id: %w", err)
	}
	return charge, nil
}

// GetByIdempotencyKey retrieves a charge by account and idempotency key,
// nil when no charge matches
func (r *ChargeRepository) GetByIdempotencyKey(ctx context.Context, db ports.DBTX, accountID uuid.UUID, key string) (*domain.Charge, error) {
	q := `SELECT ` + chargeColumns + `
FROM charges
WHERE account_id = $1 AND idempotency_key = $2`

	charge, err := scanCharge(r.executor(db).QueryRow(ctx, q, accountID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get charge by idempotency key: %w", err)
	}
	return charge, nil
}

// ListByAccount lists up to limit charges for an account, newest first
func (r *ChargeRepository) ListByAccount(ctx context.Context, db ports.DBTX, accountID uuid.UUID, limit int) ([]*domain.Charge, error) {
	q := `SELECT ` + chargeColumns + `
FROM charges
WHERE account_id = $1
ORDER BY created_at DESC
LIMIT $2`

	rows, err := r.executor(db).Query(ctx, q, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	defer rows.Close()

	var charges []*domain.Charge
	for rows.Next() {
		charge, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charge: %w", err)
		}
		charges = append(charges, charge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	return charges, nil
}

// CountByAccount returns the total number of charges for an account
func (r *ChargeRepository) CountByAccount(ctx context.Context, db ports.DBTX, accountID uuid.UUID) (int64, error) {
	var count int64
	err := r.executor(db).QueryRow(ctx,
		`SELECT COUNT(*) FROM charges WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count charges: %w", err)
	}
	return count, nil
}

// scanCharge scans one charge row in chargeColumns order
func scanCharge(row pgx.Row) (*domain.Charge, error) {
	var (
		charge        domain.Charge
		balanceBefore int64
		productType   pgtype.Text
		messageID     pgtype.Text
		agentID       pgtype.Text
		channelID     pgtype.Text
		requestID     pgtype.Text
	)

	err := row.Scan(
		&charge.ID,
		&charge.AccountID,
		&charge.AmountMinor,
		&charge.Currency,
		&balanceBefore,
		&charge.BalanceAfter,
		&charge.Description,
		&charge.IdempotencyKey,
		&charge.UsedFree,
		&charge.UsedPaid,
		&productType,
		&messageID,
		&agentID,
		&channelID,
		&requestID,
		&charge.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	charge.ProductType = converters.FromNullableText(productType)
	charge.Metadata = domain.ChargeMetadata{
		MessageID: converters.FromNullableText(messageID),
		AgentID:   converters.FromNullableText(agentID),
		ChannelID: converters.FromNullableText(channelID),
		RequestID: converters.FromNullableText(requestID),
	}
	return &charge, nil
}
