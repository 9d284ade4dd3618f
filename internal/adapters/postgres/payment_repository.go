package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
)

// paymentColumns is the scan order shared by every payment record query
const paymentColumns = `id, provider, account_id, amount_minor, currency,
	uses_purchased, status, created_at, updated_at`

// PaymentRepository implements ports.PaymentRepository over raw SQL.
// Rows are keyed by the provider's payment id so webhook retries always
// land on the same record.
type PaymentRepository struct {
	db ports.DBPort
}

// NewPaymentRepository creates a new payment record repository
func NewPaymentRepository(db ports.DBPort) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create inserts a new payment record in pending state
func (r *PaymentRepository) Create(ctx context.Context, tx ports.DBTX, record *domain.PaymentRecord) error {
	const q = `
INSERT INTO payment_records (
	id, provider, account_id, amount_minor, currency, uses_purchased, status
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
RETURNING created_at, updated_at
`
	err := r.executor(tx).QueryRow(ctx, q,
		record.ID,
		record.Provider,
		record.AccountID,
		record.AmountMinor,
		record.Currency,
		record.UsesPurchased,
		string(record.Status),
	).Scan(&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment record: %w", err)
	}
	return nil
}

// GetByID retrieves a payment record by the provider payment id,
// nil when none exists
func (r *PaymentRepository) GetByID(ctx context.Context, db ports.DBTX, paymentID string) (*domain.PaymentRecord, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_records WHERE id = $1`

	record, err := scanPaymentRecord(r.executor(db).QueryRow(ctx, q, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment record: %w", err)
	}
	return record, nil
}

// GetByIDForUpdate retrieves a payment record while holding a row lock,
// nil when none exists
func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, paymentID string) (*domain.PaymentRecord, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_records WHERE id = $1 FOR UPDATE`

	record, err := scanPaymentRecord(r.executor(tx).QueryRow(ctx, q, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock payment record: %w", err)
	}
	return record, nil
}

// UpdateStatus transitions a payment record's status
func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, paymentID string, status domain.PaymentStatus) error {
	const q = `
UPDATE payment_records
SET status = $2, updated_at = NOW()
WHERE id = $1
`
	tag, err := r.executor(tx).Exec(ctx, q, paymentID, string(status))
	if err != nil {
		return fmt.Errorf("update payment record status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update payment record status: %w", pgx.ErrNoRows)
	}
	return nil
}

// ListByAccount lists payment records for an account, newest first
func (r *PaymentRepository) ListByAccount(ctx context.Context, db ports.DBTX, accountID uuid.UUID) ([]*domain.PaymentRecord, error) {
	q := `SELECT ` + paymentColumns + `
FROM payment_records
WHERE account_id = $1
ORDER BY created_at DESC`

	rows, err := r.executor(db).Query(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	defer rows.Close()

	var records []*domain.PaymentRecord
	for rows.Next() {
		record, err := scanPaymentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	return records, nil
}

// scanPaymentRecord scans one payment record row in paymentColumns order
func scanPaymentRecord(row pgx.Row) (*domain.PaymentRecord, error) {
	var (
		record domain.PaymentRecord
		status string
	)

	err := row.Scan(
		&record.ID,
		&record.Provider,
		&record.AccountID,
		&record.AmountMinor,
		&record.Currency,
		&record.UsesPurchased,
		&status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = domain.PaymentStatus(status)
	return &record, nil
}
