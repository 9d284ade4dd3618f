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

// creditColumns is the scan order shared by every credit query
const creditColumns = `id, account_id, amount_minor, currency,
	balance_before, balance_after, transaction_type, description,
	external_transaction_id, idempotency_key, is_test, created_at`

// CreditRepository implements ports.CreditRepository over raw SQL.
// Credit rows are immutable; the only writes are inserts.
type CreditRepository struct {
	db ports.DBPort
}

// NewCreditRepository creates a new credit repository
func NewCreditRepository(db ports.DBPort) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create inserts a new credit. The table enforces
// balance_after = balance_before + amount_minor.
func (r *CreditRepository) Create(ctx context.Context, tx ports.DBTX, credit *domain.Credit) error {
	const q = `
INSERT INTO credits (
	id, account_id, amount_minor, currency,
	balance_before, balance_after, transaction_type, description,
	external_transaction_id, idempotency_key, is_test
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
RETURNING created_at
`
	err := r.executor(tx).QueryRow(ctx, q,
		credit.ID,
		credit.AccountID,
		credit.AmountMinor,
		credit.Currency,
		credit.BalanceAfter-credit.AmountMinor,
		credit.BalanceAfter,
		string(credit.Type),
		credit.Description,
		converters.ToNullableText(credit.ExternalTransactionID),
		credit.IdempotencyKey,
		credit.IsTest,
	).Scan(&credit.CreatedAt)
	if err != nil {
		return fmt.Errorf("create credit: %w", err)
	}
	return nil
}

// GetByID retrieves a credit by its ID, nil when none exists
func (r *CreditRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Credit, error) {
	q := `SELECT ` + creditColumns + ` FROM credits WHERE id = $1`

	credit, err := scanCredit(r.executor(db).QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get credit by id: %w", err)
	}
	return credit, nil
}

// GetByIdempotencyKey retrieves a credit by account and idempotency key,
// nil when no credit matches
func (r *CreditRepository) GetByIdempotencyKey(ctx context.Context, db ports.DBTX, accountID uuid.UUID, key string) (*domain.Credit, error) {
	q := `SELECT ` + creditColumns + `
FROM credits
WHERE account_id = $1 AND idempotency_key = $2`

	credit, err := scanCredit(r.executor(db).QueryRow(ctx, q, accountID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get credit by idempotency key: %w", err)
	}
	return credit, nil
}

// GetByExternalTransactionID retrieves a credit by the provider payment id
// that funded it, nil when none matches
func (r *CreditRepository) GetByExternalTransactionID(ctx context.Context, db ports.DBTX, externalID string) (*domain.Credit, error) {
	q := `SELECT ` + creditColumns + `
FROM credits
WHERE external_transaction_id = $1`

	credit, err := scanCredit(r.executor(db).QueryRow(ctx, q, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get credit by external transaction id: %w", err)
	}
	return credit, nil
}

// ListByAccount lists up to limit credits for an account, newest first
func (r *CreditRepository) ListByAccount(ctx context.Context, db ports.DBTX, accountID uuid.UUID, limit int) ([]*domain.Credit, error) {
	q := `SELECT ` + creditColumns + `
FROM credits
WHERE account_id = $1
ORDER BY created_at DESC
LIMIT $2`

	rows, err := r.executor(db).Query(ctx, q, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	defer rows.Close()

	var credits []*domain.Credit
	for rows.Next() {
		credit, err := scanCredit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		credits = append(credits, credit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	return credits, nil
}

// CountByAccount returns the total number of credits for an account
func (r *CreditRepository) CountByAccount(ctx context.Context, db ports.DBTX, accountID uuid.UUID) (int64, error) {
	var count int64
	err := r.executor(db).QueryRow(ctx,
		`SELECT COUNT(*) FROM credits WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count credits: %w", err)
	}
	return count, nil
}

// scanCredit scans one credit row in creditColumns order
func scanCredit(row pgx.Row) (*domain.Credit, error) {
	var (
		credit        domain.Credit
		balanceBefore int64
		txType        string
		externalID    pgtype.Text
	)

	err := row.Scan(
		&credit.ID,
		&credit.AccountID,
		&credit.AmountMinor,
		&credit.Currency,
		&balanceBefore,
		&credit.BalanceAfter,
		&txType,
		&credit.Description,
		&externalID,
		&credit.IdempotencyKey,
		&credit.IsTest,
		&credit.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	credit.Type = domain.CreditType(txType)
	credit.ExternalTransactionID = converters.FromNullableText(externalID)
	return &credit, nil
}
