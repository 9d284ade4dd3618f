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

// accountColumns is the scan order shared by every account query
const accountColumns = `id, oauth_provider, external_id, wa_id, tenant_id,
	customer_email, display_name, balance_minor, currency, plan_name,
	free_uses_remaining, total_uses, paid_credits, status, suspension_reason,
	marketing_opt_in, marketing_opt_in_at, marketing_opt_in_source,
	user_role, agent_id, created_at, updated_at`

// AccountRepository implements ports.AccountRepository over raw SQL
type AccountRepository struct {
	db ports.DBPort
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db ports.DBPort) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, tx ports.DBTX, account *domain.Account) error {
	const q = `
INSERT INTO accounts (
	id, oauth_provider, external_id, wa_id, tenant_id,
	customer_email, display_name, balance_minor, currency, plan_name,
	free_uses_remaining, total_uses, paid_credits, status, suspension_reason,
	marketing_opt_in, marketing_opt_in_at, marketing_opt_in_source,
	user_role, agent_id
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
	$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
)
RETURNING created_at, updated_at
`
	marketingOptIn := false
	if account.MarketingOptIn != nil {
		marketingOptIn = *account.MarketingOptIn
	}

	err := r.executor(tx).QueryRow(ctx, q,
		account.ID,
		account.OAuthProvider,
		account.ExternalID,
		converters.ToNullableText(account.WAID),
		converters.ToNullableText(account.TenantID),
		converters.ToNullableText(account.CustomerEmail),
		converters.ToNullableText(account.DisplayName),
		account.BalanceMinor,
		account.Currency,
		account.PlanName,
		account.FreeUsesRemaining,
		account.TotalUses,
		account.PaidCredits,
		string(account.Status),
		converters.ToNullableText(account.SuspensionReason),
		marketingOptIn,
		converters.ToNullableTimestamptz(account.MarketingOptInAt),
		converters.ToNullableText(account.MarketingOptInSrc),
		converters.ToNullableText(account.UserRole),
		converters.ToNullableText(account.AgentID),
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID, nil when none exists
func (r *AccountRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.executor(db).QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by id: %w", err)
	}
	return account, nil
}

// GetByIdentity retrieves an account by its normalized OAuth identity,
// nil when none exists
func (r *AccountRepository) GetByIdentity(ctx context.Context, db ports.DBTX, identity domain.Identity) (*domain.Account, error) {
	q := `SELECT ` + accountColumns + `
FROM accounts
WHERE oauth_provider = $1 AND external_id = $2`

	account, err := scanAccount(r.executor(db).QueryRow(ctx, q, identity.OAuthProvider, identity.ExternalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by identity: %w", err)
	}
	return account, nil
}

// GetByIdentityForUpdate retrieves an account by identity while holding a
// row lock to serialize concurrent ledger writes on the same account
func (r *AccountRepository) GetByIdentityForUpdate(ctx context.Context, tx ports.DBTX, identity domain.Identity) (*domain.Account, error) {
	q := `SELECT ` + accountColumns + `
FROM accounts
WHERE oauth_provider = $1 AND external_id = $2
FOR UPDATE`

	account, err := scanAccount(r.executor(tx).QueryRow(ctx, q, identity.OAuthProvider, identity.ExternalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock account by identity: %w", err)
	}
	return account, nil
}

// GetByIDForUpdate retrieves an account by ID while holding a row lock
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(r.executor(tx).QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock account by id: %w", err)
	}
	return account, nil
}

// UpdatePools writes the spending pools and usage counters for a locked row
func (r *AccountRepository) UpdatePools(ctx context.Context, tx ports.DBTX, account *domain.Account) error {
	const q = `
UPDATE accounts
SET free_uses_remaining = $2,
	paid_credits = $3,
	balance_minor = $4,
	total_uses = $5,
	updated_at = NOW()
WHERE id = $1
RETURNING updated_at
`
	err := r.executor(tx).QueryRow(ctx, q,
		account.ID,
		account.FreeUsesRemaining,
		account.PaidCredits,
		account.BalanceMinor,
		account.TotalUses,
	).Scan(&account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update account pools: %w", pgx.ErrNoRows)
		}
		return fmt.Errorf("update account pools: %w", err)
	}
	return nil
}

// SyncProfile updates only the non-nil profile fields. COALESCE keeps the
// stored value whenever the caller did not provide one.
func (r *AccountRepository) SyncProfile(ctx context.Context, db ports.DBTX, id uuid.UUID, profile domain.Profile) error {
	if profile.IsEmpty() {
		return nil
	}

	const q = `
UPDATE accounts
SET customer_email = COALESCE($2, customer_email),
	display_name = COALESCE($3, display_name),
	marketing_opt_in = COALESCE($4, marketing_opt_in),
	marketing_opt_in_at = COALESCE($5, marketing_opt_in_at),
	marketing_opt_in_source = COALESCE($6, marketing_opt_in_source),
	user_role = COALESCE($7, user_role),
	agent_id = COALESCE($8, agent_id),
	updated_at = NOW()
WHERE id = $1
`
	_, err := r.executor(db).Exec(ctx, q,
		id,
		converters.ToNullableText(profile.CustomerEmail),
		converters.ToNullableText(profile.DisplayName),
		converters.ToNullableBool(profile.MarketingOptIn),
		converters.ToNullableTimestamptz(profile.MarketingOptInAt),
		converters.ToNullableText(profile.MarketingOptInSrc),
		converters.ToNullableText(profile.UserRole),
		converters.ToNullableText(profile.AgentID),
	)
	if err != nil {
		return fmt.Errorf("sync account profile: %w", err)
	}
	return nil
}

// scanAccount scans one account row in accountColumns order
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account          domain.Account
		waID             pgtype.Text
		tenantID         pgtype.Text
		customerEmail    pgtype.Text
		displayName      pgtype.Text
		status           string
		suspensionReason pgtype.Text
		marketingOptIn   bool
		marketingOptInAt pgtype.Timestamptz
		marketingSrc     pgtype.Text
		userRole         pgtype.Text
		agentID          pgtype.Text
	)

	err := row.Scan(
		&account.ID,
		&account.OAuthProvider,
		&account.ExternalID,
		&waID,
		&tenantID,
		&customerEmail,
		&displayName,
		&account.BalanceMinor,
		&account.Currency,
		&account.PlanName,
		&account.FreeUsesRemaining,
		&account.TotalUses,
		&account.PaidCredits,
		&status,
		&suspensionReason,
		&marketingOptIn,
		&marketingOptInAt,
		&marketingSrc,
		&userRole,
		&agentID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.WAID = converters.FromNullableText(waID)
	account.TenantID = converters.FromNullableText(tenantID)
	account.CustomerEmail = converters.FromNullableText(customerEmail)
	account.DisplayName = converters.FromNullableText(displayName)
	account.Status = domain.AccountStatus(status)
	account.SuspensionReason = converters.FromNullableText(suspensionReason)
	account.MarketingOptIn = &marketingOptIn
	account.MarketingOptInAt = converters.FromNullableTimestamptz(marketingOptInAt)
	account.MarketingOptInSrc = converters.FromNullableText(marketingSrc)
	account.UserRole = converters.FromNullableText(userRole)
	account.AgentID = converters.FromNullableText(agentID)

	return &account, nil
}
