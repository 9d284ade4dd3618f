package postgres

import (
	"context"
	"fmt"

	"github.com/creditgate/billing/internal/converters"
	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
)

// CheckRepository implements ports.CheckRepository over raw SQL.
// The table is an append-only audit trail; nothing reads it back on the
// request path.
type CheckRepository struct {
	db ports.DBPort
}

// NewCheckRepository creates a new check audit repository
func NewCheckRepository(db ports.DBPort) *CheckRepository {
	return &CheckRepository{db: db}
}

func (r *CheckRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create inserts a check record
func (r *CheckRepository) Create(ctx context.Context, db ports.DBTX, record *domain.CheckRecord) error {
	const q = `
INSERT INTO credit_checks (
	id, account_id, oauth_provider, external_id,
	has_credit, free_uses_remaining, paid_credits, denial_reason,
	context_agent_id, context_channel_id, context_request_id
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
RETURNING created_at
`
	err := r.executor(db).QueryRow(ctx, q,
		record.ID,
		record.AccountID,
		record.OAuthProvider,
		record.ExternalID,
		record.HasCredit,
		record.FreeUses,
		record.PaidCredits,
		converters.ToNullableText(record.Reason),
		converters.ToNullableText(record.AgentID),
		converters.ToNullableText(record.ChannelID),
		converters.ToNullableText(record.RequestID),
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("create check record: %w", err)
	}
	return nil
}
