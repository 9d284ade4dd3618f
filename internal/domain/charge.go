package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChargeMetadata carries the request context recorded with a charge
type ChargeMetadata struct {
	MessageID *string `json:"message_id,omitempty"`
	AgentID   *string `json:"agent_id,omitempty"`
	ChannelID *string `json:"channel_id,omitempty"`
	RequestID *string `json:"request_id,omitempty"`
}

// Charge represents a debit against an account's spending pools.
// BalanceAfter snapshots paid_credits after the charge committed (unchanged
// for free-pool charges); UsedFree/UsedPaid record which pool covered it.
type Charge struct {
	CreatedAt      time.Time      `json:"created_at"`
	ProductType    *string        `json:"product_type,omitempty"`
	Metadata       ChargeMetadata `json:"metadata"`
	ID             uuid.UUID      `json:"charge_id"`
	AccountID      uuid.UUID      `json:"account_id"`
	Currency       string         `json:"currency"`
	Description    string         `json:"description"`
	IdempotencyKey string         `json:"idempotency_key"`
	AmountMinor    int64          `json:"amount_minor"`
	BalanceAfter   int64          `json:"balance_after"`
	UsedFree       bool           `json:"used_free"`
	UsedPaid       bool           `json:"used_paid"`
}

// IsProductCharge returns true if the charge went through a product pool path
func (c *Charge) IsProductCharge() bool {
	return c.ProductType != nil && *c.ProductType != ""
}

// ChargeResult is the outcome of a charge operation. Replayed is true when
// the idempotency key matched a prior charge and no new ledger effect occurred.
type ChargeResult struct {
	Charge   *Charge
	Replayed bool
}
