package domain

import (
	"time"

	"github.com/google/uuid"
)

// CreditType classifies how credits entered the account
type CreditType string

const (
	CreditTypePurchase   CreditType = "purchase"
	CreditTypeGrant      CreditType = "grant"
	CreditTypeRefund     CreditType = "refund"
	CreditTypeAdjustment CreditType = "adjustment"
)

// IsValid reports whether the credit type is one of the known values
func (t CreditType) IsValid() bool {
	switch t {
	case CreditTypePurchase, CreditTypeGrant, CreditTypeRefund, CreditTypeAdjustment:
		return true
	}
	return false
}

// Credit represents funds added to an account's paid pool. Credits always
// target paid_credits regardless of account status. BalanceAfter snapshots
// paid_credits after the credit committed. ExternalTransactionID links
// purchase credits to the provider payment that funded them.
type Credit struct {
	CreatedAt             time.Time  `json:"created_at"`
	ExternalTransactionID *string    `json:"external_transaction_id,omitempty"`
	ID                    uuid.UUID  `json:"credit_id"`
	AccountID             uuid.UUID  `json:"account_id"`
	Currency              string     `json:"currency"`
	Description           string     `json:"description"`
	IdempotencyKey        string     `json:"idempotency_key"`
	Type                  CreditType `json:"transaction_type"`
	AmountMinor           int64      `json:"amount_minor"`
	BalanceAfter          int64      `json:"balance_after"`
	IsTest                bool       `json:"is_test"`
}

// CreditResult is the outcome of a credit operation. Replayed is true when
// the idempotency key matched a prior credit and no new ledger effect occurred.
type CreditResult struct {
	Credit   *Credit
	Replayed bool
}
