package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntryKind distinguishes the two sides of the unified history
type LedgerEntryKind string

const (
	LedgerEntryCharge LedgerEntryKind = "charge"
	LedgerEntryCredit LedgerEntryKind = "credit"
)

// LedgerEntry is one row of the unified transaction history. Charges carry
// negative amounts and credits positive ones, so summing the column yields
// the net paid-pool movement. The optional fields belong to one side only:
// TransactionType and ExternalTransactionID to credits, Metadata to charges.
type LedgerEntry struct {
	CreatedAt             time.Time       `json:"created_at"`
	TransactionType       *CreditType     `json:"transaction_type,omitempty"`
	ExternalTransactionID *string         `json:"external_transaction_id,omitempty"`
	Metadata              *ChargeMetadata `json:"metadata,omitempty"`
	ID                    uuid.UUID       `json:"transaction_id"`
	Kind                  LedgerEntryKind `json:"type"`
	Currency              string          `json:"currency"`
	Description           string          `json:"description"`
	AmountMinor           int64           `json:"amount_minor"`
	BalanceAfter          int64           `json:"balance_after"`
}

// EntryFromCharge converts a charge into its history row, negating the amount
func EntryFromCharge(c *Charge) LedgerEntry {
	metadata := c.Metadata
	return LedgerEntry{
		ID:           c.ID,
		Kind:         LedgerEntryCharge,
		AmountMinor:  -c.AmountMinor,
		Currency:     c.Currency,
		Description:  c.Description,
		BalanceAfter: c.BalanceAfter,
		Metadata:     &metadata,
		CreatedAt:    c.CreatedAt,
	}
}

// EntryFromCredit converts a credit into its history row
func EntryFromCredit(c *Credit) LedgerEntry {
	creditType := c.Type
	return LedgerEntry{
		ID:                    c.ID,
		Kind:                  LedgerEntryCredit,
		AmountMinor:           c.AmountMinor,
		Currency:              c.Currency,
		Description:           c.Description,
		BalanceAfter:          c.BalanceAfter,
		TransactionType:       &creditType,
		ExternalTransactionID: c.ExternalTransactionID,
		CreatedAt:             c.CreatedAt,
	}
}

// TransactionPage is one page of the unified history
type TransactionPage struct {
	Transactions []LedgerEntry `json:"transactions"`
	TotalCount   int           `json:"total_count"`
	HasMore      bool          `json:"has_more"`
}
