package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the reconciliation state of a purchase payment.
// Transitions are monotone: pending may become fulfilled or failed, and
// both of those are terminal.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFulfilled PaymentStatus = "fulfilled"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// CanTransitionTo reports whether the state machine allows the transition
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return false
	}
	return s == PaymentStatusPending &&
		(next == PaymentStatusFulfilled || next == PaymentStatusFailed)
}

// IsTerminal returns true for fulfilled and failed
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusFulfilled || s == PaymentStatusFailed
}

// PaymentRecord tracks one provider payment and what it buys. The ID is the
// provider's payment identifier (for Stripe a pi_... payment intent id).
type PaymentRecord struct {
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ID            string        `json:"payment_id"`
	Provider      string        `json:"provider"`
	Currency      string        `json:"currency"`
	AccountID     uuid.UUID     `json:"account_id"`
	Status        PaymentStatus `json:"status"`
	AmountMinor   int64         `json:"amount_minor"`
	UsesPurchased int64         `json:"uses_purchased"`
}

// IntentRequest describes the payment the provider should collect
type IntentRequest struct {
	Metadata       map[string]string
	AmountMinor    int64
	Currency       string
	Description    string
	IdempotencyKey string
	ReceiptEmail   string
	ReturnURL      string
}

// Intent is the provider-side payment as created or fetched
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Currency     string
	AmountMinor  int64
}

// EventKind classifies provider webhook events into the cases the
// reconciler acts on
type EventKind string

const (
	EventKindPaymentSucceeded EventKind = "payment_succeeded"
	EventKindPaymentFailed    EventKind = "payment_failed"
	EventKindRefund           EventKind = "refund"
	EventKindIgnored          EventKind = "ignored"
)

// WebhookEvent is a verified provider event. Metadata carries whatever the
// intent creation attached (account_id, oauth_provider, external_id).
type WebhookEvent struct {
	Metadata    map[string]string
	EventID     string
	RawType     string
	PaymentID   string
	Currency    string
	Kind        EventKind
	AmountMinor int64
}
