package domain

import (
	"time"

	"github.com/google/uuid"
)

// Denial reasons surfaced by credit checks
const (
	CheckReasonSuspended = "Account suspended"
	CheckReasonClosed    = "Account closed"
	CheckReasonExhausted = "No free uses or credits remaining"
)

// CheckContext carries optional request context for audit and profile sync
type CheckContext struct {
	AgentID   *string `json:"agent_id,omitempty"`
	ChannelID *string `json:"channel_id,omitempty"`
	RequestID *string `json:"request_id,omitempty"`
}

// CheckDecision answers the gating question: may this identity consume one
// use right now. Purchase hints are present only when buying credits is the
// remedy, i.e. an active account with exhausted pools.
type CheckDecision struct {
	Reason             *string   `json:"reason,omitempty"`
	PurchasePriceMinor *int64    `json:"purchase_price_minor,omitempty"`
	PurchaseUses       *int64    `json:"purchase_uses,omitempty"`
	AccountID          uuid.UUID `json:"account_id"`
	PlanName           string    `json:"plan_name"`
	CreditsRemaining   int64     `json:"credits_remaining"`
	FreeUsesRemaining  int64     `json:"free_uses_remaining"`
	TotalUses          int64     `json:"total_uses"`
	HasCredit          bool      `json:"has_credit"`
	PurchaseRequired   bool      `json:"purchase_required"`
}

// CheckRecord is the audit row written after a check decision is returned.
// Recording is post-response and best effort; a dropped record never blocks
// or fails the check itself.
type CheckRecord struct {
	CreatedAt     time.Time `json:"created_at"`
	Reason        *string   `json:"reason,omitempty"`
	AgentID       *string   `json:"agent_id,omitempty"`
	ChannelID     *string   `json:"channel_id,omitempty"`
	RequestID     *string   `json:"request_id,omitempty"`
	ID            uuid.UUID `json:"id"`
	AccountID     uuid.UUID `json:"account_id"`
	OAuthProvider string    `json:"oauth_provider"`
	ExternalID    string    `json:"external_id"`
	FreeUses      int64     `json:"free_uses"`
	PaidCredits   int64     `json:"paid_credits"`
	HasCredit     bool      `json:"has_credit"`
}
