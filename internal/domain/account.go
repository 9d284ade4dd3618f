package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountStatus represents the lifecycle state of a billing account
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
)

// OAuthPrefix is the canonical prefix for oauth provider names
const OAuthPrefix = "oauth:"

// Identity identifies an account by its external OAuth identity.
// The (OAuthProvider, ExternalID) pair is unique across accounts.
type Identity struct {
	OAuthProvider string  `json:"oauth_provider"`
	ExternalID    string  `json:"external_id"`
	WAID          *string `json:"wa_id,omitempty"`
	TenantID      *string `json:"tenant_id,omitempty"`
}

// Normalize returns the identity with the oauth: prefix applied to bare provider names
func (i Identity) Normalize() Identity {
	if i.OAuthProvider != "" && !strings.HasPrefix(i.OAuthProvider, OAuthPrefix) {
		i.OAuthProvider = OAuthPrefix + i.OAuthProvider
	}
	return i
}

// Validate checks the identity has both required components
func (i Identity) Validate() error {
	if strings.TrimSpace(i.OAuthProvider) == "" {
		return NewDomainError(ErrorCodeValidationMissingField, "oauth_provider is required")
	}
	if strings.TrimSpace(i.ExternalID) == "" {
		return NewDomainError(ErrorCodeValidationMissingField, "external_id is required")
	}
	return nil
}

// Profile carries the optional account metadata synced from request context.
// Nil fields mean "not provided" and never clear a stored value.
type Profile struct {
	CustomerEmail     *string    `json:"customer_email,omitempty"`
	DisplayName       *string    `json:"display_name,omitempty"`
	MarketingOptIn    *bool      `json:"marketing_opt_in,omitempty"`
	MarketingOptInAt  *time.Time `json:"marketing_opt_in_at,omitempty"`
	MarketingOptInSrc *string    `json:"marketing_opt_in_source,omitempty"`
	UserRole          *string    `json:"user_role,omitempty"`
	AgentID           *string    `json:"agent_id,omitempty"`
}

// IsEmpty reports whether no profile field is set
func (p Profile) IsEmpty() bool {
	return p.CustomerEmail == nil && p.DisplayName == nil && p.MarketingOptIn == nil &&
		p.MarketingOptInAt == nil && p.MarketingOptInSrc == nil &&
		p.UserRole == nil && p.AgentID == nil
}

// Account holds the spending pools and identity for one billed entity.
// PaidCredits and FreeUsesRemaining are use counters; BalanceMinor is a
// reserved money balance in minor units held at zero by the standard
// deployment. All three are kept non-negative by CHECK constraints.
type Account struct {
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	WAID              *string       `json:"wa_id,omitempty"`
	TenantID          *string       `json:"tenant_id,omitempty"`
	CustomerEmail     *string       `json:"customer_email,omitempty"`
	DisplayName       *string       `json:"display_name,omitempty"`
	MarketingOptIn    *bool         `json:"marketing_opt_in,omitempty"`
	MarketingOptInAt  *time.Time    `json:"marketing_opt_in_at,omitempty"`
	MarketingOptInSrc *string       `json:"marketing_opt_in_source,omitempty"`
	UserRole          *string       `json:"user_role,omitempty"`
	AgentID           *string       `json:"agent_id,omitempty"`
	SuspensionReason  *string       `json:"suspension_reason,omitempty"`
	ID                uuid.UUID     `json:"account_id"`
	OAuthProvider     string        `json:"oauth_provider"`
	ExternalID        string        `json:"external_id"`
	Currency          string        `json:"currency"`
	PlanName          string        `json:"plan_name"`
	Status            AccountStatus `json:"status"`
	PaidCredits       int64         `json:"paid_credits"`
	FreeUsesRemaining int64         `json:"free_uses_remaining"`
	BalanceMinor      int64         `json:"balance_minor"`
	TotalUses         int64         `json:"total_uses"`
}

// Identity returns the account's external identity
func (a *Account) Identity() Identity {
	return Identity{
		OAuthProvider: a.OAuthProvider,
		ExternalID:    a.ExternalID,
		WAID:          a.WAID,
		TenantID:      a.TenantID,
	}
}

// IsActive returns true if the account may be charged
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// HasFreeUse returns true if at least one free use remains
func (a *Account) HasFreeUse() bool {
	return a.FreeUsesRemaining >= 1
}

// CanCoverFromPaid returns true if the paid pool covers the given amount
func (a *Account) CanCoverFromPaid(amountMinor int64) bool {
	return a.PaidCredits >= amountMinor
}

// StatusError returns the domain error matching a non-active status, nil when active
func (a *Account) StatusError() error {
	switch a.Status {
	case AccountStatusSuspended:
		reason := "unspecified"
		if a.SuspensionReason != nil && *a.SuspensionReason != "" {
			reason = *a.SuspensionReason
		}
		return NewDomainError(ErrorCodeAccountSuspended, "Account suspended: "+reason).
			WithDetail("reason", reason)
	case AccountStatusClosed:
		return NewDomainError(ErrorCodeAccountClosed, "Account is closed")
	default:
		return nil
	}
}
