package billing

import (
	"net/http"

	"github.com/creditgate/billing/internal/domain"
)

// identityPayload is the flat identity block every request body carries.
// Bare provider names are normalized to oauth:<name> by the services.
type identityPayload struct {
	OAuthProvider string  `json:"oauth_provider"`
	ExternalID    string  `json:"external_id"`
	WAID          *string `json:"wa_id,omitempty"`
	TenantID      *string `json:"tenant_id,omitempty"`
}

func (p identityPayload) identity() domain.Identity {
	return domain.Identity{
		OAuthProvider: p.OAuthProvider,
		ExternalID:    p.ExternalID,
		WAID:          p.WAID,
		TenantID:      p.TenantID,
	}
}

// profilePayload is the flat optional profile block. Absent fields stay nil
// and never clear stored values.
type profilePayload struct {
	CustomerEmail     *string `json:"customer_email,omitempty"`
	DisplayName       *string `json:"display_name,omitempty"`
	UserRole          *string `json:"user_role,omitempty"`
	AgentID           *string `json:"agent_id,omitempty"`
	MarketingOptIn    *bool   `json:"marketing_opt_in,omitempty"`
	MarketingOptInSrc *string `json:"marketing_opt_in_source,omitempty"`
}

func (p profilePayload) profile() domain.Profile {
	return domain.Profile{
		CustomerEmail:     p.CustomerEmail,
		DisplayName:       p.DisplayName,
		UserRole:          p.UserRole,
		AgentID:           p.AgentID,
		MarketingOptIn:    p.MarketingOptIn,
		MarketingOptInSrc: p.MarketingOptInSrc,
	}
}

// checkRequest is the POST /v1/billing/credits/check body
type checkRequest struct {
	identityPayload
	profilePayload
	Context domain.CheckContext `json:"context"`
}

// chargeRequest is the POST /v1/billing/charges body
type chargeRequest struct {
	identityPayload
	profilePayload
	AmountMinor    int64                 `json:"amount_minor"`
	Currency       string                `json:"currency"`
	Description    string                `json:"description"`
	IdempotencyKey string                `json:"idempotency_key"`
	Metadata       domain.ChargeMetadata `json:"metadata"`
}

// creditRequest is the POST /v1/billing/credits body
type creditRequest struct {
	identityPayload
	profilePayload
	AmountMinor           int64   `json:"amount_minor"`
	Currency              string  `json:"currency"`
	Description           string  `json:"description"`
	TransactionType       string  `json:"transaction_type"`
	ExternalTransactionID *string `json:"external_transaction_id,omitempty"`
	IdempotencyKey        string  `json:"idempotency_key"`
	IsTest                bool    `json:"is_test"`
}

// accountRequest is the POST /v1/billing/accounts body
type accountRequest struct {
	identityPayload
	profilePayload
	InitialBalanceMinor int64  `json:"initial_balance_minor"`
	Currency            string `json:"currency"`
	PlanName            string `json:"plan_name"`
}

// purchaseRequest is the POST /v1/billing/purchases body. The customer
// email rides in the profile block and is required by the purchase service.
type purchaseRequest struct {
	identityPayload
	profilePayload
	ReturnURL string `json:"return_url,omitempty"`
}

// toolChargeRequest is the POST /v1/tools/charge body. AmountMinor governs
// only the main-pool fallback draw; zero means the product's listed price.
type toolChargeRequest struct {
	identityPayload
	ProductType    string  `json:"product_type"`
	AmountMinor    int64   `json:"amount_minor,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
	RequestID      *string `json:"request_id,omitempty"`
}

// toolChargeResponse reports a product charge outcome. PaidCredits is the
// level of whichever paid pool covered the charge: the main pool after a
// fallback draw, the product pool otherwise.
type toolChargeResponse struct {
	Success       bool  `json:"success"`
	HasCredit     bool  `json:"has_credit"`
	UsedFree      bool  `json:"used_free"`
	UsedPaid      bool  `json:"used_paid"`
	CostMinor     int64 `json:"cost_minor"`
	FreeRemaining int64 `json:"free_remaining"`
	PaidCredits   int64 `json:"paid_credits"`
	TotalUses     int64 `json:"total_uses"`
}

// toolBalancesResponse wraps the per-product balances list
type toolBalancesResponse struct {
	Balances []*domain.ProductBalance `json:"balances"`
}

// queryIdentity reads the identity from query parameters, the form the GET
// endpoints use since they carry no body
func queryIdentity(r *http.Request) domain.Identity {
	q := r.URL.Query()
	identity := domain.Identity{
		OAuthProvider: q.Get("oauth_provider"),
		ExternalID:    q.Get("external_id"),
	}
	if waID := q.Get("wa_id"); waID != "" {
		identity.WAID = &waID
	}
	if tenantID := q.Get("tenant_id"); tenantID != "" {
		identity.TenantID = &tenantID
	}
	return identity
}
