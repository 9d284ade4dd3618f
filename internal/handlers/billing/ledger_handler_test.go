package billing_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/services/ledger"
)

func TestCheckCredit_Allowed(t *testing.T) {
	router, m := newTestRouter(t)

	decision := &domain.CheckDecision{
		AccountID:         uuid.New(),
		HasCredit:         true,
		FreeUsesRemaining: 3,
		PlanName:          "free",
	}
	var captured ledger.CheckRequest
	m.ledger.On("Check", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(ledger.CheckRequest) }).
		Return(decision, nil)

	body := identityBody()
	body["context"] = map[string]interface{}{"agent_id": "agent-1"}
	w := doJSON(t, router, http.MethodPost, "/v1/billing/credits/check", body)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeMap(t, w)
	assert.Equal(t, true, resp["has_credit"])
	assert.Equal(t, float64(3), resp["free_uses_remaining"])
	assert.Equal(t, "free", resp["plan_name"])

	assert.Equal(t, "google", captured.Identity.OAuthProvider, "normalization happens in the service")
	assert.Equal(t, "user-123", captured.Identity.ExternalID)
	require.NotNil(t, captured.Context.AgentID)
	assert.Equal(t, "agent-1", *captured.Context.AgentID)
}

func TestCheckCredit_DeniedPassesPurchaseHint(t *testing.T) {
	router, m := newTestRouter(t)

	reason := domain.CheckReasonExhausted
	price := int64(500)
	uses := int64(20)
	decision := &domain.CheckDecision{
		AccountID:          uuid.New(),
		HasCredit:          false,
		Reason:             &reason,
		PurchaseRequired:   true,
		PurchasePriceMinor: &price,
		PurchaseUses:       &uses,
	}
	m.ledger.On("Check", mock.Anything, mock.Anything).Return(decision, nil)

	w := doJSON(t, router, http.MethodPost, "/v1/billing/credits/check", identityBody())

	require.Equal(t, http.StatusOK, w.Code, "a denial is still a successful check")
	resp := decodeMap(t, w)
	assert.Equal(t, false, resp["has_credit"])
	assert.Equal(t, domain.CheckReasonExhausted, resp["reason"])
	assert.Equal(t, true, resp["purchase_required"])
	assert.Equal(t, float64(500), resp["purchase_price_minor"])
}

func TestCheckCredit_MalformedBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/billing/credits/check", strings.NewReader("{not json"))
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Malformed JSON body", decodeMap(t, w)["detail"])
}

func TestCreateCharge_Created(t *testing.T) {
	router, m := newTestRouter(t)

	chargeID := uuid.New()
	result := &domain.ChargeResult{Charge: &domain.Charge{
		ID:           chargeID,
		AmountMinor:  100,
		Currency:     "USD",
		UsedFree:     true,
		BalanceAfter: 0,
	}}
	var captured ledger.ChargeRequest
	m.ledger.On("Charge", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(ledger.ChargeRequest) }).
		Return(result, nil)

	body := identityBody()
	body["amount_minor"] = 100
	body["idempotency_key"] = "c1"
	body["description"] = "LLM usage"
	w := doJSON(t, router, http.MethodPost, "/v1/billing/charges", body)

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeMap(t, w)
	assert.Equal(t, chargeID.String(), resp["charge_id"])
	assert.Equal(t, true, resp["used_free"])
	assert.Equal(t, float64(0), resp["balance_after"])

	assert.Equal(t, int64(100), captured.AmountMinor)
	assert.Equal(t, "c1", captured.IdempotencyKey)
	assert.Equal(t, "LLM usage", captured.Description)
}

func TestCreateCharge_ReplayConflict(t *testing.T) {
	router, m := newTestRouter(t)

	chargeID := uuid.New()
	result := &domain.ChargeResult{
		Charge:   &domain.Charge{ID: chargeID, AmountMinor: 100, Currency: "USD"},
		Replayed: true,
	}
	m.ledger.On("Charge", mock.Anything, mock.Anything).Return(result, nil)

	body := identityBody()
	body["amount_minor"] = 100
	body["idempotency_key"] = "c1"
	w := doJSON(t, router, http.MethodPost, "/v1/billing/charges", body)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, chargeID.String(), w.Header().Get("X-Existing-Charge-ID"))
	assert.Equal(t, "Charge already exists", decodeMap(t, w)["detail"])
}

func TestCreateCharge_InsufficientCredits(t *testing.T) {
	router, m := newTestRouter(t)

	denial := domain.NewDomainError(domain.ErrorCodeInsufficientCredits,
		"Insufficient credits. Balance: 0, Required: 100").
		WithDetail("balance", int64(0)).
		WithDetail("required", int64(100)).
		WithDetail("purchase_required", true).
		WithDetail("purchase_price_minor", int64(500)).
		WithDetail("purchase_uses", int64(20))
	m.ledger.On("Charge", mock.Anything, mock.Anything).Return(nil, denial)

	body := identityBody()
	body["amount_minor"] = 100
	w := doJSON(t, router, http.MethodPost, "/v1/billing/charges", body)

	require.Equal(t, http.StatusPaymentRequired, w.Code)
	resp := decodeMap(t, w)
	assert.Equal(t, "Insufficient credits. Balance: 0, Required: 100", resp["detail"])

	details, ok := resp["details"].(map[string]interface{})
	require.True(t, ok, "denial carries the purchase hint")
	assert.Equal(t, true, details["purchase_required"])
	assert.Equal(t, float64(500), details["purchase_price_minor"])
	assert.Equal(t, float64(20), details["purchase_uses"])
}

func TestCreateCharge_SuspendedAccount(t *testing.T) {
	router, m := newTestRouter(t)

	m.ledger.On("Charge", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrorCodeAccountSuspended, "Account is suspended"))

	body := identityBody()
	body["amount_minor"] = 100
	w := doJSON(t, router, http.MethodPost, "/v1/billing/charges", body)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Account is suspended", decodeMap(t, w)["detail"])
}

func TestAddCredits_DefaultsToGrant(t *testing.T) {
	router, m := newTestRouter(t)

	creditID := uuid.New()
	result := &domain.CreditResult{Credit: &domain.Credit{
		ID:          creditID,
		Type:        domain.CreditTypeGrant,
		AmountMinor: 20,
		Currency:    "USD",
	}}
	var captured ledger.CreditRequest
	m.ledger.On("Credit", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(ledger.CreditRequest) }).
		Return(result, nil)

	body := identityBody()
	body["amount_minor"] = 20
	w := doJSON(t, router, http.MethodPost, "/v1/billing/credits", body)

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeMap(t, w)
	assert.Equal(t, creditID.String(), resp["credit_id"])
	assert.Equal(t, "grant", resp["transaction_type"])

	assert.Equal(t, domain.CreditTypeGrant, captured.Type, "absent transaction_type defaults to grant")
}

func TestAddCredits_ExplicitType(t *testing.T) {
	router, m := newTestRouter(t)

	extID := "pi_123"
	result := &domain.CreditResult{Credit: &domain.Credit{
		ID:          uuid.New(),
		Type:        domain.CreditTypePurchase,
		AmountMinor: 50,
	}}
	var captured ledger.CreditRequest
	m.ledger.On("Credit", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(ledger.CreditRequest) }).
		Return(result, nil)

	body := identityBody()
	body["amount_minor"] = 50
	body["transaction_type"] = "purchase"
	body["external_transaction_id"] = extID
	w := doJSON(t, router, http.MethodPost, "/v1/billing/credits", body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.CreditTypePurchase, captured.Type)
	require.NotNil(t, captured.ExternalTransactionID)
	assert.Equal(t, extID, *captured.ExternalTransactionID)
}

func TestAddCredits_ReplayConflict(t *testing.T) {
	router, m := newTestRouter(t)

	creditID := uuid.New()
	result := &domain.CreditResult{
		Credit:   &domain.Credit{ID: creditID, Type: domain.CreditTypeGrant, AmountMinor: 20},
		Replayed: true,
	}
	m.ledger.On("Credit", mock.Anything, mock.Anything).Return(result, nil)

	body := identityBody()
	body["amount_minor"] = 20
	body["idempotency_key"] = "g1"
	w := doJSON(t, router, http.MethodPost, "/v1/billing/credits", body)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, creditID.String(), w.Header().Get("X-Existing-Credit-ID"))
	assert.Equal(t, "Credit already exists", decodeMap(t, w)["detail"])
}

func TestCreateCharge_DatabaseOutageIsUnavailable(t *testing.T) {
	router, m := newTestRouter(t)

	// Connectivity failures escape the transaction wrapper without a
	// domain code; they must still land as retryable, not as 500s
	m.ledger.On("Charge", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("lock account: %w", context.DeadlineExceeded))

	body := identityBody()
	body["amount_minor"] = 100
	w := doJSON(t, router, http.MethodPost, "/v1/billing/charges", body)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Service temporarily unavailable", decodeMap(t, w)["detail"])
}

func TestListTransactions_PassesPaging(t *testing.T) {
	router, m := newTestRouter(t)

	page := &domain.TransactionPage{
		Transactions: []domain.LedgerEntry{{
			ID:          uuid.New(),
			Kind:        domain.LedgerEntryCharge,
			AmountMinor: -100,
			Currency:    "USD",
			Description: "LLM usage",
		}},
		TotalCount: 1,
	}
	m.ledger.On("ListTransactions", mock.Anything, mock.MatchedBy(func(id domain.Identity) bool {
		return id.OAuthProvider == "google" && id.ExternalID == "user-123"
	}), 10, 5).Return(page, nil)

	w := doJSON(t, router, http.MethodGet,
		"/v1/billing/transactions?oauth_provider=google&external_id=user-123&limit=10&offset=5", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeMap(t, w)
	assert.Equal(t, float64(1), resp["total_count"])
	assert.Equal(t, false, resp["has_more"])

	transactions, ok := resp["transactions"].([]interface{})
	require.True(t, ok)
	require.Len(t, transactions, 1)
	entry := transactions[0].(map[string]interface{})
	assert.Equal(t, "charge", entry["type"])
	assert.Equal(t, float64(-100), entry["amount_minor"])
}
