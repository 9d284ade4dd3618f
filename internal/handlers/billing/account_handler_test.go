package billing_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/services/account"
)

func testAccount() *domain.Account {
	return &domain.Account{
		ID:                uuid.New(),
		OAuthProvider:     "oauth:google",
		ExternalID:        "user-123",
		Currency:          "USD",
		PlanName:          "free",
		Status:            domain.AccountStatusActive,
		FreeUsesRemaining: 3,
	}
}

func TestCreateAccount_New(t *testing.T) {
	router, m := newTestRouter(t)

	acct := testAccount()
	var captured account.CreateRequest
	m.accounts.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(account.CreateRequest) }).
		Return(acct, true, nil)

	body := identityBody()
	body["customer_email"] = "user@example.com"
	body["plan_name"] = "free"
	w := doJSON(t, router, http.MethodPost, "/v1/billing/accounts", body)

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeMap(t, w)
	assert.Equal(t, acct.ID.String(), resp["account_id"])
	assert.Equal(t, "active", resp["status"])
	assert.Equal(t, float64(3), resp["free_uses_remaining"])

	assert.Equal(t, "google", captured.Identity.OAuthProvider)
	assert.Equal(t, "free", captured.PlanName)
	require.NotNil(t, captured.Profile.CustomerEmail)
	assert.Equal(t, "user@example.com", *captured.Profile.CustomerEmail)
}

func TestCreateAccount_ExistingReturns200(t *testing.T) {
	router, m := newTestRouter(t)

	m.accounts.On("Upsert", mock.Anything, mock.Anything).Return(testAccount(), false, nil)

	w := doJSON(t, router, http.MethodPost, "/v1/billing/accounts", identityBody())

	assert.Equal(t, http.StatusOK, w.Code, "re-registering is idempotent, not an error")
}

func TestGetAccount(t *testing.T) {
	router, m := newTestRouter(t)

	acct := testAccount()
	var captured domain.Identity
	m.accounts.On("Get", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(domain.Identity) }).
		Return(acct, nil)

	w := doJSON(t, router, http.MethodGet, "/v1/billing/accounts/oauth:google/user-123", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeMap(t, w)
	assert.Equal(t, acct.ID.String(), resp["account_id"])
	assert.Equal(t, "oauth:google", resp["oauth_provider"])

	assert.Equal(t, "oauth:google", captured.OAuthProvider)
	assert.Equal(t, "user-123", captured.ExternalID)
}

func TestGetAccount_NotFound(t *testing.T) {
	router, m := newTestRouter(t)

	m.accounts.On("Get", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrorCodeAccountNotFound,
			"Account not found for identity: oauth:google/nobody"))

	w := doJSON(t, router, http.MethodGet, "/v1/billing/accounts/oauth:google/nobody", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decodeMap(t, w)["detail"], "Account not found")
}
