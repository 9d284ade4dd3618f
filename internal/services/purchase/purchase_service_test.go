package purchase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
	"github.com/creditgate/billing/internal/services/account"
	"github.com/creditgate/billing/internal/services/purchase"
	"github.com/creditgate/billing/test/mocks"
)

// MockAccountRepository mocks the account repository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, tx ports.DBTX, acct *domain.Account) error {
	args := m.Called(ctx, tx, acct)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Account, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByIdentity(ctx context.Context, db ports.DBTX, identity domain.Identity) (*domain.Account, error) {
	args := m.Called(ctx, db, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByIdentityForUpdate(ctx context.Context, tx ports.DBTX, identity domain.Identity) (*domain.Account, error) {
	args := m.Called(ctx, tx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Account, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdatePools(ctx context.Context, tx ports.DBTX, acct *domain.Account) error {
	args := m.Called(ctx, tx, acct)
	return args.Error(0)
}

func (m *MockAccountRepository) SyncProfile(ctx context.Context, db ports.DBTX, id uuid.UUID, profile domain.Profile) error {
	args := m.Called(ctx, db, id, profile)
	return args.Error(0)
}

// MockPaymentRepository mocks the payment record repository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, tx ports.DBTX, record *domain.PaymentRecord) error {
	args := m.Called(ctx, tx, record)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, db ports.DBTX, paymentID string) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, db, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, paymentID string) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, tx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, paymentID string, status domain.PaymentStatus) error {
	args := m.Called(ctx, tx, paymentID, status)
	return args.Error(0)
}

func (m *MockPaymentRepository) ListByAccount(ctx context.Context, db ports.DBTX, accountID uuid.UUID) ([]*domain.PaymentRecord, error) {
	args := m.Called(ctx, db, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PaymentRecord), args.Error(1)
}

// MockPaymentGateway mocks a payment provider adapter
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Name() string {
	return "stripe"
}

func (m *MockPaymentGateway) CreateIntent(ctx context.Context, req *domain.IntentRequest) (*domain.Intent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Intent), args.Error(1)
}

func (m *MockPaymentGateway) GetIntent(ctx context.Context, paymentID string) (*domain.Intent, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Intent), args.Error(1)
}

func (m *MockPaymentGateway) VerifyWebhook(payload []byte, sigHeader string) (*domain.WebhookEvent, error) {
	args := m.Called(payload, sigHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookEvent), args.Error(1)
}

type purchaseMocks struct {
	accountRepo *MockAccountRepository
	payments    *MockPaymentRepository
	gateway     *MockPaymentGateway
}

func newTestService() (*purchase.Service, *purchaseMocks) {
	m := &purchaseMocks{
		accountRepo: new(MockAccountRepository),
		payments:    new(MockPaymentRepository),
		gateway:     new(MockPaymentGateway),
	}
	registry := ports.NewGatewayRegistry()
	registry.Register(m.gateway)

	accounts := account.NewService(m.accountRepo, mocks.NewMockLogger(), account.Defaults{
		Currency:           "USD",
		PlanName:           "free",
		FreeUsesPerAccount: 3,
	})
	service := purchase.NewService(accounts, m.payments, registry, mocks.NewMockLogger(), purchase.Config{
		Provider:              "stripe",
		PublishableKey:        "pk_test_abc",
		Currency:              "USD",
		PricePerPurchaseMinor: 500,
		PaidUsesPerPurchase:   50,
	})
	return service, m
}

func purchaseRequest() purchase.Request {
	email := "buyer@example.com"
	return purchase.Request{
		Identity: domain.Identity{OAuthProvider: "oauth:google", ExternalID: "user-1"},
		Profile:  domain.Profile{CustomerEmail: &email},
	}
}

func TestService_CreatePurchase(t *testing.T) {
	service, m := newTestService()

	var created *domain.Account
	m.accountRepo.On("GetByIdentity", mock.Anything, nil, mock.Anything).Return(nil, nil)
	m.accountRepo.On("Create", mock.Anything, nil, mock.AnythingOfType("*domain.Account")).
		Run(func(args mock.Arguments) { created = args.Get(2).(*domain.Account) }).
		Return(nil)

	var intentReq *domain.IntentRequest
	m.gateway.On("CreateIntent", mock.Anything, mock.AnythingOfType("*domain.IntentRequest")).
		Run(func(args mock.Arguments) { intentReq = args.Get(1).(*domain.IntentRequest) }).
		Return(&domain.Intent{
			ID:           "pi_123",
			ClientSecret: "pi_123_secret",
			Status:       "requires_payment_method",
			Currency:     "USD",
			AmountMinor:  500,
		}, nil)

	var record *domain.PaymentRecord
	m.payments.On("Create", mock.Anything, nil, mock.AnythingOfType("*domain.PaymentRecord")).
		Run(func(args mock.Arguments) { record = args.Get(2).(*domain.PaymentRecord) }).
		Return(nil)

	result, err := service.CreatePurchase(context.Background(), purchaseRequest())

	require.NoError(t, err)
	assert.Equal(t, "pi_123", result.PaymentID)
	assert.Equal(t, "pi_123_secret", result.ClientSecret)
	assert.Equal(t, int64(500), result.AmountMinor)
	assert.Equal(t, int64(50), result.UsesPurchased)
	assert.Equal(t, "pk_test_abc", result.PublishableKey)
	assert.Equal(t, "requires_payment_method", result.Status)

	require.NotNil(t, intentReq)
	assert.Equal(t, int64(500), intentReq.AmountMinor)
	assert.Equal(t, "Purchase 50 uses for $5.00", intentReq.Description)
	assert.Equal(t, "buyer@example.com", intentReq.ReceiptEmail)
	require.NotNil(t, created)
	assert.Equal(t, created.ID.String(), intentReq.Metadata["account_id"])
	assert.Equal(t, "oauth:google", intentReq.Metadata["oauth_provider"])
	assert.Equal(t, "user-1", intentReq.Metadata["external_id"])
	assert.True(t, strings.HasPrefix(intentReq.IdempotencyKey, "purchase-v3-"+created.ID.String()+"-"),
		"key is %s", intentReq.IdempotencyKey)

	require.NotNil(t, record)
	assert.Equal(t, "pi_123", record.ID)
	assert.Equal(t, "stripe", record.Provider)
	assert.Equal(t, domain.PaymentStatusPending, record.Status)
	assert.Equal(t, int64(50), record.UsesPurchased)
	assert.Equal(t, created.ID, record.AccountID)
}

func TestService_CreatePurchase_ExistingAccount(t *testing.T) {
	service, m := newTestService()
	existing := &domain.Account{
		ID:            uuid.New(),
		OAuthProvider: "oauth:google",
		ExternalID:    "user-1",
		Currency:      "USD",
		Status:        domain.AccountStatusActive,
	}

	m.accountRepo.On("GetByIdentity", mock.Anything, nil, mock.Anything).Return(existing, nil)
	m.gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(&domain.Intent{ID: "pi_9", Status: "requires_payment_method", Currency: "USD", AmountMinor: 500}, nil)
	m.payments.On("Create", mock.Anything, nil, mock.Anything).Return(nil)

	result, err := service.CreatePurchase(context.Background(), purchaseRequest())

	require.NoError(t, err)
	assert.Equal(t, "pi_9", result.PaymentID)
	m.accountRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CreatePurchase_RequiresEmail(t *testing.T) {
	service, m := newTestService()

	_, err := service.CreatePurchase(context.Background(), purchase.Request{
		Identity: domain.Identity{OAuthProvider: "oauth:google", ExternalID: "user-1"},
	})

	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeValidationMissingField, domain.GetErrorCode(err))
	m.gateway.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)
}

func TestService_CreatePurchase_ProviderNotConfigured(t *testing.T) {
	accounts := account.NewService(new(MockAccountRepository), mocks.NewMockLogger(), account.Defaults{})
	service := purchase.NewService(accounts, new(MockPaymentRepository), ports.NewGatewayRegistry(),
		mocks.NewMockLogger(), purchase.Config{Provider: "stripe"})

	_, err := service.CreatePurchase(context.Background(), purchaseRequest())

	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeServiceUnavailable, domain.GetErrorCode(err))
}

func TestService_CreatePurchase_ProviderDown(t *testing.T) {
	service, m := newTestService()
	existing := &domain.Account{ID: uuid.New(), OAuthProvider: "oauth:google", ExternalID: "user-1"}

	m.accountRepo.On("GetByIdentity", mock.Anything, nil, mock.Anything).Return(existing, nil)
	m.gateway.On("CreateIntent", mock.Anything, mock.Anything).Return(nil, errors.New("api timeout"))

	_, err := service.CreatePurchase(context.Background(), purchaseRequest())

	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeProviderError, domain.GetErrorCode(err))
	m.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CreatePurchase_RecordInsertFailureIsNotFatal(t *testing.T) {
	service, m := newTestService()
	existing := &domain.Account{ID: uuid.New(), OAuthProvider: "oauth:google", ExternalID: "user-1"}

	m.accountRepo.On("GetByIdentity", mock.Anything, nil, mock.Anything).Return(existing, nil)
	m.gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(&domain.Intent{ID: "pi_5", ClientSecret: "s", Status: "requires_payment_method", Currency: "USD", AmountMinor: 500}, nil)
	m.payments.On("Create", mock.Anything, nil, mock.Anything).Return(errors.New("insert failed"))

	result, err := service.CreatePurchase(context.Background(), purchaseRequest())

	require.NoError(t, err, "the client secret is already paid for; losing the record must not fail the purchase")
	assert.Equal(t, "pi_5", result.PaymentID)
}

func TestService_GetStatus(t *testing.T) {
	t.Run("provider answers", func(t *testing.T) {
		service, m := newTestService()

		m.payments.On("GetByID", mock.Anything, nil, "pi_123").
			Return(&domain.PaymentRecord{ID: "pi_123", UsesPurchased: 50, Status: domain.PaymentStatusPending}, nil)
		m.gateway.On("GetIntent", mock.Anything, "pi_123").
			Return(&domain.Intent{ID: "pi_123", Status: "succeeded", Currency: "USD", AmountMinor: 500}, nil)

		result, err := service.GetStatus(context.Background(), "pi_123")

		require.NoError(t, err)
		assert.Equal(t, "succeeded", result.Status)
		assert.Equal(t, int64(50), result.UsesPurchased)
		assert.Equal(t, "pk_test_abc", result.PublishableKey)
	})

	t.Run("provider down falls back to local record", func(t *testing.T) {
		service, m := newTestService()

		m.payments.On("GetByID", mock.Anything, nil, "pi_123").
			Return(&domain.PaymentRecord{
				ID: "pi_123", Currency: "USD", AmountMinor: 500,
				UsesPurchased: 50, Status: domain.PaymentStatusFulfilled,
			}, nil)
		m.gateway.On("GetIntent", mock.Anything, "pi_123").Return(nil, errors.New("api timeout"))

		result, err := service.GetStatus(context.Background(), "pi_123")

		require.NoError(t, err)
		assert.Equal(t, "fulfilled", result.Status)
		assert.Equal(t, int64(500), result.AmountMinor)
		assert.Empty(t, result.ClientSecret)
	})

	t.Run("unknown everywhere", func(t *testing.T) {
		service, m := newTestService()

		m.payments.On("GetByID", mock.Anything, nil, "pi_ghost").Return(nil, nil)
		m.gateway.On("GetIntent", mock.Anything, "pi_ghost").Return(nil, errors.New("no such payment_intent"))

		_, err := service.GetStatus(context.Background(), "pi_ghost")

		require.Error(t, err)
		assert.Equal(t, domain.ErrorCodePaymentNotFound, domain.GetErrorCode(err))
		assert.Contains(t, err.Error(), "pi_ghost")
	})
}
