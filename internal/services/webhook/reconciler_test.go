package webhook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
	"github.com/creditgate/billing/internal/services/ledger"
	"github.com/creditgate/billing/internal/services/webhook"
	"github.com/creditgate/billing/test/mocks"
)

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

// MockLedger mocks the crediting side of the ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Credit(ctx context.Context, req ledger.CreditRequest) (*domain.CreditResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreditResult), args.Error(1)
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

// MockCreditRepository mocks the credit repository
type MockCreditRepository struct {
	mock.Mock
}

func (m *MockCreditRepository) Create(ctx context.Context, tx ports.DBTX, credit *domain.Credit) error {
	args := m.Called(ctx, tx, credit)
	return args.Error(0)
}

func (m *MockCreditRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Credit, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Credit), args.Error(1)
}

func (m *MockCreditRepository) GetByIdempotencyKey(ctx context.Context, db ports.DBTX, accountID uuid.UUID, key string) (*domain.Credit, error) {
	args := m.Called(ctx, db, accountID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Credit), args.Error(1)
}

func (m *MockCreditRepository) GetByExternalTransactionID(ctx context.Context, db ports.DBTX, externalID string) (*domain.Credit, error) {
	args := m.Called(ctx, db, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Credit), args.Error(1)
}

func (m *MockCreditRepository) ListByAccount(ctx context.Context, db ports.DBTX, accountID uuid.UUID, limit int) ([]*domain.Credit, error) {
	args := m.Called(ctx, db, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Credit), args.Error(1)
}

func (m *MockCreditRepository) CountByAccount(ctx context.Context, db ports.DBTX, accountID uuid.UUID) (int64, error) {
	args := m.Called(ctx, db, accountID)
	return args.Get(0).(int64), args.Error(1)
}

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

type reconcilerMocks struct {
	gateway     *MockPaymentGateway
	ledger      *MockLedger
	payments    *MockPaymentRepository
	credits     *MockCreditRepository
	accountRepo *MockAccountRepository
}

func newTestService() (*webhook.Service, *reconcilerMocks) {
	m := &reconcilerMocks{
		gateway:     new(MockPaymentGateway),
		ledger:      new(MockLedger),
		payments:    new(MockPaymentRepository),
		credits:     new(MockCreditRepository),
		accountRepo: new(MockAccountRepository),
	}
	registry := ports.NewGatewayRegistry()
	registry.Register(m.gateway)

	service := webhook.NewService(registry, m.ledger, m.payments, m.credits, m.accountRepo,
		mocks.NewMockLogger(), webhook.Config{
			DefaultCurrency:       "USD",
			PaidUsesPerPurchase:   50,
			PricePerPurchaseMinor: 500,
		})
	return service, m
}

func succeededEvent() *domain.WebhookEvent {
	return &domain.WebhookEvent{
		EventID:     "evt_1",
		RawType:     "payment_intent.succeeded",
		PaymentID:   "pi_x",
		Kind:        domain.EventKindPaymentSucceeded,
		AmountMinor: 500,
		Currency:    "usd",
		Metadata: map[string]string{
			"account_id":     uuid.NewString(),
			"oauth_provider": "oauth:google",
			"external_id":    "user-1",
		},
	}
}

func TestService_Process_PaymentSucceededCredits(t *testing.T) {
	service, m := newTestService()
	event := succeededEvent()
	pending := &domain.PaymentRecord{ID: "pi_x", Status: domain.PaymentStatusPending, UsesPurchased: 50}

	m.gateway.On("VerifyWebhook", []byte("raw"), "sig").Return(event, nil)
	m.credits.On("GetByExternalTransactionID", mock.Anything, nil, "pi_x").Return(nil, nil)
	m.payments.On("GetByID", mock.Anything, nil, "pi_x").Return(pending, nil)
	m.gateway.On("GetIntent", mock.Anything, "pi_x").
		Return(&domain.Intent{ID: "pi_x", Status: "succeeded", AmountMinor: 500, Currency: "usd"}, nil)

	var creditReq ledger.CreditRequest
	m.ledger.On("Credit", mock.Anything, mock.AnythingOfType("ledger.CreditRequest")).
		Run(func(args mock.Arguments) { creditReq = args.Get(1).(ledger.CreditRequest) }).
		Return(&domain.CreditResult{Credit: &domain.Credit{ID: uuid.New(), BalanceAfter: 50}}, nil)
	m.payments.On("UpdateStatus", mock.Anything, nil, "pi_x", domain.PaymentStatusFulfilled).Return(nil)

	outcome, err := service.Process(context.Background(), "stripe", []byte("raw"), "sig")

	require.NoError(t, err)
	assert.Equal(t, webhook.StatusSuccess, outcome.Status)
	assert.Equal(t, "evt_1", outcome.EventID)

	assert.Equal(t, "oauth:google", creditReq.Identity.OAuthProvider)
	assert.Equal(t, "user-1", creditReq.Identity.ExternalID)
	assert.Equal(t, int64(50), creditReq.AmountMinor, "credits are uses, not cents")
	assert.Equal(t, "USD", creditReq.Currency)
	assert.Equal(t, domain.CreditTypePurchase, creditReq.Type)
	assert.Equal(t, "pi_x", creditReq.IdempotencyKey)
	require.NotNil(t, creditReq.ExternalTransactionID)
	assert.Equal(t, "pi_x", *creditReq.ExternalTransactionID)
	assert.Equal(t, "Purchased $5.00 (50 uses) via Stripe", creditReq.Description)

	m.payments.AssertCalled(t, "UpdateStatus", mock.Anything, nil, "pi_x", domain.PaymentStatusFulfilled)
}

func TestService_Process_SecondDeliveryDoesNotDoubleCredit(t *testing.T) {
	service, m := newTestService()
	event := succeededEvent()

	m.gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)
	m.credits.On("GetByExternalTransactionID", mock.Anything, nil, "pi_x").
		Return(&domain.Credit{ID: uuid.New(), IdempotencyKey: "pi_x"}, nil)
	m.payments.On("GetByID", mock.Anything, nil, "pi_x").
		Return(&domain.PaymentRecord{ID: "pi_x", Status: domain.PaymentStatusFulfilled}, nil)

	outcome, err := service.Process(context.Background(), "stripe", []byte("raw"), "sig")

	require.NoError(t, err)
	assert.Equal(t, webhook.StatusSuccess, outcome.Status, "idempotent replay still reads as success")
	m.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
	m.payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Process_FulfilledRecordShortCircuits(t *testing.T) {
	service, m := newTestService()
	event := succeededEvent()

	m.gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)
	m.credits.On("GetByExternalTransactionID", mock.Anything, nil, "pi_x").Return(nil, nil)
	m.payments.On("GetByID", mock.Anything, nil, "pi_x").
		Return(&domain.PaymentRecord{ID: "pi_x", Status: domain.PaymentStatusFulfilled}, nil)

	outcome, err := service.Process(context.Background(), "stripe", []byte("raw"), "sig")

	require.NoError(t, err)
	assert.Equal(t, webhook.StatusSuccess, outcome.Status)
	m.gateway.AssertNotCalled(t, "GetIntent", mock.Anything, mock.Anything)
	m.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestService_Process_SignatureFailure(t *testing.T) {
	service, m := newTestService()

	m.gateway.On("VerifyWebhook", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrorCodeSignatureInvalid, "signature mismatch"))

	_, err := service.Process(context.Background(), "stripe", []byte("raw"), "bad-sig")

	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeSignatureInvalid, domain.GetErrorCode(err))
	m.credits.AssertNotCalled(t, "GetByExternalTransactionID", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Process_MissingMetadata(t *testing.T) {
	service, m := newTestService()
	event := succeededEvent()
	event.Metadata = map[string]string{}

	m.gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)

	_, err := service.Process(context.Background(), "stripe", []byte("raw"), "sig")

	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeValidationMissingField, domain.GetErrorCode(err))
	m.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestService_Process_AccountIDFallback(t *testing.T) {
	service, m := newTestService()
	account := &domain.Account{
		ID:            uuid.New(),
		OAuthProvider: "oauth:github",
		ExternalID:    "user-9",
		Status:        domain.AccountStatusActive,
	}
	event := succeededEvent()
	event.Metadata = map[string]string{"account_id": account.ID.String()}

	m.gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)
	m.accountRepo.On("GetByID", mock.Anything, nil, account.ID).Return(account, nil)
	m.credits.On("GetByExternalTransactionID", mock.Anything, nil, "pi_x").Return(nil, nil)
	m.payments.On("GetByID", mock.Anything, nil, "pi_x").Return(nil, nil)
	m.gateway.On("GetIntent", mock.Anything, "pi_x").
		Return(&domain.Intent{ID: "pi_x", Status: "succeeded"}, nil)

	var creditReq ledger.CreditRequest
	m.ledger.On("Credit", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { creditReq = args.Get(1).(ledger.CreditRequest) }).
		Return(&domain.CreditResult{Credit: &domain.Credit{ID: uuid.New()}}, nil)

	outcome, err := service.Process(context.Background(), "stripe", []byte("raw"), "sig")

	require.NoError(t, err)
	assert.Equal(t, webhook.StatusSuccess, outcome.Status)
	assert.Equal(t, "oauth:github", creditReq.Identity.OAuthProvider)
	assert.Equal(t, "user-9", creditReq.Identity.ExternalID)
}

func TestService_Process_UnconfirmedPaymentSkipsCredit(t *testing.T) {
	service, m := newTestService()
	event := succeededEvent()

	m.gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)
	m.credits.On("GetByExternalTransactionID", mock.Anything, nil, "pi_x").Return(nil, nil)
	m.payments.On("GetByID", mock.Anything, nil, "pi_x").Return(nil, nil)
	m.gateway.On("GetIntent", mock.Anything, "pi_x").
		Return(&domain.Intent{ID: "pi_x", Status: "processing"}, nil)

	outcome, err := service.Process(context.Background(), "stripe", []byte("raw"), "sig")

	require.NoError(t, err)
	assert.Equal(t, webhook.StatusAcknowledged, outcome.Status)
	m.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestService_Process_CreditFailureIsSwallowed(t *testing.T) {
	service, m := newTestService()
	event := succeededEvent()

	m.gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)
	m.credits.On("GetByExternalTransactionID", mock.Anything, nil, "pi_x").Return(nil, nil)
	m.payments.On("GetByID", mock.Anything, nil, "pi_x").Return(nil, nil)
	m.gateway.On("GetIntent", mock.Anything, "pi_x").
		Return(&domain.Intent{ID: "pi_x", Status: "succeeded"}, nil)
	m.ledger.On("Credit", mock.Anything, mock.Anything).Return(nil, errors.New("deadlock detected"))

	outcome, err := service.Process(context.Background(), "stripe", []byte("raw"), "sig")

	require.NoError(t, err, "a verified event must not bounce; the next delivery reconciles")
	assert.Equal(t, webhook.StatusAcknowledged, outcome.Status)
}

func TestService_Process_PaymentFailedMarksRecord(t *testing.T) {
	service, m := newTestService()
	event := succeededEvent()
	event.Kind = domain.EventKindPaymentFailed
	event.RawType = "payment_intent.payment_failed"

	m.gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)
	m.payments.On("GetByID", mock.Anything, nil, "pi_x").
		Return(&domain.PaymentRecord{ID: "pi_x", Status: domain.PaymentStatusPending}, nil)
	m.payments.On("UpdateStatus", mock.Anything, nil, "pi_x", domain.PaymentStatusFailed).Return(nil)

	outcome, err := service.Process(context.Background(), "stripe", []byte("raw"), "sig")

	require.NoError(t, err)
	assert.Equal(t, webhook.StatusAcknowledged, outcome.Status)
	m.payments.AssertCalled(t, "UpdateStatus", mock.Anything, nil, "pi_x", domain.PaymentStatusFailed)
	m.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestService_Process_RefundIsLogOnly(t *testing.T) {
	service, m := newTestService()
	event := succeededEvent()
	event.Kind = domain.EventKindRefund
	event.RawType = "charge.refunded"

	m.gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)

	outcome, err := service.Process(context.Background(), "stripe", []byte("raw"), "sig")

	require.NoError(t, err)
	assert.Equal(t, webhook.StatusAcknowledged, outcome.Status)
	m.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
	m.payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Process_UnclassifiedEventIgnored(t *testing.T) {
	service, m := newTestService()
	event := succeededEvent()
	event.Kind = domain.EventKindIgnored
	event.RawType = "customer.created"

	m.gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)

	outcome, err := service.Process(context.Background(), "stripe", []byte("raw"), "sig")

	require.NoError(t, err)
	assert.Equal(t, webhook.StatusIgnored, outcome.Status)
}

func TestService_Process_UnknownProvider(t *testing.T) {
	service, _ := newTestService()

	_, err := service.Process(context.Background(), "paypal", []byte("raw"), "sig")

	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeServiceUnavailable, domain.GetErrorCode(err))
}
