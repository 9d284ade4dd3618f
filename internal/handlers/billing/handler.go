package billing

import (
	"context"

	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/services/account"
	"github.com/creditgate/billing/internal/services/ledger"
	"github.com/creditgate/billing/internal/services/purchase"
	"github.com/creditgate/billing/internal/services/webhook"
)

// LedgerService is the slice of the ledger the HTTP layer uses
type LedgerService interface {
	Check(ctx context.Context, req ledger.CheckRequest) (*domain.CheckDecision, error)
	Charge(ctx context.Context, req ledger.ChargeRequest) (*domain.ChargeResult, error)
	Credit(ctx context.Context, req ledger.CreditRequest) (*domain.CreditResult, error)
	ChargeProduct(ctx context.Context, req ledger.ProductChargeRequest) (*domain.ProductChargeResult, error)
	CheckProduct(ctx context.Context, identity domain.Identity, productType string) (*domain.ProductCheck, error)
	GetProductBalance(ctx context.Context, identity domain.Identity, productType string) (*domain.ProductBalance, error)
	GetAllProductBalances(ctx context.Context, identity domain.Identity) ([]*domain.ProductBalance, error)
	ListTransactions(ctx context.Context, identity domain.Identity, limit, offset int) (*domain.TransactionPage, error)
}

// AccountService is the slice of the account registry the HTTP layer uses
type AccountService interface {
	Upsert(ctx context.Context, req account.CreateRequest) (*domain.Account, bool, error)
	Get(ctx context.Context, identity domain.Identity) (*domain.Account, error)
}

// PurchaseService creates payment intents and answers status polls
type PurchaseService interface {
	CreatePurchase(ctx context.Context, req purchase.Request) (*purchase.Result, error)
	GetStatus(ctx context.Context, paymentID string) (*purchase.Result, error)
}

// WebhookService reconciles raw provider webhook deliveries
type WebhookService interface {
	Process(ctx context.Context, provider string, payload []byte, sigHeader string) (*webhook.Outcome, error)
}

// Handler serves the billing HTTP surface: credit checks, charges, credits,
// accounts, purchases, webhooks, and the tool-facing product endpoints.
type Handler struct {
	ledger    LedgerService
	accounts  AccountService
	purchases PurchaseService
	webhooks  WebhookService
	provider  string
	logger    *zap.Logger
}

// NewHandler creates a new billing handler. The provider name labels
// purchase metrics; it matches the configured payment provider.
func NewHandler(
	ledger LedgerService,
	accounts AccountService,
	purchases PurchaseService,
	webhooks WebhookService,
	provider string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		ledger:    ledger,
		accounts:  accounts,
		purchases: purchases,
		webhooks:  webhooks,
		provider:  provider,
		logger:    logger,
	}
}
