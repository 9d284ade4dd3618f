package purchase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
	"github.com/creditgate/billing/internal/services/account"
)

// Config selects the active payment provider and fixes the purchase terms.
// Purchases are a single SKU: one payment buys PaidUsesPerPurchase uses for
// PricePerPurchaseMinor.
type Config struct {
	Provider              string
	PublishableKey        string
	Currency              string
	PricePerPurchaseMinor int64
	PaidUsesPerPurchase   int64
}

// Service creates provider payment intents for credit purchases and answers
// status polls. Crediting happens in the webhook reconciler, never here.
type Service struct {
	accounts *account.Service
	payments ports.PaymentRepository
	gateways *ports.GatewayRegistry
	logger   ports.Logger
	config   Config
}

// NewService creates a new purchase service
func NewService(
	accounts *account.Service,
	payments ports.PaymentRepository,
	gateways *ports.GatewayRegistry,
	logger ports.Logger,
	config Config,
) *Service {
	return &Service{
		accounts: accounts,
		payments: payments,
		gateways: gateways,
		logger:   logger,
		config:   config,
	}
}

// Request initiates a purchase for an identity. The customer email is
// required so the provider can send a receipt. ReturnURL is forwarded to
// providers that redirect after payment; Stripe ignores it server-side.
type Request struct {
	Identity  domain.Identity
	Profile   domain.Profile
	ReturnURL string
}

// Result mirrors what the client needs to complete or poll a payment
type Result struct {
	PaymentID      string `json:"payment_id"`
	ClientSecret   string `json:"client_secret,omitempty"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	PublishableKey string `json:"publishable_key"`
	AmountMinor    int64  `json:"amount_minor"`
	UsesPurchased  int64  `json:"uses_purchased"`
}

// CreatePurchase upserts the account and opens a provider payment intent
// for one purchase of credits. The timestamped idempotency key permits
// repeated purchase attempts while keeping each individual request safe to
// retry at the provider.
func (s *Service) CreatePurchase(ctx context.Context, req Request) (*Result, error) {
	if req.Profile.CustomerEmail == nil || *req.Profile.CustomerEmail == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField,
			"customer_email is required for purchases")
	}

	gateway, err := s.gateway()
	if err != nil {
		return nil, err
	}

	acct, _, err := s.accounts.Upsert(ctx, account.CreateRequest{
		Identity: req.Identity,
		Profile:  req.Profile,
	})
	if err != nil {
		return nil, err
	}

	price := decimal.NewFromInt(s.config.PricePerPurchaseMinor).Div(decimal.NewFromInt(100))
	intent, err := gateway.CreateIntent(ctx, &domain.IntentRequest{
		AmountMinor: s.config.PricePerPurchaseMinor,
		Currency:    s.config.Currency,
		Description: fmt.Sprintf("Purchase %d uses for $%s", s.config.PaidUsesPerPurchase, price.StringFixed(2)),
		Metadata: map[string]string{
			"account_id":     acct.ID.String(),
			"oauth_provider": acct.OAuthProvider,
			"external_id":    acct.ExternalID,
		},
		IdempotencyKey: fmt.Sprintf("purchase-v3-%s-%d", acct.ID, time.Now().UTC().Unix()),
		ReceiptEmail:   *req.Profile.CustomerEmail,
		ReturnURL:      req.ReturnURL,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeProviderError, "create payment intent", err)
	}

	// The pending record enriches status polls and lets the reconciler
	// short-circuit fulfilled payments. Crediting does not depend on it, so
	// a failed insert downgrades to a warning rather than losing the
	// client_secret the caller already paid a provider round trip for.
	record := &domain.PaymentRecord{
		ID:            intent.ID,
		Provider:      gateway.Name(),
		AccountID:     acct.ID,
		AmountMinor:   intent.AmountMinor,
		Currency:      intent.Currency,
		UsesPurchased: s.config.PaidUsesPerPurchase,
		Status:        domain.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, nil, record); err != nil {
		s.logger.Warn("payment record insert failed",
			ports.String("payment_id", intent.ID),
			ports.String("account_id", acct.ID.String()),
			ports.Err(err))
	}

	s.logger.Info("purchase intent created",
		ports.String("account_id", acct.ID.String()),
		ports.String("payment_id", intent.ID),
		ports.Int64("amount_minor", intent.AmountMinor),
		ports.Int64("uses_purchased", s.config.PaidUsesPerPurchase))

	return &Result{
		PaymentID:      intent.ID,
		ClientSecret:   intent.ClientSecret,
		Currency:       intent.Currency,
		Status:         intent.Status,
		PublishableKey: s.config.PublishableKey,
		AmountMinor:    intent.AmountMinor,
		UsesPurchased:  s.config.PaidUsesPerPurchase,
	}, nil
}

// GetStatus polls the provider for the payment's current state, falling
// back to the local payment record when the provider lookup fails. Unknown
// everywhere means PAYMENT_NOT_FOUND.
func (s *Service) GetStatus(ctx context.Context, paymentID string) (*Result, error) {
	gateway, err := s.gateway()
	if err != nil {
		return nil, err
	}

	record, recordErr := s.payments.GetByID(ctx, nil, paymentID)
	if recordErr != nil {
		s.logger.Warn("payment record lookup failed",
			ports.String("payment_id", paymentID),
			ports.Err(recordErr))
	}

	intent, err := gateway.GetIntent(ctx, paymentID)
	if err != nil {
		if record == nil {
			return nil, domain.NewDomainError(domain.ErrorCodePaymentNotFound,
				fmt.Sprintf("Payment not found: %s", paymentID))
		}
		s.logger.Warn("provider status lookup failed, serving local record",
			ports.String("payment_id", paymentID),
			ports.Err(err))
		return &Result{
			PaymentID:      record.ID,
			Currency:       record.Currency,
			Status:         string(record.Status),
			PublishableKey: s.config.PublishableKey,
			AmountMinor:    record.AmountMinor,
			UsesPurchased:  record.UsesPurchased,
		}, nil
	}

	uses := s.config.PaidUsesPerPurchase
	if record != nil {
		uses = record.UsesPurchased
	}

	return &Result{
		PaymentID:      intent.ID,
		ClientSecret:   intent.ClientSecret,
		Currency:       intent.Currency,
		Status:         intent.Status,
		PublishableKey: s.config.PublishableKey,
		AmountMinor:    intent.AmountMinor,
		UsesPurchased:  uses,
	}, nil
}

// gateway resolves the configured provider, or SERVICE_UNAVAILABLE when no
// provider is configured or registered
func (s *Service) gateway() (ports.PaymentGateway, error) {
	if s.config.Provider == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeServiceUnavailable,
			"Payment provider not configured")
	}
	gateway, err := s.gateways.Get(s.config.Provider)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeServiceUnavailable,
			"Payment provider not configured", err)
	}
	return gateway, nil
}
