package webhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
	"github.com/creditgate/billing/internal/services/ledger"
)

// Outcome statuses returned to the provider. A verified event always gets a
// 2xx so the provider stops retrying; the status says what happened.
const (
	StatusSuccess      = "success"
	StatusAcknowledged = "acknowledged"
	StatusIgnored      = "ignored"
)

// Config carries the purchase terms the reconciler credits on a confirmed
// payment
type Config struct {
	DefaultCurrency       string
	PaidUsesPerPurchase   int64
	PricePerPurchaseMinor int64
}

// creditLedger is the slice of the ledger the reconciler needs
type creditLedger interface {
	Credit(ctx context.Context, req ledger.CreditRequest) (*domain.CreditResult, error)
}

// Service reconciles provider webhook events against the ledger. Delivery is
// at-least-once; the idempotency key and the unique external transaction id
// on credits make the crediting exactly-once.
type Service struct {
	gateways *ports.GatewayRegistry
	ledger   creditLedger
	payments ports.PaymentRepository
	credits  ports.CreditRepository
	accounts ports.AccountRepository
	logger   ports.Logger
	config   Config
}

// NewService creates a new webhook reconciler
func NewService(
	gateways *ports.GatewayRegistry,
	creditor creditLedger,
	payments ports.PaymentRepository,
	credits ports.CreditRepository,
	accounts ports.AccountRepository,
	logger ports.Logger,
	config Config,
) *Service {
	return &Service{
		gateways: gateways,
		ledger:   creditor,
		payments: payments,
		credits:  credits,
		accounts: accounts,
		logger:   logger,
		config:   config,
	}
}

// Outcome is the reconciler's answer for one delivered event. Kind carries
// the event classification for metrics and stays off the wire.
type Outcome struct {
	Status  string           `json:"status"`
	EventID string           `json:"event_id"`
	Kind    domain.EventKind `json:"-"`
}

// Process verifies one raw webhook delivery and applies its effect. Signature
// failures and unusable metadata return errors (no side effects); everything
// after verification resolves to an Outcome so the provider sees a 2xx.
func (s *Service) Process(ctx context.Context, provider string, payload []byte, sigHeader string) (*Outcome, error) {
	gateway, err := s.gateways.Get(provider)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeServiceUnavailable,
			"Payment provider not configured", err)
	}

	event, err := gateway.VerifyWebhook(payload, sigHeader)
	if err != nil {
		return nil, err
	}

	s.logger.Info("webhook received",
		ports.String("provider", provider),
		ports.String("event_id", event.EventID),
		ports.String("event_type", event.RawType),
		ports.String("payment_id", event.PaymentID))

	switch event.Kind {
	case domain.EventKindPaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, gateway, provider, event)

	case domain.EventKindPaymentFailed:
		s.logger.Warn("payment failed",
			ports.String("event_id", event.EventID),
			ports.String("payment_id", event.PaymentID))
		s.markRecord(ctx, event.PaymentID, domain.PaymentStatusFailed)
		return &Outcome{Status: StatusAcknowledged, EventID: event.EventID, Kind: event.Kind}, nil

	case domain.EventKindRefund:
		// No clawback: refunds need a human to decide what happens to
		// already-spent uses
		s.logger.Warn("refund received, manual review required",
			ports.String("event_id", event.EventID),
			ports.String("payment_id", event.PaymentID),
			ports.Int64("amount_minor", event.AmountMinor))
		return &Outcome{Status: StatusAcknowledged, EventID: event.EventID, Kind: event.Kind}, nil

	default:
		s.logger.Debug("webhook ignored",
			ports.String("event_id", event.EventID),
			ports.String("event_type", event.RawType))
		return &Outcome{Status: StatusIgnored, EventID: event.EventID, Kind: domain.EventKindIgnored}, nil
	}
}

// handlePaymentSucceeded credits the purchased uses exactly once
func (s *Service) handlePaymentSucceeded(ctx context.Context, gateway ports.PaymentGateway, provider string, event *domain.WebhookEvent) (*Outcome, error) {
	identity, err := s.resolveIdentity(ctx, event)
	if err != nil {
		return nil, err
	}

	// Either marker means a previous delivery already landed the credit
	existing, err := s.credits.GetByExternalTransactionID(ctx, nil, event.PaymentID)
	if err != nil {
		return nil, domain.WrapDatabaseError("check existing credit", err)
	}
	if existing != nil {
		s.logger.Info("payment already credited",
			ports.String("payment_id", event.PaymentID),
			ports.String("credit_id", existing.ID.String()))
		s.markRecord(ctx, event.PaymentID, domain.PaymentStatusFulfilled)
		return &Outcome{Status: StatusSuccess, EventID: event.EventID, Kind: event.Kind}, nil
	}
	record, err := s.payments.GetByID(ctx, nil, event.PaymentID)
	if err != nil {
		return nil, domain.WrapDatabaseError("check payment record", err)
	}
	if record != nil && record.Status == domain.PaymentStatusFulfilled {
		s.logger.Info("payment already fulfilled",
			ports.String("payment_id", event.PaymentID))
		return &Outcome{Status: StatusSuccess, EventID: event.EventID, Kind: event.Kind}, nil
	}

	// The event says succeeded; confirm against the provider's current state
	// before minting credits
	intent, err := gateway.GetIntent(ctx, event.PaymentID)
	if err != nil {
		s.logger.Warn("payment confirmation failed",
			ports.String("payment_id", event.PaymentID),
			ports.Err(err))
		return &Outcome{Status: StatusAcknowledged, EventID: event.EventID, Kind: event.Kind}, nil
	}
	if intent.Status != "succeeded" {
		s.logger.Warn("payment not in succeeded state, skipping credit",
			ports.String("payment_id", event.PaymentID),
			ports.String("provider_status", intent.Status))
		return &Outcome{Status: StatusAcknowledged, EventID: event.EventID, Kind: event.Kind}, nil
	}

	amountPaid := event.AmountMinor
	if amountPaid == 0 {
		amountPaid = s.config.PricePerPurchaseMinor
	}
	paid := decimal.NewFromInt(amountPaid).Div(decimal.NewFromInt(100))
	paymentID := event.PaymentID

	result, err := s.ledger.Credit(ctx, ledger.CreditRequest{
		Identity:    identity,
		AmountMinor: s.config.PaidUsesPerPurchase,
		Currency:    s.config.DefaultCurrency,
		Description: fmt.Sprintf("Purchased $%s (%d uses) via %s",
			paid.StringFixed(2), s.config.PaidUsesPerPurchase, displayName(provider)),
		Type:                  domain.CreditTypePurchase,
		IdempotencyKey:        paymentID,
		ExternalTransactionID: &paymentID,
	})
	if err != nil {
		// The payment is real and verified; failing the delivery would make
		// the provider retry a credit that reconciles idempotently anyway
		s.logger.Error("webhook credit failed",
			ports.String("payment_id", event.PaymentID),
			ports.String("account", identity.OAuthProvider+"/"+identity.ExternalID),
			ports.Err(err))
		return &Outcome{Status: StatusAcknowledged, EventID: event.EventID, Kind: event.Kind}, nil
	}

	s.markRecord(ctx, event.PaymentID, domain.PaymentStatusFulfilled)

	s.logger.Info("payment credited",
		ports.String("payment_id", event.PaymentID),
		ports.String("credit_id", result.Credit.ID.String()),
		ports.Int64("uses_added", s.config.PaidUsesPerPurchase),
		ports.Bool("replayed", result.Replayed))

	return &Outcome{Status: StatusSuccess, EventID: event.EventID, Kind: event.Kind}, nil
}

// resolveIdentity rebuilds the account identity from event metadata, by
// identity pair first and account id as the fallback
func (s *Service) resolveIdentity(ctx context.Context, event *domain.WebhookEvent) (domain.Identity, error) {
	oauthProvider := event.Metadata["oauth_provider"]
	externalID := event.Metadata["external_id"]
	if oauthProvider != "" && externalID != "" {
		return domain.Identity{OAuthProvider: oauthProvider, ExternalID: externalID}.Normalize(), nil
	}

	if raw := event.Metadata["account_id"]; raw != "" {
		accountID, err := uuid.Parse(raw)
		if err == nil {
			account, err := s.accounts.GetByID(ctx, nil, accountID)
			if err == nil && account != nil {
				return account.Identity(), nil
			}
		}
	}

	return domain.Identity{}, domain.NewDomainError(domain.ErrorCodeValidationMissingField,
		"Missing account metadata in webhook")
}

// markRecord moves the payment record to the given status when the record
// exists and the transition is legal. Best effort: the record is status
// enrichment, not the source of truth for crediting.
func (s *Service) markRecord(ctx context.Context, paymentID string, next domain.PaymentStatus) {
	record, err := s.payments.GetByID(ctx, nil, paymentID)
	if err != nil {
		s.logger.Warn("payment record lookup failed",
			ports.String("payment_id", paymentID),
			ports.Err(err))
		return
	}
	if record == nil || !record.Status.CanTransitionTo(next) {
		return
	}
	if err := s.payments.UpdateStatus(ctx, nil, paymentID, next); err != nil {
		s.logger.Warn("payment record update failed",
			ports.String("payment_id", paymentID),
			ports.String("status", string(next)),
			ports.Err(err))
	}
}

func displayName(provider string) string {
	if provider == "" {
		return provider
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}
