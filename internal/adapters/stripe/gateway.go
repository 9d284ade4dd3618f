package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
)

// ProviderName is the registry key for the Stripe gateway
const ProviderName = "stripe"

// Config contains configuration for the Stripe gateway
type Config struct {
	// Secret API key (sk_test_... or sk_live_...)
	APIKey string

	// Webhook endpoint signing secret (whsec_...)
	WebhookSecret string
}

// gateway implements the PaymentGateway port using the Stripe SDK
type gateway struct {
	api           *client.API
	logger        *zap.Logger
	webhookSecret string
}

// NewGateway creates a new Stripe payment gateway
func NewGateway(cfg *Config, logger *zap.Logger) ports.PaymentGateway {
	api := &client.API{}
	api.Init(cfg.APIKey, nil)

	return &gateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

// Name returns the provider name used in webhook routing
func (g *gateway) Name() string {
	return ProviderName
}

// CreateIntent creates a Stripe PaymentIntent. The request's idempotency
// key is forwarded to Stripe so retried purchases reuse the same intent.
func (g *gateway) CreateIntent(ctx context.Context, req *domain.IntentRequest) (*domain.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.logger.Error("Stripe payment intent creation failed",
			zap.Int64("amount_minor", req.AmountMinor),
			zap.String("currency", req.Currency),
			zap.Error(err),
		)
		return nil, wrapStripeError("create payment intent", err)
	}

	g.logger.Info("Stripe payment intent created",
		zap.String("payment_id", pi.ID),
		zap.Int64("amount_minor", pi.Amount),
		zap.String("currency", string(pi.Currency)),
	)

	return toIntent(pi), nil
}

// GetIntent fetches the current state of a Stripe PaymentIntent
func (g *gateway) GetIntent(ctx context.Context, paymentID string) (*domain.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(paymentID, params)
	if err != nil {
		return nil, wrapStripeError("get payment intent", err)
	}
	return toIntent(pi), nil
}

// VerifyWebhook authenticates a webhook payload against the endpoint
// signing secret and classifies it into a reconciler event. Both bad
// signatures and unparseable payloads fail verification.
func (g *gateway) VerifyWebhook(payload []byte, sigHeader string) (*domain.WebhookEvent, error) {
	// The account's API version can trail the SDK pin, so only the
	// signature is validated, not the event's api_version.
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		g.logger.Warn("Stripe webhook verification failed", zap.Error(err))
		return nil, domain.WrapError(domain.ErrorCodeSignatureInvalid,
			"invalid Stripe webhook signature", err)
	}

	webhookEvent := &domain.WebhookEvent{
		EventID: event.ID,
		RawType: string(event.Type),
		Kind:    domain.EventKindIgnored,
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeSignatureInvalid,
				"failed to parse Stripe webhook payload", err)
		}
		webhookEvent.PaymentID = pi.ID
		webhookEvent.AmountMinor = pi.Amount
		webhookEvent.Currency = strings.ToUpper(string(pi.Currency))
		webhookEvent.Metadata = pi.Metadata
		if event.Type == "payment_intent.succeeded" {
			webhookEvent.Kind = domain.EventKindPaymentSucceeded
		} else {
			webhookEvent.Kind = domain.EventKindPaymentFailed
		}

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeSignatureInvalid,
				"failed to parse Stripe webhook payload", err)
		}
		if ch.PaymentIntent != nil {
			webhookEvent.PaymentID = ch.PaymentIntent.ID
		}
		webhookEvent.AmountMinor = ch.AmountRefunded
		webhookEvent.Currency = strings.ToUpper(string(ch.Currency))
		webhookEvent.Metadata = ch.Metadata
		webhookEvent.Kind = domain.EventKindRefund
	}

	return webhookEvent, nil
}

// toIntent converts a Stripe PaymentIntent to the domain representation
func toIntent(pi *stripe.PaymentIntent) *domain.Intent {
	return &domain.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Currency:     strings.ToUpper(string(pi.Currency)),
		AmountMinor:  pi.Amount,
	}
}

// wrapStripeError maps Stripe SDK errors to domain errors. Missing
// resources become PAYMENT_NOT_FOUND; everything else is a provider error.
func wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return domain.WrapError(domain.ErrorCodePaymentNotFound, "payment not found", err)
	}
	return domain.WrapError(domain.ErrorCodeProviderError, "stripe: "+op+" failed", err)
}
