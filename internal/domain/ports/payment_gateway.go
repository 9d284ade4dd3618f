package ports

import (
	"context"
	"fmt"
	"sync"

	"github.com/creditgate/billing/internal/domain"
)

// PaymentGateway defines the interface for payment provider operations.
// Implementations wrap one provider SDK; the reconciler and purchase
// service depend only on this interface.
type PaymentGateway interface {
	// Name returns the provider name used in webhook routing
	Name() string

	// CreateIntent creates a provider-side payment for the given request.
	// The idempotency key in the request makes retries safe.
	CreateIntent(ctx context.Context, req *domain.IntentRequest) (*domain.Intent, error)

	// GetIntent fetches the current provider-side state of a payment
	GetIntent(ctx context.Context, paymentID string) (*domain.Intent, error)

	// VerifyWebhook authenticates a raw webhook payload against its
	// signature header and decodes it into a classified event. Returns a
	// SIGNATURE_INVALID domain error when authentication fails.
	VerifyWebhook(payload []byte, sigHeader string) (*domain.WebhookEvent, error)
}

// GatewayRegistry holds the configured payment providers keyed by name
type GatewayRegistry struct {
	mu       sync.RWMutex
	gateways map[string]PaymentGateway
}

// NewGatewayRegistry creates an empty registry
func NewGatewayRegistry() *GatewayRegistry {
	return &GatewayRegistry{
		gateways: make(map[string]PaymentGateway),
	}
}

// Register adds a provider to the registry, replacing any previous
// provider with the same name
func (r *GatewayRegistry) Register(gateway PaymentGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[gateway.Name()] = gateway
}

// Get returns the provider registered under the given name
func (r *GatewayRegistry) Get(name string) (PaymentGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gateway, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("payment provider not registered: %s", name)
	}
	return gateway, nil
}

// Names returns the registered provider names
func (r *GatewayRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	return names
}
