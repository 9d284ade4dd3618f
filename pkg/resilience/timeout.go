package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the application's timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//
//	HTTP Handler (60s)
//	  Ledger transaction (10s)
//	  Payment intent creation (10s)
//	  Webhook verification (5s)
//	  Audit insert (5s)
//
// This hierarchy ensures each layer completes before its parent times out,
// preventing cascading timeout failures and providing predictable behavior.
type TimeoutConfig struct {
	// Handler layer timeout
	HTTPHandler time.Duration // Overall request timeout (default: 60s)

	// Operation deadlines
	Ledger        time.Duration // Charge/credit transaction budget (default: 10s)
	Intent        time.Duration // Provider payment intent calls (default: 10s)
	WebhookVerify time.Duration // Webhook signature verification (default: 5s)
	Audit         time.Duration // Post-commit audit inserts (default: 5s)
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:   60 * time.Second,
		Ledger:        10 * time.Second,
		Intent:        10 * time.Second,
		WebhookVerify: 5 * time.Second,
		Audit:         5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:   5 * time.Second,
		Ledger:        2 * time.Second,
		Intent:        2 * time.Second,
		WebhookVerify: 1 * time.Second,
		Audit:         1 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// LedgerContext creates a context bounding one ledger transaction
func (tc *TimeoutConfig) LedgerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Ledger)
}

// IntentContext creates a context for provider payment intent calls
func (tc *TimeoutConfig) IntentContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Intent)
}

// WebhookVerifyContext creates a context for webhook verification work
func (tc *TimeoutConfig) WebhookVerifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.WebhookVerify)
}

// AuditContext creates a context for post-commit audit inserts
func (tc *TimeoutConfig) AuditContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Audit)
}
