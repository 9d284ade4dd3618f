package resilience

import (
	"context"
	"testing"
	"time"
)

func TestDefaultTimeoutConfig(t *testing.T) {
	config := DefaultTimeoutConfig()

	// Verify timeout hierarchy is correctly ordered
	if config.HTTPHandler <= config.Ledger {
		t.Errorf("HTTPHandler (%v) must be > Ledger (%v)", config.HTTPHandler, config.Ledger)
	}

	if config.HTTPHandler <= config.Intent {
		t.Errorf("HTTPHandler (%v) must be > Intent (%v)", config.HTTPHandler, config.Intent)
	}

	if config.Ledger <= config.WebhookVerify {
		t.Errorf("Ledger (%v) must be > WebhookVerify (%v)", config.Ledger, config.WebhookVerify)
	}

	// Verify production values
	if config.HTTPHandler != 60*time.Second {
		t.Errorf("Expected HTTPHandler = 60s, got %v", config.HTTPHandler)
	}

	if config.Ledger != 10*time.Second {
		t.Errorf("Expected Ledger = 10s, got %v", config.Ledger)
	}

	if config.WebhookVerify != 5*time.Second {
		t.Errorf("Expected WebhookVerify = 5s, got %v", config.WebhookVerify)
	}
}

func TestTestTimeoutConfig(t *testing.T) {
	config := TestTimeoutConfig()

	// Verify test timeouts are shorter
	if config.HTTPHandler >= 10*time.Second {
		t.Errorf("Test timeouts should be < 10s, got %v", config.HTTPHandler)
	}

	// Verify hierarchy is still preserved in test config
	if config.HTTPHandler <= config.Ledger {
		t.Errorf("HTTPHandler (%v) must be > Ledger (%v)", config.HTTPHandler, config.Ledger)
	}
}

func TestHandlerContext(t *testing.T) {
	config := DefaultTimeoutConfig()
	parent := context.Background()

	ctx, cancel := config.HandlerContext(parent)
	defer cancel()

	// Verify context has deadline
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("HandlerContext should have deadline")
	}

	// Verify deadline is approximately HTTPHandler duration from now
	expectedDeadline := time.Now().Add(config.HTTPHandler)
	diff := deadline.Sub(expectedDeadline).Abs()
	if diff > 100*time.Millisecond {
		t.Errorf("Deadline diff too large: %v", diff)
	}
}

func TestTimeoutHierarchyPreservation(t *testing.T) {
	// Verify that child contexts respect parent deadlines
	config := DefaultTimeoutConfig()

	// Create parent context with 5 second timeout
	parent, parentCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer parentCancel()

	// Try to create child with longer timeout
	child, childCancel := config.LedgerContext(parent)
	defer childCancel()

	// Child should inherit parent's shorter deadline
	parentDeadline, _ := parent.Deadline()
	childDeadline, _ := child.Deadline()

	// Child deadline should be same or earlier than parent
	if childDeadline.After(parentDeadline) {
		t.Errorf("Child deadline (%v) should not be after parent deadline (%v)",
			childDeadline, parentDeadline)
	}
}

func TestContextCancellationPropagation(t *testing.T) {
	config := DefaultTimeoutConfig()
	parent := context.Background()

	ctx, cancel := config.LedgerContext(parent)

	// Cancel context
	cancel()

	// Verify context is cancelled
	select {
	case <-ctx.Done():
		// Expected
	case <-time.After(100 * time.Millisecond):
		t.Error("Context should be cancelled immediately")
	}

	// Verify error is context.Canceled
	if ctx.Err() != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", ctx.Err())
	}
}

func TestContextTimeout(t *testing.T) {
	// Use test config for faster tests
	config := TestTimeoutConfig()
	parent := context.Background()

	// Create context with 100ms timeout
	config.Ledger = 100 * time.Millisecond
	ctx, cancel := config.LedgerContext(parent)
	defer cancel()

	// Wait for timeout
	select {
	case <-ctx.Done():
		// Verify error is DeadlineExceeded
		if ctx.Err() != context.DeadlineExceeded {
			t.Errorf("Expected context.DeadlineExceeded, got %v", ctx.Err())
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("Context should timeout after 100ms")
	}
}

func TestAllContextCreators(t *testing.T) {
	config := DefaultTimeoutConfig()
	parent := context.Background()

	tests := []struct {
		name    string
		creator func(context.Context) (context.Context, context.CancelFunc)
		timeout time.Duration
	}{
		{"HandlerContext", config.HandlerContext, config.HTTPHandler},
		{"LedgerContext", config.LedgerContext, config.Ledger},
		{"IntentContext", config.IntentContext, config.Intent},
		{"WebhookVerifyContext", config.WebhookVerifyContext, config.WebhookVerify},
		{"AuditContext", config.AuditContext, config.Audit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.creator(parent)
			defer cancel()

			// Verify deadline exists
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Fatalf("%s should have deadline", tt.name)
			}

			// Verify deadline is approximately correct
			expectedDeadline := time.Now().Add(tt.timeout)
			diff := deadline.Sub(expectedDeadline).Abs()
			if diff > 100*time.Millisecond {
				t.Errorf("%s: deadline diff too large: %v (expected ~%v)",
					tt.name, diff, tt.timeout)
			}
		})
	}
}

func TestLedgerBudget(t *testing.T) {
	config := DefaultTimeoutConfig()

	// The ledger budget bounds one locking transaction: lock acquisition,
	// pool update, insert, and read-back verification. It must leave the
	// handler room to serialize a response.
	if config.HTTPHandler < config.Ledger+5*time.Second {
		t.Errorf("HTTPHandler (%v) leaves no response headroom beyond Ledger (%v)",
			config.HTTPHandler, config.Ledger)
	}

	// Webhook verification is pure CPU plus a clock check; it should stay
	// well under the ledger budget so reconciliation fits in one delivery.
	if config.WebhookVerify >= config.Ledger {
		t.Errorf("WebhookVerify (%v) should be < Ledger (%v)",
			config.WebhookVerify, config.Ledger)
	}
}
