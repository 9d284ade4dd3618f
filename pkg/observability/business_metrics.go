package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Credit check metrics
	creditChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_checks_total",
		Help: "Total number of credit check decisions",
	}, []string{
		"outcome", // allowed, denied
		"reason",  // ok, suspended, closed, exhausted
	})

	checkCreditsRemaining = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credit_check_credits_remaining",
		Help:    "Paid credits remaining at check time (pool depletion signal)",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	}, []string{
		"outcome",
	})

	// Charge metrics
	chargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charges_total",
		Help: "Total number of charges by pool consumed",
	}, []string{
		"pool",    // free, paid, product_free, product_paid, main_paid; none when denied/failed
		"product", // main, web_search, image_gen, ...
		"status",  // created, replayed, denied, failed
	})

	chargeAmountMinor = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charge_amount_minor_total",
		Help: "Total charged amount in minor units",
	}, []string{
		"product",
		"currency",
	})

	// Credit (grant) metrics
	creditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_total",
		Help: "Total number of credit grants",
	}, []string{
		"type",   // purchase, grant, refund, adjustment
		"status", // created, replayed, failed
	})

	creditUsesGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_uses_granted_total",
		Help: "Total paid uses added to accounts",
	}, []string{
		"type",
	})

	// Ledger operation duration (end-to-end, includes row lock wait)
	ledgerOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Time to complete a ledger operation (end-to-end)",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{
		"operation", // check, charge, credit, product_charge
		"status",
	})

	// Purchase intent metrics
	purchaseIntentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_intents_total",
		Help: "Total purchase intents created",
	}, []string{
		"provider", // stripe
		"status",   // created, failed
	})

	// Inbound webhook metrics
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total webhook events received from payment providers",
	}, []string{
		"provider",
		"kind",    // payment_succeeded, payment_failed, refund, ignored
		"outcome", // success, acknowledged, ignored, rejected
	})

	webhookProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_duration_seconds",
		Help:    "Time to verify and reconcile a webhook event",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{
		"provider",
	})

	// Check audit trail metrics
	checkAuditWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "check_audit_writes_total",
		Help: "Total check audit records written",
	}, []string{
		"status", // ok, error
	})

	checkAuditDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "check_audit_dropped_total",
		Help: "Check audit records dropped because the queue was full",
	})

	checkAuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "check_audit_queue_depth",
		Help: "Check audit records waiting in the queue",
	})
)

// RecordCreditCheck records a credit check decision.
// This is the primary gating metric: denial rate by reason drives both
// alerting and the purchase conversion funnel.
func RecordCreditCheck(allowed bool, reason string, creditsRemaining int64) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	if reason == "" {
		reason = "ok"
	}
	creditChecksTotal.WithLabelValues(outcome, reason).Inc()
	checkCreditsRemaining.WithLabelValues(outcome).Observe(float64(creditsRemaining))
}

// RecordCharge records a charge attempt and the pool that absorbed it
func RecordCharge(pool, product, status string, amountMinor int64, currency string) {
	chargesTotal.WithLabelValues(pool, product, status).Inc()
	if status == "created" {
		chargeAmountMinor.WithLabelValues(product, currency).Add(float64(amountMinor))
	}
}

// RecordCredit records a credit grant attempt
func RecordCredit(creditType, status string, uses int64) {
	creditsTotal.WithLabelValues(creditType, status).Inc()
	if status == "created" {
		creditUsesGranted.WithLabelValues(creditType).Add(float64(uses))
	}
}

// RecordLedgerOperation records end-to-end duration of a ledger operation
func RecordLedgerOperation(operation, status string, duration float64) {
	ledgerOperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordPurchaseIntent records a purchase intent creation attempt
func RecordPurchaseIntent(provider, status string) {
	purchaseIntentsTotal.WithLabelValues(provider, status).Inc()
}

// RecordWebhookEvent records an inbound provider webhook and its outcome
func RecordWebhookEvent(provider, kind, outcome string, duration float64) {
	webhookEventsTotal.WithLabelValues(provider, kind, outcome).Inc()
	webhookProcessingDuration.WithLabelValues(provider).Observe(duration)
}

// RecordCheckAuditWrite records a check audit insert result
func RecordCheckAuditWrite(status string) {
	checkAuditWritesTotal.WithLabelValues(status).Inc()
}

// RecordCheckAuditDropped records a check audit record lost to backpressure
func RecordCheckAuditDropped() {
	checkAuditDroppedTotal.Inc()
}

// SetCheckAuditQueueDepth updates the audit queue depth gauge
func SetCheckAuditQueueDepth(depth int) {
	checkAuditQueueDepth.Set(float64(depth))
}
