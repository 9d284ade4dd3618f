package billing

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/pkg/observability"
)

// HandleWebhook receives one payment event delivery from a provider. The raw
// body and signature header go to the reconciler untouched; signature
// failures answer 400 so the provider retries, anything verified answers 200
// even when the event is ignored.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	provider := chi.URLParam(r, "provider")

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		observability.RecordWebhookEvent(provider, "unknown", "rejected", time.Since(start).Seconds())
		h.respondError(w, r, domain.NewDomainError(domain.ErrorCodeValidationFailed, "Unreadable webhook body"))
		return
	}

	outcome, err := h.webhooks.Process(r.Context(), provider, payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		observability.RecordWebhookEvent(provider, "unknown", "rejected", time.Since(start).Seconds())
		h.respondError(w, r, err)
		return
	}

	h.logger.Info("webhook processed",
		zap.String("provider", provider),
		zap.String("event_id", outcome.EventID),
		zap.String("status", outcome.Status))

	observability.RecordWebhookEvent(provider, string(outcome.Kind), outcome.Status, time.Since(start).Seconds())
	h.writeJSON(w, http.StatusOK, outcome)
}
