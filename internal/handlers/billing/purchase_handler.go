package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/services/purchase"
	"github.com/creditgate/billing/pkg/observability"
)

// CreatePurchase opens a provider payment intent for one purchase of
// credits. The account is upserted first, so an unknown identity can buy
// before it ever checks.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.logger.Debug("purchase request",
		zap.String("oauth_provider", req.OAuthProvider),
		zap.String("external_id", req.ExternalID))

	result, err := h.purchases.CreatePurchase(r.Context(), purchase.Request{
		Identity:  req.identity(),
		Profile:   req.profile(),
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		observability.RecordPurchaseIntent(h.provider, "failed")
		h.respondError(w, r, err)
		return
	}

	observability.RecordPurchaseIntent(h.provider, "created")
	h.writeJSON(w, http.StatusCreated, result)
}

// GetPurchaseStatus polls the provider for a payment's current state,
// serving the local record when the provider is unreachable
func (h *Handler) GetPurchaseStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")

	result, err := h.purchases.GetStatus(r.Context(), paymentID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
