package billing

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/services/ledger"
	"github.com/creditgate/billing/pkg/observability"
)

// ChargeTool debits one product use: product free pool first, product paid
// pool second, then the main paid pool at the request's amount. Replays
// answer 201 with the original outcome, indistinguishable from the first
// run.
func (h *Handler) ChargeTool(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req toolChargeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.logger.Debug("tool charge request",
		zap.String("oauth_provider", req.OAuthProvider),
		zap.String("external_id", req.ExternalID),
		zap.String("product_type", req.ProductType))

	result, err := h.ledger.ChargeProduct(r.Context(), ledger.ProductChargeRequest{
		Identity:       req.identity(),
		ProductType:    req.ProductType,
		IdempotencyKey: req.IdempotencyKey,
		AmountMinor:    req.AmountMinor,
		RequestID:      req.RequestID,
	})
	if err != nil {
		status := "failed"
		if domain.IsDomainError(err, domain.ErrorCodeInsufficientCredits) {
			status = "denied"
		}
		observability.RecordCharge("none", req.ProductType, status, 0, "")
		observability.RecordLedgerOperation("product_charge", status, time.Since(start).Seconds())
		h.respondError(w, r, err)
		return
	}

	pool := result.Usage.Pool
	if result.Replayed {
		observability.RecordCharge(string(pool), req.ProductType, "replayed", 0, "")
		observability.RecordLedgerOperation("product_charge", "replayed", time.Since(start).Seconds())
	} else {
		observability.RecordCharge(string(pool), req.ProductType, "created",
			result.Usage.CostMinor, result.Charge.Currency)
		observability.RecordLedgerOperation("product_charge", "ok", time.Since(start).Seconds())
	}

	paidCredits := result.Inventory.PaidRemaining
	if pool == domain.PoolSourceMainPaid {
		paidCredits = result.MainPaidAfter
	}
	h.writeJSON(w, http.StatusCreated, toolChargeResponse{
		Success:       true,
		HasCredit:     result.HasMoreCredit,
		UsedFree:      pool == domain.PoolSourceProductFree,
		UsedPaid:      pool == domain.PoolSourceProductPaid || pool == domain.PoolSourceMainPaid,
		CostMinor:     result.Usage.CostMinor,
		FreeRemaining: result.Inventory.FreeRemaining,
		PaidCredits:   paidCredits,
		TotalUses:     result.Inventory.TotalUses,
	})
}

// GetToolBalance reports the pools for one product. Accounts that never
// used the product see the config seeds; unknown identities get 404.
func (h *Handler) GetToolBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.ledger.GetProductBalance(r.Context(), queryIdentity(r), chi.URLParam(r, "product_type"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// GetAllToolBalances reports the pools for every configured product
func (h *Handler) GetAllToolBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledger.GetAllProductBalances(r.Context(), queryIdentity(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toolBalancesResponse{Balances: balances})
}

// CheckTool answers whether one more use of the product would succeed,
// without touching any pool
func (h *Handler) CheckTool(w http.ResponseWriter, r *http.Request) {
	check, err := h.ledger.CheckProduct(r.Context(), queryIdentity(r), chi.URLParam(r, "product_type"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, check)
}
