package billing

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/services/ledger"
	"github.com/creditgate/billing/pkg/observability"
)

// CheckCredit answers the gating question: may this identity consume one
// use right now. Never mutates spending pools; unknown identities are
// auto-created with the free allowance.
func (h *Handler) CheckCredit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req checkRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.logger.Debug("credit check request",
		zap.String("oauth_provider", req.OAuthProvider),
		zap.String("external_id", req.ExternalID))

	decision, err := h.ledger.Check(r.Context(), ledger.CheckRequest{
		Identity: req.identity(),
		Profile:  req.profile(),
		Context:  req.Context,
	})
	if err != nil {
		observability.RecordLedgerOperation("check", "failed", time.Since(start).Seconds())
		h.respondError(w, r, err)
		return
	}

	observability.RecordCreditCheck(decision.HasCredit, reasonLabel(decision.Reason), decision.CreditsRemaining)
	observability.RecordLedgerOperation("check", "ok", time.Since(start).Seconds())
	h.writeJSON(w, http.StatusOK, decision)
}

// CreateCharge debits one use from the account's main pools. A replayed
// idempotency key answers 409 with the existing charge id in the header.
func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chargeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.logger.Debug("charge request",
		zap.String("oauth_provider", req.OAuthProvider),
		zap.String("external_id", req.ExternalID),
		zap.Int64("amount_minor", req.AmountMinor))

	result, err := h.ledger.Charge(r.Context(), ledger.ChargeRequest{
		Identity:       req.identity(),
		Profile:        req.profile(),
		Metadata:       req.Metadata,
		Currency:       req.Currency,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
		AmountMinor:    req.AmountMinor,
	})
	if err != nil {
		status := "failed"
		if domain.IsDomainError(err, domain.ErrorCodeInsufficientCredits) {
			status = "denied"
		}
		observability.RecordCharge("none", "main", status, 0, req.Currency)
		observability.RecordLedgerOperation("charge", status, time.Since(start).Seconds())
		h.respondError(w, r, err)
		return
	}

	if result.Replayed {
		observability.RecordCharge(chargePool(result.Charge), "main", "replayed",
			result.Charge.AmountMinor, result.Charge.Currency)
		observability.RecordLedgerOperation("charge", "replayed", time.Since(start).Seconds())
		w.Header().Set("X-Existing-Charge-ID", result.Charge.ID.String())
		h.writeJSON(w, http.StatusConflict, errorBody{Detail: "Charge already exists"})
		return
	}

	observability.RecordCharge(chargePool(result.Charge), "main", "created",
		result.Charge.AmountMinor, result.Charge.Currency)
	observability.RecordLedgerOperation("charge", "ok", time.Since(start).Seconds())
	h.writeJSON(w, http.StatusCreated, result.Charge)
}

// AddCredits adds funds to the account's paid pool. Accepted regardless of
// account status; a replayed key answers 409 with the existing credit id.
func (h *Handler) AddCredits(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req creditRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	creditType := domain.CreditType(req.TransactionType)
	if req.TransactionType == "" {
		creditType = domain.CreditTypeGrant
	}

	h.logger.Debug("credit request",
		zap.String("oauth_provider", req.OAuthProvider),
		zap.String("external_id", req.ExternalID),
		zap.String("transaction_type", string(creditType)),
		zap.Int64("amount_minor", req.AmountMinor))

	result, err := h.ledger.Credit(r.Context(), ledger.CreditRequest{
		ExternalTransactionID: req.ExternalTransactionID,
		Identity:              req.identity(),
		Profile:               req.profile(),
		Currency:              req.Currency,
		Description:           req.Description,
		IdempotencyKey:        req.IdempotencyKey,
		Type:                  creditType,
		AmountMinor:           req.AmountMinor,
		IsTest:                req.IsTest,
	})
	if err != nil {
		observability.RecordCredit(string(creditType), "failed", 0)
		observability.RecordLedgerOperation("credit", "failed", time.Since(start).Seconds())
		h.respondError(w, r, err)
		return
	}

	if result.Replayed {
		observability.RecordCredit(string(result.Credit.Type), "replayed", 0)
		observability.RecordLedgerOperation("credit", "replayed", time.Since(start).Seconds())
		w.Header().Set("X-Existing-Credit-ID", result.Credit.ID.String())
		h.writeJSON(w, http.StatusConflict, errorBody{Detail: "Credit already exists"})
		return
	}

	observability.RecordCredit(string(result.Credit.Type), "created", result.Credit.AmountMinor)
	observability.RecordLedgerOperation("credit", "ok", time.Since(start).Seconds())
	h.writeJSON(w, http.StatusCreated, result.Credit)
}

// ListTransactions serves the unified charge and credit history, newest
// first. Unknown identities get an empty page.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	identity := queryIdentity(r)
	limit := queryInt(r, "limit")
	offset := queryInt(r, "offset")

	page, err := h.ledger.ListTransactions(r.Context(), identity, limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// queryInt reads an integer query parameter, zero when absent or unparseable
func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

// chargePool labels the pool a charge consumed for metrics
func chargePool(c *domain.Charge) string {
	if c.UsedFree {
		return "free"
	}
	return "paid"
}

// reasonLabel maps denial reasons to bounded metric label values
func reasonLabel(reason *string) string {
	if reason == nil {
		return "ok"
	}
	switch *reason {
	case domain.CheckReasonSuspended:
		return "suspended"
	case domain.CheckReasonClosed:
		return "closed"
	case domain.CheckReasonExhausted:
		return "exhausted"
	default:
		return "other"
	}
}
