package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/services/account"
)

// CreateAccount registers an identity, seeding the free allowance and the
// configured defaults. Re-registering an existing identity returns the
// stored account unchanged with 200 instead of 201.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.logger.Debug("account create request",
		zap.String("oauth_provider", req.OAuthProvider),
		zap.String("external_id", req.ExternalID))

	acct, created, err := h.accounts.Upsert(r.Context(), account.CreateRequest{
		Identity:            req.identity(),
		Profile:             req.profile(),
		Currency:            req.Currency,
		PlanName:            req.PlanName,
		InitialBalanceMinor: req.InitialBalanceMinor,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, acct)
}

// GetAccount fetches the account for the identity in the path. The provider
// segment carries the oauth: prefix, URL-encoded by the caller.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	identity := domain.Identity{
		OAuthProvider: chi.URLParam(r, "provider"),
		ExternalID:    chi.URLParam(r, "external_id"),
	}

	acct, err := h.accounts.Get(r.Context(), identity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, acct)
}
