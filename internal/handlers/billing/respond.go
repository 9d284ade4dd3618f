package billing

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/domain"
)

// maxBodyBytes caps request bodies; billing payloads are small JSON objects
const maxBodyBytes = 1 << 20

// errorBody is the error envelope. Detail carries the human-readable
// message; Details carries machine-readable context such as the purchase
// hint on an insufficient-credits denial.
type errorBody struct {
	Detail  string                 `json:"detail"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeJSON serializes v with the given status. Encoding failures are not
// recoverable at this point; the status line has already been sent.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encoding failed", zap.Error(err))
	}
}

// respondError maps a service error to its HTTP status and error envelope.
// All handlers funnel errors through here so the code-to-status mapping
// lives in exactly one place.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Detail: "Internal server error"}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		status = statusForCode(domainErr.Code)
		body.Detail = domainErr.Message
		if len(domainErr.Details) > 0 {
			body.Details = domainErr.Details
		}
	} else if domain.IsConnectivityError(err) {
		// Transaction begin/commit failures reach here unwrapped; a
		// database outage is retryable, not an internal fault
		status = http.StatusServiceUnavailable
		body.Detail = "Service temporarily unavailable"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		h.logger.Warn("request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.String("code", string(domain.GetErrorCode(err))))
	}

	h.writeJSON(w, status, body)
}

// statusForCode maps domain error codes to HTTP statuses
func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeValidationFailed,
		domain.ErrorCodeValidationAmountInvalid,
		domain.ErrorCodeValidationMissingField:
		return http.StatusUnprocessableEntity
	case domain.ErrorCodeAccountNotFound,
		domain.ErrorCodePaymentNotFound:
		return http.StatusNotFound
	case domain.ErrorCodeAccountSuspended,
		domain.ErrorCodeAccountClosed:
		return http.StatusForbidden
	case domain.ErrorCodeInsufficientCredits:
		return http.StatusPaymentRequired
	case domain.ErrorCodeIdempotencyConflict:
		return http.StatusConflict
	case domain.ErrorCodeSignatureInvalid:
		return http.StatusBadRequest
	case domain.ErrorCodeProviderError,
		domain.ErrorCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody unmarshals a JSON request body into dst. Malformed JSON is a
// validation error (422), matching the validation failures the services
// raise for bad field values.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "Malformed JSON body")
	}
	return nil
}
