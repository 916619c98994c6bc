// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// ErrBadRequest marks malformed requests that never reached the domain.
var ErrBadRequest = errors.New("malformed request")

// StatusOf maps domain errors to HTTP status codes.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, internalShared.ErrMissingActor), errors.Is(err, internalShared.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrPostingFailed):
		if errors.Is(err, shared.ErrNotFound) {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrUnbalanced):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, shared.ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	problem := ProblemDetail{Title: http.StatusText(status), Status: status, Detail: err.Error()}
	switch {
	case status == http.StatusUnauthorized:
		problem.Title = "Unauthorized"
	case errors.Is(err, shared.ErrPostingFailed):
		problem.Title = "Posting Failed"
		problem.Type = "posting-failed"
		if status == http.StatusInternalServerError {
			problem.Detail = "posting failed; no balances were changed"
		}
	case errors.Is(err, shared.ErrUnbalanced):
		problem.Title = "Unbalanced Transaction"
		problem.Type = "unbalanced"
	case errors.Is(err, shared.ErrInvalidState):
		problem.Title = "Invalid State"
		problem.Type = "invalid-state"
	case status == http.StatusBadRequest:
		problem.Title = "Validation Failed"
		problem.Type = "validation"
		var verr *shared.ValidationError
		if errors.As(err, &verr) && verr.Field != "" {
			problem.Errors = map[string]string{verr.Field: verr.Reason}
		}
		var ferr *FieldErrors
		if errors.As(err, &ferr) {
			problem.Errors = ferr.Fields
		}
	case status == http.StatusInternalServerError:
		problem.Title = "Internal Error"
		problem.Detail = ""
	}
	JSON(w, status, problem)
}
