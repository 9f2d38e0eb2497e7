// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/exceva/property-ledger/internal/shared"
)

// RespondError maps ledger errors to HTTP responses using RFC7807.
// Validation problems are listed individually so the caller can show all of
// them at once.
func RespondError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	var serr *shared.StateError
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
			Type:     ProblemValidation,
			Title:    "Validation Failed",
			Status:   http.StatusUnprocessableEntity,
			Detail:   shared.UserSafeMessage(err),
			Problems: verr.Problems,
		})
	case errors.As(err, &serr):
		JSON(w, http.StatusConflict, ProblemDetail{
			Type:   ProblemState,
			Title:  "Invalid State",
			Status: http.StatusConflict,
			Detail: serr.Reason,
			State:  serr.State,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrIdempotencyConflict):
		JSON(w, http.StatusConflict, ProblemDetail{Type: ProblemDuplicate, Title: "Duplicate", Status: http.StatusConflict, Detail: shared.UserSafeMessage(err)})
	case errors.Is(err, shared.ErrLockHeld):
		JSON(w, http.StatusConflict, ProblemDetail{Type: ProblemInFlight, Title: "In Flight", Status: http.StatusConflict, Detail: shared.UserSafeMessage(err)})
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
