package httpx

import (
	"errors"
	"net/http"

	"github.com/wardenhq/warden/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// ConcurrentModification maps to 409 so callers know a retry is reasonable;
// AuditWriteFailed and CacheInconsistent are internal faults and deliberately
// carry no detail.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicateName):
		Problem(w, http.StatusConflict, "Duplicate Name", err.Error())
	case errors.Is(err, shared.ErrSelfParent), errors.Is(err, shared.ErrCycleDetected):
		Problem(w, http.StatusConflict, "Cycle Detected", err.Error())
	case errors.Is(err, shared.ErrRoleReferenced):
		Problem(w, http.StatusConflict, "Role Referenced", err.Error())
	case errors.Is(err, shared.ErrConcurrentModification):
		Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
