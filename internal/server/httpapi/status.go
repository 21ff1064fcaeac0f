package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
)

// StatusFor maps a failure to its HTTP status. It is the only place where
// error kinds become status codes.
func StatusFor(err error) int {
	switch common.KindOf(err) {
	case common.KindValidation, common.KindInvalidIdentifier, common.KindCheckDigitMismatch:
		return http.StatusBadRequest
	case common.KindMissingCredential, common.KindMalformedCredential, common.KindExpired,
		common.KindSignatureInvalid, common.KindTokenMismatch, common.KindUserNotFound:
		return http.StatusUnauthorized
	case common.KindForbidden:
		return http.StatusForbidden
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindDuplicateTenant:
		return http.StatusConflict
	case common.KindStorageUnavailable, common.KindKeySetUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the caller-facing text of err. Unclassified failures
// never leak their cause.
func errorMessage(err error) string {
	if common.KindOf(err) == common.KindUnexpected {
		return "internal error"
	}
	return common.Message(err)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorBody{Error: errorMessage(err)})
}
