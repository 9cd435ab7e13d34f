package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lumina-home/lumina-core/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeTokenExpired = "token_expired"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps auth sentinel errors to HTTP responses. Unknown
// errors become a 500 without leaking internals.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUserInactive):
		writeUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrRefreshExpired):
		// Distinct from other 401s so clients know to re-authenticate
		// rather than retry with the same token.
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "token expired")
	case errors.Is(err, auth.ErrRefreshInvalid),
		errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrUnauthenticated):
		writeUnauthorized(w, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		writeForbidden(w, "insufficient permissions")
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, auth.ErrRoleNotFound),
		errors.Is(err, auth.ErrPermissionNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, auth.ErrUsernameExists),
		errors.Is(err, auth.ErrRoleExists),
		errors.Is(err, auth.ErrPermissionExists):
		writeConflict(w, err.Error())
	default:
		writeInternalError(w, "internal server error")
	}
}
