package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"medidesk.org/internal/audit"
	"medidesk.org/internal/auth"
	"medidesk.org/internal/clinic"
	"medidesk.org/internal/identity"
	"medidesk.org/internal/obs"
)

// Error codes are a stable contract with clients; handlers never invent new
// ones inline.
const (
	codeInvalidCredentials = "AUTH_001"
	codeExpiredToken       = "AUTH_002"
	codeInsufficientPerms  = "AUTH_003"
	codeEmailExists        = "AUTH_004"
	codeInvalidToken       = "AUTH_005"

	codeInvalidInput  = "VAL_001"
	codeMissingField  = "VAL_002"
	codeInvalidFormat = "VAL_003"
	codeInvalidDate   = "VAL_004"

	codeNotFound    = "REQ_001"
	codeConflict    = "REQ_002"
	codeForbidden   = "REQ_003"
	codeBadRequest  = "REQ_004"
	codeUnavailable = "REQ_005"

	codeInternal = "SRV_001"
	codeDatabase = "SRV_002"
	codeTimeout  = "SRV_003"
	codeDown     = "SRV_004"
)

// apiError is the terminal error envelope: every failed response, whichever
// handler produced it, carries exactly this shape.
type apiError struct {
	Status    int               `json:"status"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp string            `json:"timestamp"`
	RequestID string            `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeErrorDetails(w, r, status, code, msg, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, msg string, details map[string]string) {
	writeJSON(w, status, apiError{
		Status:    status,
		Code:      code,
		Message:   msg,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

// handleDomainError translates expected domain errors into the envelope.
// Anything unrecognised is answered with a generic 500; the detail goes to
// the server log only.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, clinic.ErrInvalidInput), errors.Is(err, clinic.ErrBadTransition),
		errors.Is(err, clinic.ErrNotDoctor),
		errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrRoleNotAllowed):
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, err.Error())
	case errors.Is(err, clinic.ErrNotBookable):
		writeError(w, r, http.StatusBadRequest, codeInvalidDate, err.Error())
	case errors.Is(err, clinic.ErrNotFound), errors.Is(err, identity.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
	case errors.Is(err, identity.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, codeEmailExists, "email already registered")
	case errors.Is(err, clinic.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, clinic.ErrSlotTaken), errors.Is(err, clinic.ErrAlreadySettled):
		writeError(w, r, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, codeExpiredToken, "token expired")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid token")
	case errors.Is(err, identity.ErrTokenExpired):
		writeError(w, r, http.StatusBadRequest, codeExpiredToken, "reset token expired")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, codeTimeout, "request timed out")
	default:
		obs.LogEvent("error", map[string]any{
			"msg":        "unhandled error",
			"error":      err.Error(),
			"path":       r.URL.Path,
			"request_id": audit.RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
