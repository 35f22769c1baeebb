package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"carhistory/internal/util"
)

// Response is the standard API envelope. Error carries a stable machine
// readable code; Message is for humans and may change without notice.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Stable error codes surfaced in the Error field.
const (
	CodeUnauthenticated    = "unauthenticated"
	CodeForbidden          = "forbidden"
	CodeInvalid            = "INVALID"
	CodeExpired            = "EXPIRED"
	CodeLocked             = "LOCKED"
	CodeRateLimit          = "RATE_LIMIT"
	CodeConsentRequired    = "CONSENT_REQUIRED"
	CodeInvalidRole        = "invalid_role"
	CodeSuperadminRequired = "superadmin_required"
	CodeUserNotFound       = "user_not_found"
	CodeTokenInvalid       = "token_invalid"
	CodeTokenExpired       = "token_expired"
	CodeTokenUsed          = "token_used"
	CodeNotFound           = "not_found"
	CodeBadRequest         = "bad_request"
	CodeInternal           = "internal_error"
)

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error:   code,
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, code, message string) {
	respondWithJSON(w, statusCode, errorResponse(code, message))
}
