package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"carhistory/internal/service"
	"carhistory/internal/util"
)

// AuthPort is the slice of AuthService the HTTP layer needs.
type AuthPort interface {
	RequestChallenge(ctx context.Context, req service.ChallengeRequest) (*service.ChallengeResult, error)
	VerifyChallenge(ctx context.Context, req service.VerifyRequest) (*service.VerifyResult, error)
	Logout(ctx context.Context, token, requestID string) error
}

// AuthHandler handles HTTP requests for challenge and session operations.
type AuthHandler struct {
	auth   AuthPort
	logger *zap.Logger
}

func NewAuthHandler(auth AuthPort, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type requestChallengeBody struct {
	Email string `json:"email"`
}

type verifyBody struct {
	ChallengeID string            `json:"challenge_id"`
	OTP         string            `json:"otp"`
	Email       string            `json:"email"`
	Consents    map[string]string `json:"consents"`
}

// RequestChallenge handles POST /auth/request. The response is 200 with a
// challenge id regardless of whether the address has an account or a limit
// tripped; only internal failures surface as errors.
func (h *AuthHandler) RequestChallenge(w http.ResponseWriter, r *http.Request) {
	var body requestChallengeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		respondWithError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body")
		return
	}

	result, err := h.auth.RequestChallenge(r.Context(), service.ChallengeRequest{
		Email:     util.SanitizeInput(body.Email),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		h.logger.Error("challenge request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to process request")
		return
	}

	data := map[string]any{"challenge_id": result.ChallengeID}
	if result.DevOTP != "" {
		data["dev_otp"] = result.DevOTP
	}
	respondWithJSON(w, http.StatusOK, successResponse(data, "If the address exists, a code has been sent"))
}

// Verify handles POST /auth/verify.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var body verifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChallengeID == "" || body.OTP == "" || body.Email == "" {
		respondWithError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body")
		return
	}

	result, err := h.auth.VerifyChallenge(r.Context(), service.VerifyRequest{
		ChallengeID:     body.ChallengeID,
		OTP:             body.OTP,
		Email:           util.SanitizeInput(body.Email),
		IP:              clientIP(r),
		UserAgent:       r.UserAgent(),
		RequestID:       middleware.GetReqID(r.Context()),
		ConsentVersions: body.Consents,
	})
	if err != nil {
		status, code := verifyStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("challenge verify failed", zap.Error(err))
		}
		respondWithError(w, status, code, "Verification failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]any{
		"access_token": result.Token,
		"token_type":   "bearer",
		"expires_at":   result.ExpiresAt,
		"actor":        result.Actor,
	}, "Session created"))
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, CodeUnauthenticated, "Missing bearer token")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(actor, ""))
}

// Logout handles POST /auth/logout. Always 200 for an authenticated caller.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFrom(r.Context())
	if err := h.auth.Logout(r.Context(), token, middleware.GetReqID(r.Context())); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to log out")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Session revoked"))
}

func verifyStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimit
	case errors.Is(err, service.ErrLocked):
		return http.StatusTooManyRequests, CodeLocked
	case errors.Is(err, service.ErrExpired):
		return http.StatusBadRequest, CodeExpired
	case errors.Is(err, service.ErrInvalid):
		return http.StatusBadRequest, CodeInvalid
	case errors.Is(err, service.ErrConsentRequired):
		return http.StatusForbidden, CodeConsentRequired
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
