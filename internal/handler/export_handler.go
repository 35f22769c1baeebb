package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"carhistory/internal/encryption"
	"carhistory/internal/models"
	"carhistory/internal/service"
)

// ExportTokenHeader carries the grant token for the full export route. The
// token rides a header, not the URL, so it never lands in access logs.
const ExportTokenHeader = "X-Export-Token"

// ExportPort is the slice of ExportService the HTTP layer needs.
type ExportPort interface {
	IssueGrant(ctx context.Context, actor models.Actor, resourceType, resourceID string, ttl time.Duration, uses int, requestID string) (*service.GrantIssued, error)
	ConsumeFullExport(ctx context.Context, actor models.Actor, resourceType, resourceID, token, requestID string) (*encryption.EncryptedPayload, error)
	RedactedExport(ctx context.Context, resourceID string) (map[string]any, error)
}

// ExportHandler serves grant issuance plus the redacted and full export
// shapes.
type ExportHandler struct {
	exports ExportPort
	logger  *zap.Logger
}

func NewExportHandler(exports ExportPort, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, logger: logger}
}

type issueGrantBody struct {
	TTLSeconds int `json:"ttl_seconds"`
	Uses       int `json:"uses"`
}

// IssueGrant handles POST /export/{resourceType}/{resourceID}/grant.
func (h *ExportHandler) IssueGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, CodeUnauthenticated, "Missing bearer token")
		return
	}

	var body issueGrantBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body")
		return
	}

	grant, err := h.exports.IssueGrant(r.Context(), actor,
		chi.URLParam(r, "resourceType"), chi.URLParam(r, "resourceID"),
		time.Duration(body.TTLSeconds)*time.Second, body.Uses,
		middleware.GetReqID(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrResourceNotFound) {
			respondWithError(w, http.StatusNotFound, CodeNotFound, "Resource not found")
			return
		}
		h.logger.Error("grant issue failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to issue grant")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(map[string]any{
		"grant_id":       grant.GrantID,
		"export_token":   grant.Token,
		"expires_at":     grant.ExpiresAt,
		"remaining_uses": grant.RemainingUses,
	}, "Grant issued"))
}

// FullExport handles GET /export/{resourceType}/{resourceID}/full.
func (h *ExportHandler) FullExport(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, CodeUnauthenticated, "Missing bearer token")
		return
	}
	token := r.Header.Get(ExportTokenHeader)
	if token == "" {
		respondWithError(w, http.StatusBadRequest, CodeBadRequest, "Missing "+ExportTokenHeader+" header")
		return
	}

	payload, err := h.exports.ConsumeFullExport(r.Context(), actor,
		chi.URLParam(r, "resourceType"), chi.URLParam(r, "resourceID"),
		token, middleware.GetReqID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenInvalid):
			respondWithError(w, http.StatusForbidden, CodeTokenInvalid, "Unknown grant token")
		case errors.Is(err, service.ErrTokenExpired):
			respondWithError(w, http.StatusForbidden, CodeTokenExpired, "Grant token expired")
		case errors.Is(err, service.ErrTokenUsed):
			respondWithError(w, http.StatusForbidden, CodeTokenUsed, "Grant token exhausted")
		case errors.Is(err, service.ErrResourceNotFound):
			respondWithError(w, http.StatusNotFound, CodeNotFound, "Resource not found")
		default:
			h.logger.Error("full export failed", zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to export")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(payload, "Encrypted export"))
}

// RedactedExport handles GET /export/{resourceType}/{resourceID}.
func (h *ExportHandler) RedactedExport(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "resourceType") != service.ResourceTypeVehicle {
		respondWithError(w, http.StatusNotFound, CodeNotFound, "Unknown resource type")
		return
	}

	row, err := h.exports.RedactedExport(r.Context(), chi.URLParam(r, "resourceID"))
	if err != nil {
		if errors.Is(err, service.ErrResourceNotFound) {
			respondWithError(w, http.StatusNotFound, CodeNotFound, "Resource not found")
			return
		}
		h.logger.Error("redacted export failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to export")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(row, ""))
}
