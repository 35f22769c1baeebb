package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"carhistory/internal/models"
	"carhistory/internal/service"
)

// RolePort is the slice of RoleService the HTTP layer needs.
type RolePort interface {
	ChangeRole(ctx context.Context, actor models.Actor, targetUserID, newRole, reason, requestID string) (*service.RoleChange, error)
}

// AdminHandler handles administrative role assignment.
type AdminHandler struct {
	roles  RolePort
	logger *zap.Logger
}

func NewAdminHandler(roles RolePort, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{roles: roles, logger: logger}
}

type changeRoleBody struct {
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

// ChangeRole handles POST /admin/users/{userID}/role.
func (h *AdminHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, CodeUnauthenticated, "Missing bearer token")
		return
	}

	targetUserID := chi.URLParam(r, "userID")
	var body changeRoleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Role == "" {
		respondWithError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body")
		return
	}

	change, err := h.roles.ChangeRole(r.Context(), actor, targetUserID, body.Role, body.Reason, middleware.GetReqID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			respondWithError(w, http.StatusBadRequest, CodeInvalidRole, "Unknown role")
		case errors.Is(err, service.ErrSuperadminRequired):
			respondWithError(w, http.StatusForbidden, CodeSuperadminRequired, "Superadmin role changes require a superadmin")
		case errors.Is(err, service.ErrUserNotFound):
			respondWithError(w, http.StatusNotFound, CodeUserNotFound, "User not found")
		default:
			h.logger.Error("role change failed", zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, CodeInternal, "Failed to change role")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(change, "Role updated"))
}
