package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"carhistory/internal/models"
)

// NewRouter wires every route behind its guards. Authorization is
// deny-by-default: nothing outside the public block is reachable without a
// session, and each protected group names the roles it admits.
func NewRouter(
	guard *Guard,
	authHandler *AuthHandler,
	adminHandler *AdminHandler,
	exportHandler *ExportHandler,
	logger *zap.Logger,
) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ExportTokenHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"carhistory"}`))
	})

	// Public authentication surface.
	router.Post("/auth/request", authHandler.RequestChallenge)
	router.Post("/auth/verify", authHandler.Verify)

	// Session-bound routes, any role.
	router.Group(func(r chi.Router) {
		r.Use(guard.Authenticate)
		r.Get("/auth/me", authHandler.Me)
		r.Post("/auth/logout", authHandler.Logout)
	})

	// Administration. Moderators are excluded even if the role list grows.
	router.Group(func(r chi.Router) {
		r.Use(guard.Authenticate)
		r.Use(guard.RequireRoles(models.RoleAdmin, models.RoleSuperadmin))
		r.Use(guard.ForbidModerator)
		r.Post("/admin/users/{userID}/role", adminHandler.ChangeRole)
	})

	// Grant issuance and the full export are superadmin-only.
	router.Group(func(r chi.Router) {
		r.Use(guard.Authenticate)
		r.Use(guard.RequireRoles(models.RoleSuperadmin))
		r.Use(guard.ForbidModerator)
		r.Post("/export/{resourceType}/{resourceID}/grant", exportHandler.IssueGrant)
		r.Get("/export/{resourceType}/{resourceID}/full", exportHandler.FullExport)
	})

	// Redacted reads for every signed-in role except moderator.
	router.Group(func(r chi.Router) {
		r.Use(guard.Authenticate)
		r.Use(guard.RequireRoles(
			models.RoleUser, models.RoleVIP, models.RoleDealer,
			models.RoleAdmin, models.RoleSuperadmin,
		))
		r.Use(guard.ForbidModerator)
		r.Get("/export/{resourceType}/{resourceID}", exportHandler.RedactedExport)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, CodeNotFound, "Endpoint not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, CodeBadRequest, "Method not allowed")
	})

	return router
}
