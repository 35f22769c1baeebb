package handler

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"carhistory/internal/audit"
	"carhistory/internal/models"
	"carhistory/internal/util"
)

type contextKey string

const (
	actorKey contextKey = "actor"
	tokenKey contextKey = "session_token"
)

// ActorResolver maps a bearer token to the acting identity.
type ActorResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.Actor, error)
}

// Guard owns the authentication and authorization middleware. Authorization
// is deny-by-default: a route with no explicit role list is reachable only
// if it was deliberately registered as public.
type Guard struct {
	resolver ActorResolver
	trail    audit.Recorder
	logger   *zap.Logger
}

func NewGuard(resolver ActorResolver, trail audit.Recorder, logger *zap.Logger) *Guard {
	return &Guard{resolver: resolver, trail: trail, logger: logger}
}

// Authenticate resolves the Authorization bearer token into an Actor and
// stores it on the request context. No token or a bad token is a 401.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, CodeUnauthenticated, "Missing bearer token")
			return
		}
		actor, err := g.resolver.ResolveSession(r.Context(), token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, CodeUnauthenticated, "Invalid or expired session")
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, *actor)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles allows only the named roles through. Runs after Authenticate.
func (g *Guard) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, CodeUnauthenticated, "Missing bearer token")
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				g.deny(r, actor)
				respondWithError(w, http.StatusForbidden, CodeForbidden, "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ForbidModerator blocks moderators from route groups outside their content
// duties. Layered on top of RequireRoles so a future role list change cannot
// silently reopen those groups to moderators.
func (g *Guard) ForbidModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := ActorFrom(r.Context()); ok && actor.Role == models.RoleModerator {
			g.deny(r, actor)
			respondWithError(w, http.StatusForbidden, CodeForbidden, "Route not available to moderators")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) deny(r *http.Request, actor models.Actor) {
	if err := g.trail.Record(r.Context(), audit.Entry{
		Action:      models.ActionAccessDenied,
		Result:      models.ResultDenied,
		ActorUserID: actor.UserID,
		TargetID:    r.URL.Path,
		RequestID:   middleware.GetReqID(r.Context()),
	}); err != nil {
		g.logger.Error("failed to audit access denial", zap.Error(err))
	}
}

// ActorFrom returns the authenticated actor stored by Authenticate.
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}

func sessionTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// clientIP prefers the RealIP middleware result and falls back to the raw
// remote address. RemoteAddr is a bare IP once RealIP has rewritten it, so
// a failed host:port split means the value already is the address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LoggerMiddleware emits one structured log line per request.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
