// Package httpapi assembles the HTTP surface: public webhook ingestion,
// operator authentication, and the authenticated admin API.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "shopstream/internal/auth/handler"
	authmodels "shopstream/internal/auth/models"
	"shopstream/internal/auth/tokens"
	eventhandler "shopstream/internal/event/handler"
	"shopstream/internal/platform/middleware"
	tenanthandler "shopstream/internal/tenant/handler"
	webhookhandler "shopstream/internal/webhook/handler"
)

// Deps carries the handlers and cross-cutting pieces the router mounts.
type Deps struct {
	Webhooks *webhookhandler.Handler
	Tenants  *tenanthandler.Handler
	Events   *eventhandler.Handler
	Auth     *authhandler.Handler
	Tokens   *tokens.Manager
	Health   http.HandlerFunc
	Logger   *slog.Logger
}

// NewRouter builds the chi router with the shared middleware chain.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))

	r.Get("/healthz", deps.Health)
	r.Handle("/metrics", promhttp.Handler())

	deps.Webhooks.Register(r)
	deps.Auth.RegisterPublic(r)

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.RequireAuth(deps.Tokens))

		admin.Group(func(ops chi.Router) {
			ops.Use(middleware.RequireRole(authmodels.RoleOperator))
			deps.Events.Register(ops)
		})

		admin.Group(func(root chi.Router) {
			root.Use(middleware.RequireRole(authmodels.RoleAdmin))
			deps.Tenants.Register(root)
			deps.Auth.RegisterAdmin(root)
		})
	})

	return r
}
