package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/roles"
	"github.com/wardenhq/warden/internal/users"
	"github.com/wardenhq/warden/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Config       *Config
	Logger       *slog.Logger
	RolesHandler *roles.Handler
	RBACHandler  *rbac.Handler
	UsersHandler *users.Handler
	AuditHandler *audit.Handler
	JobsHandler  *jobs.Handler
}

// NewRouter constructs the chi.Router with Warden defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/roles", func(r chi.Router) {
			params.RolesHandler.MountRoutes(r)
			params.RBACHandler.MountRoleRoutes(r)
		})
		r.Route("/permissions", params.RBACHandler.MountCatalogRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/audit/changes", params.AuditHandler.MountRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
