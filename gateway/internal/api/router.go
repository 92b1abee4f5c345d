package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/gateway/internal/auth"
)

// RouterConfig holds all dependencies needed to build the HTTP router. It
// is populated in main.go after every component is initialized.
type RouterConfig struct {
	JWTManager     *auth.JWTManager
	AdminHandler   *AdminHandler
	SyncAPI        *SyncAPIHandler
	PendingActions *PendingActionHandler
	SyncAPIKey     string
	TunnelEndpoint http.Handler
	MetricsHandler http.Handler
	Logger         *zap.Logger
}

// NewRouter builds and returns the fully configured Chi router. It mounts
// two independent route groups under /v1: the admin console (JWT-guarded,
// for the human operator) and the narrow synchronous API (API-key-guarded,
// for the rest of the cloud platform).
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if cfg.TunnelEndpoint != nil {
		r.Handle("/v1/tunnel", cfg.TunnelEndpoint)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1/admin", func(r chi.Router) {
		// --- Public: login/refresh/logout ---
		r.Post("/login", cfg.AdminHandler.Login)
		r.Post("/refresh", cfg.AdminHandler.RefreshToken)
		r.Post("/logout", cfg.AdminHandler.Logout)

		// --- Authenticated: routing config CRUD ---
		r.Group(func(r chi.Router) {
			r.Use(AuthenticateAdmin(cfg.JWTManager))

			r.Route("/databases", func(r chi.Router) {
				r.Get("/", cfg.AdminHandler.ListDatabases)
				r.Post("/", cfg.AdminHandler.CreateDatabase)
				r.Get("/{database_id}", cfg.AdminHandler.GetDatabase)
				r.Patch("/{database_id}", cfg.AdminHandler.UpdateDatabase)
				r.Delete("/{database_id}", cfg.AdminHandler.DeleteDatabase)
			})
		})
	})

	// --- Synchronous API — guarded by a shared API key, not JWT. ---
	r.Group(func(r chi.Router) {
		r.Use(RequireAPIKey(cfg.SyncAPIKey))

		r.Post("/v1/query", cfg.SyncAPI.ExecuteQuery)
		r.Post("/v1/api", cfg.SyncAPI.ExecuteAPI)
		r.Post("/v1/employee", cfg.SyncAPI.LookupEmployee)
		r.Get("/v1/status/{database_id}", cfg.SyncAPI.ConnectionStatus)
		r.Get("/v1/status/{database_id}/connected", cfg.SyncAPI.IsConnected)

		r.Route("/v1/actions", func(r chi.Router) {
			r.Post("/", cfg.PendingActions.Create)
			r.Get("/{action_id}", cfg.PendingActions.Get)
			r.Post("/{action_id}/decide", cfg.PendingActions.Decide)
			r.Post("/{action_id}/executed", cfg.PendingActions.MarkExecuted)
		})
	})

	return r
}
