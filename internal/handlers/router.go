package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/julienbonastre/fullstock/internal/middleware"
)

// RouterConfig holds the configuration for creating a router.
type RouterConfig struct {
	Handler        *Handler
	AllowedOrigins []string
	StaticDir      string // built web app served at /, optional
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	h := cfg.Handler
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", middleware.UserHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.HealthCheck)
		r.Get("/oauth/callback", h.OAuthCallback)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			registerUserRoutes(r, h)
		})
	})

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}

// registerUserRoutes mounts the routes that act on the calling user
func registerUserRoutes(r chi.Router, h *Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Get("/url", h.GetAuthURL)
		r.Get("/status", h.GetAuthStatus)
		r.Post("/demo", h.ConnectDemo)
		r.Delete("/", h.Logout)
	})

	r.Post("/sync", h.SyncNow)
	r.Get("/sync/history", h.GetSyncHistory)
	r.Post("/import", h.ImportListings)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.GetProducts)
		r.Post("/", h.CreateProduct)
		r.Put("/{id}/factory-stock", h.UpdateFactoryStock)
	})

	r.Route("/batches", func(r chi.Router) {
		r.Get("/", h.GetBatches)
		r.Post("/", h.CreateBatch)
		r.Post("/{id}/receive", h.ReceiveBatch)
		r.Post("/{id}/cancel", h.CancelBatch)
	})

	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	r.Get("/dashboard", h.GetDashboard)
}
