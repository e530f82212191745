package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dealstream/api/internal/api/handler"
	customMiddleware "github.com/dealstream/api/internal/api/middleware"
	"github.com/dealstream/api/internal/config"
	"github.com/dealstream/api/internal/realtime"
	"github.com/dealstream/api/internal/repository/postgres"
	"github.com/dealstream/api/internal/security"
	"github.com/dealstream/api/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	cfg *config.Config,
	db *postgres.DB,
	notificationStore service.NotificationStore,
	registry realtime.RoomRegistry,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Token issuer: distinct secrets for the two token kinds
	issuer := security.NewTokenIssuer(
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	// Repositories
	userRepo := postgres.NewUserRepository(db)

	// Services
	authService := service.NewAuthService(userRepo, issuer)
	notificationService := service.NewNotificationService(notificationStore, userRepo, registry)

	// Handlers
	authHandler := handler.NewAuthHandler(
		authService,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
		cfg.Auth.SecureCookies,
	)
	notificationHandler := handler.NewNotificationHandler(notificationService)

	// Session guard
	authMiddleware := customMiddleware.NewAuth(issuer, authService)

	// Realtime endpoint verifies the access token itself at handshake time.
	wsHandler := realtime.NewWSHandler(registry, issuer, cfg.Realtime.WriteTimeout)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(db))

		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/users/me", authHandler.Me)

			r.Route("/users/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.ListUnread)
				r.Patch("/read-all", notificationHandler.MarkAllRead)
				r.Patch("/{notificationID}/read", notificationHandler.MarkRead)
				r.Delete("/{notificationID}", notificationHandler.Delete)
			})
		})
	})

	r.Handle("/ws", wsHandler)

	return r
}
