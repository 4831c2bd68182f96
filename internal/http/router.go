package http

import (
	"log"
	"net/http"

	"github.com/murmurapp/murmur/internal/auth"
	"github.com/murmurapp/murmur/internal/config"
	"github.com/murmurapp/murmur/internal/httputil"
	"github.com/murmurapp/murmur/internal/logging"
	"github.com/murmurapp/murmur/internal/message"
	"github.com/murmurapp/murmur/internal/suggest"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	cfg *config.Config,
	authHandler *auth.Handler,
	authMiddleware *auth.Middleware,
	messageHandler *message.Handler,
	suggestHandler *suggest.Handler,
	logger *logging.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	// Global middleware
	r.Use(SecurityHeaders)               // Security headers on all responses
	r.Use(middleware.Recoverer)          // Recover from panics
	r.Use(middleware.RequestID)          // Add request ID
	r.Use(middleware.RealIP)             // Set RemoteAddr to real IP
	r.Use(logging.RequestLogger(logger)) // Structured logging with request context
	r.Use(middleware.Compress(5))        // Compress responses

	// Public routes
	r.Get("/health", handleHealth)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/sign-up", authHandler.SignUp)
		r.Post("/verify-code", authHandler.VerifyCode)
		r.Post("/sign-in", authHandler.SignIn)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)

		// Verification bypass for local testing.
		// Production builds will not have this route at all
		if cfg.Server.IsDevelopment() {
			log.Println("Verification bypass enabled at /auth/skip-verification")
			r.Post("/skip-verification", authHandler.SkipVerification)
		}
	})

	r.Get("/check-username", authHandler.CheckUsername)

	// Anyone can drop a message into a recipient's inbox, no session needed
	r.Post("/u/{username}/messages", messageHandler.Send)

	r.Post("/suggest-messages", suggestHandler.Suggest)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)
		r.Get("/messages", messageHandler.List)
		r.Delete("/messages/{id}", messageHandler.Delete)
		r.Get("/accept-messages", messageHandler.GetAccepting)
		r.Post("/accept-messages", messageHandler.SetAccepting)
	})

	return r
}

// handleHealth is a simple health check endpoint
// @Summary      Health check
// @Description  Check if the API is running
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /health [get]
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, map[string]string{"status": "api is running"}, http.StatusOK)
}
