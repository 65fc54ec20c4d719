package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/coordinote/server/internal/auth"
	"github.com/coordinote/server/internal/http/handlers"
	"github.com/coordinote/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	authHandler *handlers.AuthHandler,
	universeHandler *handlers.UniverseHandler,
	messageHandler *handlers.MessageHandler,
	locationHandler *handlers.LocationHandler,
	sessions *auth.Service,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Post("/users/register", authHandler.HandleRegister)
	r.Post("/users/login", authHandler.HandleLogin)

	// The catalog is public map data; everything universe- or
	// message-scoped requires a session.
	r.Get("/locations", locationHandler.HandleList)

	// The message routes carry their own session validation inside the
	// visibility engine so failures map onto its decision taxonomy.
	r.Get("/messages/nearby", messageHandler.HandleNearby)
	r.Post("/messages", messageHandler.HandleCreate)
	r.Post("/messages/{mID}/open", messageHandler.HandleOpen)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessions))
		r.Get("/universes", universeHandler.HandleList)
		r.Post("/universes", universeHandler.HandleCreate)
		r.Post("/universes/{uniID}/join", universeHandler.HandleJoin)
		r.Post("/universes/{uniID}/leave", universeHandler.HandleLeave)
	})

	return r
}
