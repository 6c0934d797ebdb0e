package api

import (
	"net/http"

	"github.com/example/storefront-cart/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(handlers *Handlers, sessions *SessionHandlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Tracing)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", handlers.Healthz)

	r.Route("/session", func(r chi.Router) {
		r.Use(middleware.OptionalSession(sessions.auth))
		r.Post("/", sessions.Create)
		r.Post("/register", sessions.Register)
		r.Post("/login", sessions.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(sessions.auth))

		r.Get("/cart", handlers.GetCart)
		r.Get("/cart/stream", handlers.StreamCart)
		r.Post("/cart/items", handlers.AddItem)
		r.Patch("/cart/items/{merchandiseID}", handlers.UpdateItem)
		r.Delete("/cart/items/{merchandiseID}", handlers.RemoveItem)
		r.Post("/checkout", handlers.Checkout)
	})

	return r
}
