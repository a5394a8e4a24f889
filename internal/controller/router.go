package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sharetube/roomsync/pkg/rest"
)

func (c Controller) Mux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(rest.RequestID)
	r.Use(rest.RequestLogger(c.logger))
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(c.authMw)

		r.Route("/api", func(r chi.Router) {
			r.Post("/room/join", c.joinRoom)
			r.Post("/room/leave", c.leaveRoom)
			r.Post("/music/share", c.shareMusic)
			r.Get("/connect", c.connectSSE)
		})
		r.Get("/ws/connect", c.connectWS)
	})

	return r
}
