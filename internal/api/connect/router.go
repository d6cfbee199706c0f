package connect

import (
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the audio service and a health endpoint.
func NewRouter(s *AudioService, token string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.CleanPath)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusMap(s.facade.Status()))
	})

	path, handler := NewAudioServiceHandler(s, connect.WithInterceptors(
		NewTokenInterceptor(token),
		NewOriginInterceptor(),
	))
	r.Handle(path+"*", handler)
	return r
}
