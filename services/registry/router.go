package registry

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes constructs the chi router containing all registry endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Blocking reads may hold the request for the full poll budget.
	r.Use(middleware.Timeout(a.config.MaxWait + 10*time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/artifacts", a.handleSubmit)
		r.Get("/artifacts/{id}", a.handleGet)
		r.Get("/artifacts/{id}/rating", a.handleRating)
	})

	return r, nil
}
