package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/opentdf/kas/internal/version"
	"github.com/opentdf/kas/pkg/access"
)

// LoadKASRoutes mounts the KAS endpoints. The v2 routes are the
// signedRequestToken forms; the unversioned aliases serve older SDKs.
// authGate, when non-nil, fronts the key-handling routes only; probes and
// the public key stay open.
func LoadKASRoutes(p *access.Provider, authGate func(http.Handler) http.Handler, probers ...access.HealthProber) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.NotFound(routeNotFound)

	r.Get("/", ping)
	r.Get("/healthz", p.HealthzHandler(probers...))
	r.Get("/kas_public_key", p.PublicKeyHandler)

	r.Group(func(r chi.Router) {
		if authGate != nil {
			r.Use(authGate)
		}
		r.Route("/v2", func(r chi.Router) {
			r.Post("/rewrap", p.RewrapHandler)
			r.Post("/upsert", p.UpsertHandler)
		})
		r.Post("/rewrap", p.RewrapHandler)
		r.Post("/upsert", p.UpsertHandler)
	})

	return r
}

func ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"version":"` + version.Version + `"}`))
}

func routeNotFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":{"code":"RouteNotFound","message":"no such endpoint"}}`))
}
