package access

import (
	"context"
	"net/http"
)

// A HealthProber reports whether a backing dependency is ready. Plugins
// that talk to external services implement this alongside their plugin
// interface.
type HealthProber interface {
	ProbeHealth(ctx context.Context) error
}

// HealthzHandler answers liveness by default. With ?probe=readiness every
// registered prober must pass.
func (p *Provider) HealthzHandler(probers ...HealthProber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("probe") == "readiness" {
			for _, prober := range probers {
				if err := prober.ProbeHealth(r.Context()); err != nil {
					p.Logger.Warnw("readiness probe failed", "error", err)
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
