package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthTimeout = 2 * time.Second

// healthHandler reports the state of the database and, when configured,
// Redis. Any failed ping turns the response into a 503.
func healthHandler(dbp, redisp Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		body := map[string]string{"status": "ok"}
		status := http.StatusOK

		check := func(name string, p Pinger) {
			if p == nil {
				body[name] = "disabled"
				return
			}
			if err := p.Ping(ctx); err != nil {
				slog.Warn("health check failed", "dependency", name, "error", err)
				body[name] = "unreachable"
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
				return
			}
			body[name] = "connected"
		}
		check("database", dbp)
		check("redis", redisp)

		writeJSON(w, status, body)
	}
}
