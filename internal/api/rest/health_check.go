package rest

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function into a Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthService answers liveness and readiness probes. Liveness is
// unconditional; readiness checks each registered dependency.
type HealthService struct {
	deps map[string]Pinger
}

func NewHealthService() *HealthService {
	return &HealthService{deps: make(map[string]Pinger)}
}

// Register adds a dependency to the readiness check.
func (s *HealthService) Register(name string, p Pinger) {
	s.deps[name] = p
}

func (s *HealthService) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *HealthService) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]string, len(s.deps))
		healthy := true
		for name, dep := range s.deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "fail: " + err.Error()
				healthy = false
			} else {
				checks[name] = "pass"
			}
		}

		status := http.StatusOK
		overall := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		writeJSON(w, status, map[string]interface{}{
			"status": overall,
			"checks": checks,
		})
	}
}
