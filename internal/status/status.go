// Package status serves the health and metrics endpoints of tiercache-check.
//
//	/health/live   process is up
//	/health/ready  the current writer answers PING
//	/metrics       Prometheus metrics
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/tiercache/replica"
)

const pingTimeout = 2 * time.Second

// Source is the part of replica.Target readiness needs.
type Source interface {
	ReaderAddr() replica.Addr
	WriterAddr() replica.Addr
	PingWriter(ctx context.Context) error
}

type readyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Reader    string `json:"reader"`
	Writer    string `json:"writer"`
	Message   string `json:"message,omitempty"`
}

// NewRouter builds the status routes. A nil gatherer serves the default
// registry.
func NewRouter(src Source, g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), pingTimeout)
		defer cancel()

		resp := readyResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Reader:    src.ReaderAddr().String(),
			Writer:    src.WriterAddr().String(),
		}
		code := http.StatusOK
		if err := src.PingWriter(ctx); err != nil {
			resp.Status = "fail"
			resp.Message = err.Error()
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
