// Package health serves the sidecar's /healthz, /readyz and /metrics endpoints. Grounded on
// cmd/operator/main.go's "Operator monitoring" block (a bare *http.Server serving promhttp's
// handler under run.Group), generalized with a readiness gate driven by the running loops.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether a component has completed its first pass. WatchLoop and ListLoop both
// satisfy this via their Ready() method.
type Checker interface {
	Ready() <-chan struct{}
}

// Server is the sidecar's embedded HTTP server (§6 external interfaces).
type Server struct {
	addr     string
	registry *prometheus.Registry
	checks   []Checker
	srv      *http.Server
}

// New constructs a Server listening on addr, reporting /readyz healthy only once every checker
// has closed its Ready channel.
func New(addr string, registry *prometheus.Registry, checks ...Checker) *Server {
	s := &Server{addr: addr, registry: registry, checks: checks}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	for _, c := range s.checks {
		select {
		case <-c.Ready():
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Run serves until ctx is cancelled, then shuts down with a bounded grace period, matching
// cmd/operator/main.go's server.Shutdown(ctx) interrupt handler.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
