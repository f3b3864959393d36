package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	ready chan struct{}
}

func (f *fakeChecker) Ready() <-chan struct{} { return f.ready }

func TestHandleHealthzAlwaysOK(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", prometheus.NewRegistry())
	w := httptest.NewRecorder()
	s.handleHealthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestHandleReadyzNotReadyUntilAllCheckersClose(t *testing.T) {
	t.Parallel()

	c1 := &fakeChecker{ready: make(chan struct{})}
	c2 := &fakeChecker{ready: make(chan struct{})}
	s := New("127.0.0.1:0", prometheus.NewRegistry(), c1, c2)

	w := httptest.NewRecorder()
	s.handleReadyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	close(c1.ready)
	w = httptest.NewRecorder()
	s.handleReadyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	close(c2.ready)
	w = httptest.NewRecorder()
	s.handleReadyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ready", w.Body.String())
}

func TestHandleReadyzWithNoCheckersIsReady(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", prometheus.NewRegistry())
	w := httptest.NewRecorder()
	s.handleReadyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
