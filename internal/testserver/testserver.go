// Package testserver provides a canned-response HTTP server for exercising the Notifier's
// REQ_URL and ".url" content-fetch paths in tests. Grounded on
// _examples/original_source/test/server/server.py, a FastAPI fixture serving fixed status codes
// and one API-key-gated route; reimplemented here as an httptest.Server with net/http routing.
package testserver

import (
	"net/http"
	"net/http/httptest"
	"strconv"
)

const (
	// APIKeyParam is the query parameter name the protected route checks, matching the Python
	// fixture's API_KEY_NAME.
	APIKeyParam = "private_token"
	// APIKey is the only value APIKeyParam accepts, matching the Python fixture's API_KEY.
	APIKey = "super-duper-secret"
)

// New starts and returns an httptest.Server exposing the same canned routes as the Python
// fixture: "/" and "/200" return 200, "/404" returns 404, "/500" returns 500, "/503" accepts POST
// and returns 503, and "/200/api-key" returns 200 only when APIKeyParam equals APIKey (403
// otherwise). The fixed-status routes use the status code as the body (e.g. "/200" -> "200").
// Callers must Close the returned server.
func New() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", fixedStatus(http.StatusOK))
	mux.HandleFunc("/200", fixedStatus(http.StatusOK))
	mux.HandleFunc("/404", fixedStatus(http.StatusNotFound))
	mux.HandleFunc("/500", fixedStatus(http.StatusInternalServerError))
	mux.HandleFunc("/503", fixedStatus(http.StatusServiceUnavailable))
	mux.HandleFunc("/200/api-key", apiKeyGated)
	return httptest.NewServer(mux)
}

func fixedStatus(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(strconv.Itoa(code)))
	}
}

func apiKeyGated(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get(APIKeyParam) != APIKey {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
}
