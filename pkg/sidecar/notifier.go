package sidecar

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
)

// retriableStatus is the default status_forcelist (§4.4): 500, 502, 503, 504.
var retriableStatus = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Notifier is the outbound-notification subsystem (C3, §4.4): HTTP GET/POST with retry/backoff
// and pluggable auth, plus user-script execution. It also supplies the GET primitive the
// content resolver uses for ".url" indirection (§4.2).
type Notifier struct {
	logger  log.Logger
	cfg     *Config
	client  *http.Client
	metrics *metrics
}

// NewNotifier constructs a Notifier. A dedicated *http.Client is built here (rather than reusing
// http.DefaultClient) so ReqSkipTLSVerify can relax TLS verification for the notification
// endpoint independently of the cluster API client's own TLS policy (§4.4).
func NewNotifier(logger log.Logger, cfg *Config, m *metrics) *Notifier {
	transport := &http.Transport{}
	if cfg.ReqSkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via REQ_SKIP_TLS_VERIFY
	}
	return &Notifier{
		logger: logger,
		cfg:    cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.ReqTimeoutSeconds) * time.Second,
		},
		metrics: m,
	}
}

func (n *Notifier) retriableStatusList() map[int]bool {
	if n.cfg.Enable5xx {
		return nil
	}
	return retriableStatus
}

func (n *Notifier) backoff() wait.Backoff {
	return wait.Backoff{
		Duration: time.Second,
		Factor:   n.cfg.ReqBackoffFactor,
		Steps:    n.cfg.ReqRetryTotal,
	}
}

// FetchURL performs a GET used by the content resolver's ".url" indirection (§4.2 step 3). It
// shares the Notifier's retry/backoff and TLS policy but not its authentication, since URL
// indirection targets arbitrary third-party endpoints named by the resource author, not the
// configured REQ_URL callback.
func (n *Notifier) FetchURL(url string) ([]byte, http.Header, error) {
	var body []byte
	var headers http.Header
	err := retry.OnError(n.backoff(), n.isRetriableErr, func() error {
		req, rerr := http.NewRequest(http.MethodGet, url, nil)
		if rerr != nil {
			return rerr
		}
		resp, rerr := n.client.Do(req)
		if rerr != nil {
			return rerr
		}
		defer resp.Body.Close()
		b, rerr := io.ReadAll(resp.Body)
		if rerr != nil {
			return rerr
		}
		if list := n.retriableStatusList(); list != nil && list[resp.StatusCode] {
			return &statusError{code: resp.StatusCode}
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
		}
		body, headers = b, resp.Header
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return body, headers, nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("retriable status %d", e.code) }

func (n *Notifier) isRetriableErr(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*statusError)
	return ok
}

// Notify implements §4.4's notify operation: one REQ_URL call per changed reconciliation pass.
// Request failures are logged and never propagated to the caller, matching §7's "Notifier
// failure" policy.
func (n *Notifier) Notify() {
	if n.cfg.ReqURL == "" {
		return
	}
	method := httpMethod(n.cfg.ReqMethod)
	if method == "" {
		level.Warn(n.logger).Log("msg", "unrecognized notification method, skipping", "method", n.cfg.ReqMethod)
		return
	}

	err := retry.OnError(n.backoff(), n.isRetriableErr, func() error {
		var bodyReader io.Reader
		if method == http.MethodPost && n.cfg.ReqPayload != "" {
			bodyReader = bytes.NewBufferString(n.cfg.ReqPayload)
		}
		req, rerr := http.NewRequest(method, n.cfg.ReqURL, bodyReader)
		if rerr != nil {
			return rerr
		}
		if method == http.MethodPost {
			req.Header.Set("Content-Type", "application/json")
		}
		n.applyAuth(req)

		resp, rerr := n.client.Do(req)
		if rerr != nil {
			return rerr
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if list := n.retriableStatusList(); list != nil && list[resp.StatusCode] {
			return &statusError{code: resp.StatusCode}
		}
		if resp.StatusCode >= 400 && !(n.cfg.Enable5xx && resp.StatusCode >= 500) {
			return fmt.Errorf("notify %s: unexpected status %d", n.cfg.ReqURL, resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		level.Error(n.logger).Log("msg", "notification failed", "url", n.cfg.ReqURL, "err", err)
		if n.metrics != nil {
			n.metrics.notifyFailure.Inc()
		}
		return
	}
	level.Debug(n.logger).Log("msg", "notification delivered", "url", n.cfg.ReqURL, "method", method)
	if n.metrics != nil {
		n.metrics.notifySuccess.Inc()
	}
}

func (n *Notifier) applyAuth(req *http.Request) {
	if n.cfg.JWTToken != "" {
		header := n.cfg.JWTHeaderName
		if header == "" {
			header = "Authorization"
		}
		req.Header.Set(header, n.cfg.JWTToken)
		return
	}
	if n.cfg.ReqUsername != "" || n.cfg.ReqPassword != "" {
		req.SetBasicAuth(n.cfg.ReqUsername, n.cfg.ReqPassword)
	}
}

func httpMethod(m string) string {
	switch m {
	case http.MethodGet, http.MethodPost:
		return m
	default:
		return ""
	}
}

// Execute runs scriptPath (§4.4's execute operation). If the file is directly executable it is
// invoked as-is; otherwise it is handed to the system shell, matching the Python
// implementation's os.access(path, os.X_OK) branch.
func (n *Notifier) Execute(scriptPath string) {
	if scriptPath == "" {
		return
	}
	var cmd *exec.Cmd
	if isExecutable(scriptPath) {
		cmd = exec.Command(scriptPath)
	} else {
		cmd = exec.Command("/bin/sh", scriptPath)
	}
	out, err := cmd.CombinedOutput()
	level.Debug(n.logger).Log("msg", "script output", "script", scriptPath, "output", string(out))
	if err != nil {
		level.Error(n.logger).Log("msg", "script execution failed", "script", scriptPath, "err", err)
	}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&0o111 != 0
}
