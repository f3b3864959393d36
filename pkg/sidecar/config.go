package sidecar

import (
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Method selects between the streaming Watch loop and the periodic List loop (§4.6/§4.7).
type Method string

const (
	MethodWatch Method = "watch"
	MethodList  Method = "list"
)

const (
	// DefaultFolderAnnotation is the annotation key used for per-resource folder overrides
	// (§4.3) unless Config.FolderAnnotation overrides it.
	DefaultFolderAnnotation = "k8s-sidecar-target-directory"

	defaultSleepTime           = 60
	defaultErrorThrottleSleep  = 5
	defaultWatchServerTimeout  = 60
	defaultWatchClientTimeout  = 66
	defaultReqRetryTotal       = 5
	defaultReqRetryConnect     = 10
	defaultReqRetryRead        = 5
	defaultReqBackoffFactor    = 1.1
	defaultReqTimeoutSeconds   = 10
	defaultBasicAuthEncoding   = "latin1"
)

// Resources selects which Kubernetes kinds are projected.
type Resources string

const (
	ResourceConfigMap Resources = "configmap"
	ResourceSecret    Resources = "secret"
	ResourceBoth      Resources = "both"
)

// Kinds returns the concrete Kind values this Resources setting covers.
func (r Resources) Kinds() []Kind {
	switch r {
	case ResourceSecret:
		return []Kind{KindSecret}
	case ResourceBoth:
		return []Kind{KindConfigMap, KindSecret}
	default:
		return []Kind{KindConfigMap}
	}
}

// Config is the core's only configuration surface (§6). The process-entry shim
// (cmd/sidecar/main.go) is responsible for populating it from environment variables and CLI
// flags; the core never reads os.Getenv directly.
type Config struct {
	Label      string
	LabelValue string
	// LabelByKind optionally overrides Label per Kind (§12 supplement, historical
	// CONFIGMAP_LABEL/SECRET_LABEL support). Nil or a missing entry falls back to Label.
	LabelByKind map[Kind]string

	Folder           string
	FolderAnnotation string

	Resources Resources
	// Namespaces is either a literal ["ALL"] or an explicit list. When NAMESPACE is unset the
	// process-entry shim fills in the current namespace from the service-account namespace file;
	// DefaultAndValidate rejects an empty list.
	Namespaces []string

	Method               Method
	SleepTime            int
	ErrorThrottleSleep   int
	WatchServerTimeout   int
	WatchClientTimeout   int

	ReqURL              string
	ReqMethod           string
	ReqPayload          string
	ReqUsername         string
	ReqPassword         string
	ReqBasicAuthEncoding string
	ReqRetryTotal       int
	ReqRetryConnect     int
	ReqRetryRead        int
	ReqBackoffFactor    float64
	ReqTimeoutSeconds   int
	ReqSkipTLSVerify    bool
	Enable5xx           bool
	JWTToken            string
	JWTHeaderName       string

	Script string

	UniqueFilenames        bool
	IgnoreAlreadyProcessed bool
	DefaultFileMode        *int

	SkipTLSVerify bool
}

// AllNamespaces reports whether Namespaces names the literal ALL sentinel.
func (c *Config) AllNamespaces() bool {
	return len(c.Namespaces) == 1 && strings.EqualFold(c.Namespaces[0], "ALL")
}

// LabelFor returns the effective label key for kind, honoring LabelByKind (§12).
func (c *Config) LabelFor(kind Kind) string {
	if c.LabelByKind != nil {
		if v, ok := c.LabelByKind[kind]; ok && v != "" {
			return v
		}
	}
	return c.Label
}

// DefaultAndValidate fills in documented defaults and checks required fields, mirroring
// pkg/operator.Options.defaultAndValidate: LABEL and FOLDER are checked first, then defaults are
// filled in, then a non-empty Namespaces is required, then non-fatal warnings are logged at Warn
// level.
func (c *Config) DefaultAndValidate(logger log.Logger) error {
	if c.Label == "" {
		return errors.New("LABEL must be set")
	}
	if c.Folder == "" {
		return errors.New("FOLDER must be set")
	}
	if c.FolderAnnotation == "" {
		c.FolderAnnotation = DefaultFolderAnnotation
	}
	if c.Resources == "" {
		c.Resources = ResourceConfigMap
	}
	if c.Method == "" {
		c.Method = MethodWatch
	}
	if c.SleepTime <= 0 {
		c.SleepTime = defaultSleepTime
	}
	if c.ErrorThrottleSleep <= 0 {
		c.ErrorThrottleSleep = defaultErrorThrottleSleep
	}
	if c.WatchServerTimeout <= 0 {
		c.WatchServerTimeout = defaultWatchServerTimeout
	}
	if c.WatchClientTimeout <= 0 {
		c.WatchClientTimeout = defaultWatchClientTimeout
	}
	if c.ReqRetryTotal <= 0 {
		c.ReqRetryTotal = defaultReqRetryTotal
	}
	if c.ReqRetryConnect <= 0 {
		c.ReqRetryConnect = defaultReqRetryConnect
	}
	if c.ReqRetryRead <= 0 {
		c.ReqRetryRead = defaultReqRetryRead
	}
	if c.ReqBackoffFactor <= 0 {
		c.ReqBackoffFactor = defaultReqBackoffFactor
	}
	if c.ReqTimeoutSeconds <= 0 {
		c.ReqTimeoutSeconds = defaultReqTimeoutSeconds
	}
	if c.ReqBasicAuthEncoding == "" {
		c.ReqBasicAuthEncoding = defaultBasicAuthEncoding
	}
	if c.ReqMethod == "" {
		c.ReqMethod = "POST"
	}
	if len(c.Namespaces) == 0 {
		return errors.New("NAMESPACE must resolve to at least one namespace or ALL")
	}

	if c.WatchClientTimeout <= c.WatchServerTimeout {
		level.Warn(logger).Log("msg", "watch client timeout should exceed server timeout",
			"server_timeout", c.WatchServerTimeout, "client_timeout", c.WatchClientTimeout)
	}
	return nil
}
