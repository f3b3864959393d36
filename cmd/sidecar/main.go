// Command sidecar watches or polls ConfigMaps and Secrets in a cluster and projects their data
// onto the local filesystem, optionally notifying a callback URL or running a script whenever
// the projected set changes. Grounded on cmd/operator/main.go's flag/logger/run.Group bootstrap,
// generalized from a single flag package to kingpin so most settings also have an environment
// variable source, matching this command's configuration surface; --kubeconfig, --health-addr and
// the two --basic-auth-*-file flags are flag-only.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoogleCloudPlatform/k8s-sidecar/internal/health"
	"github.com/GoogleCloudPlatform/k8s-sidecar/internal/kubeclient"
	"github.com/GoogleCloudPlatform/k8s-sidecar/pkg/sidecar"
)

const serviceAccountNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// loopRunner is satisfied by both *sidecar.WatchLoop and *sidecar.ListLoop: it can run under the
// supervisor and report readiness to the health endpoint.
type loopRunner interface {
	Run(ctx context.Context) error
	Ready() <-chan struct{}
}

const (
	logLevelDebug = "debug"
	logLevelInfo  = "info"
	logLevelWarn  = "warn"
	logLevelError = "error"
)

func main() {
	a := kingpin.New("sidecar", "Projects labeled ConfigMaps and Secrets onto the local filesystem.")
	a.HelpFlag.Short('h')

	logLevelFlag := a.Flag("log-level", "Log level: debug, info, warn, or error.").
		Default(logLevelInfo).Envar("LOG_LEVEL").Enum(logLevelDebug, logLevelInfo, logLevelWarn, logLevelError)

	kubeconfig := a.Flag("kubeconfig", "Optional path to a kubeconfig file for out-of-cluster runs.").
		Default(kubeclient.DefaultKubeconfigPath()).String()
	healthAddr := a.Flag("health-addr", "Address for the embedded health endpoint.").
		Default(":8080").String()
	basicAuthUsernameFile := a.Flag("basic-auth-username-file", "File containing the REQ_USERNAME override.").String()
	basicAuthPasswordFile := a.Flag("basic-auth-password-file", "File containing the REQ_PASSWORD override.").String()

	label := a.Flag("label", "Label key selecting projected resources.").Envar("LABEL").String()
	labelValue := a.Flag("label-value", "If set, restrict to label=value; else match key presence.").Envar("LABEL_VALUE").String()
	folder := a.Flag("folder", "Default destination root.").Envar("FOLDER").String()
	folderAnnotation := a.Flag("folder-annotation", "Annotation key for per-resource folder override.").Envar("FOLDER_ANNOTATION").String()
	resource := a.Flag("resource", "configmap, secret, or both.").Default(string(sidecar.ResourceConfigMap)).Envar("RESOURCE").String()
	namespace := a.Flag("namespace", "Comma-separated namespaces, or ALL.").Envar("NAMESPACE").String()
	method := a.Flag("method", "LIST for polling mode; otherwise streaming watch.").Envar("METHOD").String()

	sleepTime := a.Flag("sleep-time", "Polling interval seconds.").Envar("SLEEP_TIME").Int()
	errorThrottleSleep := a.Flag("error-throttle-sleep", "Post-error backoff seconds.").Envar("ERROR_THROTTLE_SLEEP").Int()
	watchServerTimeout := a.Flag("watch-server-timeout", "Server-side watch timeout seconds.").Envar("WATCH_SERVER_TIMEOUT").Int()
	watchClientTimeout := a.Flag("watch-client-timeout", "Client-side watch give-up seconds.").Envar("WATCH_CLIENT_TIMEOUT").Int()

	reqURL := a.Flag("req-url", "Post-change notification endpoint.").Envar("REQ_URL").String()
	reqMethod := a.Flag("req-method", "Notification HTTP method.").Envar("REQ_METHOD").String()
	reqPayload := a.Flag("req-payload", "Notification JSON body, when POSTing.").Envar("REQ_PAYLOAD").String()
	reqUsername := a.Flag("req-username", "Notification HTTP Basic username.").Envar("REQ_USERNAME").String()
	reqPassword := a.Flag("req-password", "Notification HTTP Basic password.").Envar("REQ_PASSWORD").String()
	reqBasicAuthEncoding := a.Flag("req-basic-auth-encoding", "Basic auth credential encoding.").Envar("REQ_BASIC_AUTH_ENCODING").String()
	reqRetryTotal := a.Flag("req-retry-total", "Notification retry attempts.").Envar("REQ_RETRY_TOTAL").Int()
	reqRetryConnect := a.Flag("req-retry-connect", "Notification connect-phase retries.").Envar("REQ_RETRY_CONNECT").Int()
	reqRetryRead := a.Flag("req-retry-read", "Notification read-phase retries.").Envar("REQ_RETRY_READ").Int()
	reqBackoffFactor := a.Flag("req-backoff-factor", "Notification retry backoff factor.").Envar("REQ_BACKOFF_FACTOR").Float64()
	reqTimeoutSeconds := a.Flag("req-timeout", "Notification request timeout seconds.").Envar("REQ_TIMEOUT").Int()
	reqSkipTLSVerify := a.Flag("req-skip-tls-verify", "Disable TLS verification for notifications.").Envar("REQ_SKIP_TLS_VERIFY").Bool()
	enable5xx := a.Flag("enable-5xx", "Treat notification 5xx responses as success.").Envar("ENABLE_5XX").Bool()
	jwtToken := a.Flag("jwt-token", "Bearer token for notifications, preferred over Basic auth.").Envar("JWT_TOKEN").String()
	jwtHeaderName := a.Flag("jwt-header-name", "Header name for the JWT token.").Default("Authorization").Envar("JWT_HEADER_NAME").String()

	script := a.Flag("script", "Path to a script to execute after a changed reconciliation.").Envar("SCRIPT").String()
	uniqueFilenames := a.Flag("unique-filenames", "Disambiguate filenames by namespace/resource/name.").Envar("UNIQUE_FILENAMES").Bool()
	ignoreAlreadyProcessed := a.Flag("ignore-already-processed", "Suppress reprocessing an unchanged resource_version.").Envar("IGNORE_ALREADY_PROCESSED").Bool()
	defaultFileMode := a.Flag("default-file-mode", "Octal file mode applied after every write.").Envar("DEFAULT_FILE_MODE").String()
	skipTLSVerify := a.Flag("skip-tls-verify", "Disable TLS verification for the cluster API client.").Envar("SKIP_TLS_VERIFY").Bool()

	kingpin.MustParse(a.Parse(os.Args[1:]))

	logger, err := setupLogger(*logLevelFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger failed: %s\n", err)
		os.Exit(2)
	}

	cfg, err := buildConfig(buildConfigArgs{
		label:                  *label,
		labelValue:             *labelValue,
		folder:                 *folder,
		folderAnnotation:       *folderAnnotation,
		resource:               *resource,
		namespace:              *namespace,
		method:                 *method,
		sleepTime:              *sleepTime,
		errorThrottleSleep:     *errorThrottleSleep,
		watchServerTimeout:     *watchServerTimeout,
		watchClientTimeout:     *watchClientTimeout,
		reqURL:                 *reqURL,
		reqMethod:              *reqMethod,
		reqPayload:             *reqPayload,
		reqUsername:            *reqUsername,
		reqPassword:            *reqPassword,
		reqBasicAuthEncoding:   *reqBasicAuthEncoding,
		reqRetryTotal:          *reqRetryTotal,
		reqRetryConnect:        *reqRetryConnect,
		reqRetryRead:           *reqRetryRead,
		reqBackoffFactor:       *reqBackoffFactor,
		reqTimeoutSeconds:      *reqTimeoutSeconds,
		reqSkipTLSVerify:       *reqSkipTLSVerify,
		enable5xx:              *enable5xx,
		jwtToken:               *jwtToken,
		jwtHeaderName:          *jwtHeaderName,
		script:                 *script,
		uniqueFilenames:        *uniqueFilenames,
		ignoreAlreadyProcessed: *ignoreAlreadyProcessed,
		defaultFileMode:        *defaultFileMode,
		skipTLSVerify:          *skipTLSVerify,
		basicAuthUsernameFile:  *basicAuthUsernameFile,
		basicAuthPasswordFile:  *basicAuthPasswordFile,
	})
	if err != nil {
		level.Error(logger).Log("msg", "building configuration failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.DefaultAndValidate(logger); err != nil {
		level.Error(logger).Log("msg", "invalid configuration", "err", err)
		os.Exit(1)
	}

	clientset, err := kubeclient.New(kubeclient.Options{
		Kubeconfig:    *kubeconfig,
		SkipTLSVerify: cfg.SkipTLSVerify,
	})
	if err != nil {
		level.Error(logger).Log("msg", "building kubernetes client failed", "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	metrics := sidecar.NewMetrics(registry)
	apiClient := sidecar.NewAPIClient(clientset)
	projector := sidecar.NewProjector(logger, cfg.DefaultFileMode, metrics)
	notifier := sidecar.NewNotifier(logger, cfg, metrics)
	resolver := sidecar.NewResolver(notifier, cfg.UniqueFilenames)

	supervisor := sidecar.NewSupervisor(logger)
	var checkers []health.Checker

	namespaces := cfg.Namespaces
	if cfg.AllNamespaces() {
		namespaces = []string{""}
	}
	for _, ns := range namespaces {
		for _, kind := range cfg.Resources.Kinds() {
			reconciler := sidecar.NewReconciler(logger, cfg, projector, resolver, notifier, metrics)
			name := string(kind) + "/" + ns
			if ns == "" {
				name = string(kind) + "/ALL"
			}

			var l loopRunner
			if cfg.Method == sidecar.MethodList {
				l = sidecar.NewListLoop(logger, cfg, apiClient, reconciler, metrics, ns, kind)
			} else {
				l = sidecar.NewWatchLoop(logger, cfg, apiClient, reconciler, metrics, ns, kind)
			}
			supervisor.Add(name, l)
			checkers = append(checkers, l)
		}
	}

	healthServer := health.New(*healthAddr, registry, checkers...)

	var g run.Group
	{
		term := make(chan os.Signal, 1)
		cancel := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)
		g.Add(func() error {
			select {
			case <-term:
				level.Info(logger).Log("msg", "received termination signal, exiting gracefully")
			case <-cancel:
			}
			return nil
		}, func(error) {
			close(cancel)
		})
	}
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return healthServer.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return supervisor.Run(ctx)
		}, func(error) {
			cancel()
		})
	}

	if err := g.Run(); err != nil {
		level.Error(logger).Log("msg", "exit with error", "err", err)
		os.Exit(1)
	}
}

func setupLogger(lvl string) (log.Logger, error) {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	var option level.Option
	switch lvl {
	case logLevelDebug:
		option = level.AllowDebug()
	case logLevelWarn:
		option = level.AllowWarn()
	case logLevelError:
		option = level.AllowError()
	default:
		option = level.AllowInfo()
	}
	logger = level.NewFilter(logger, option)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	return logger, nil
}

// buildConfigArgs mirrors the flag set above; kept as a struct so buildConfig stays readable.
type buildConfigArgs struct {
	label, labelValue, folder, folderAnnotation, resource, namespace, method string
	sleepTime, errorThrottleSleep, watchServerTimeout, watchClientTimeout    int
	reqURL, reqMethod, reqPayload, reqUsername, reqPassword                 string
	reqBasicAuthEncoding                                                    string
	reqRetryTotal, reqRetryConnect, reqRetryRead                            int
	reqBackoffFactor                                                        float64
	reqTimeoutSeconds                                                       int
	reqSkipTLSVerify, enable5xx                                             bool
	jwtToken, jwtHeaderName                                                 string
	script                                                                  string
	uniqueFilenames, ignoreAlreadyProcessed                                 bool
	defaultFileMode                                                         string
	skipTLSVerify                                                           bool
	basicAuthUsernameFile, basicAuthPasswordFile                            string
}

// buildConfig translates parsed flags/env vars into a sidecar.Config, resolving the
// file-backed basic-auth overrides and the current-namespace default (§6, §4.1).
func buildConfig(a buildConfigArgs) (*sidecar.Config, error) {
	cfg := &sidecar.Config{
		Label:                  a.label,
		LabelValue:             a.labelValue,
		Folder:                 a.folder,
		FolderAnnotation:       a.folderAnnotation,
		Resources:              sidecar.Resources(a.resource),
		Method:                 sidecar.Method(strings.ToLower(a.method)),
		SleepTime:              a.sleepTime,
		ErrorThrottleSleep:     a.errorThrottleSleep,
		WatchServerTimeout:     a.watchServerTimeout,
		WatchClientTimeout:     a.watchClientTimeout,
		ReqURL:                 a.reqURL,
		ReqMethod:              a.reqMethod,
		ReqPayload:             a.reqPayload,
		ReqUsername:            a.reqUsername,
		ReqPassword:            a.reqPassword,
		ReqBasicAuthEncoding:   a.reqBasicAuthEncoding,
		ReqRetryTotal:          a.reqRetryTotal,
		ReqRetryConnect:        a.reqRetryConnect,
		ReqRetryRead:           a.reqRetryRead,
		ReqBackoffFactor:       a.reqBackoffFactor,
		ReqTimeoutSeconds:      a.reqTimeoutSeconds,
		ReqSkipTLSVerify:       a.reqSkipTLSVerify,
		Enable5xx:              a.enable5xx,
		JWTToken:               a.jwtToken,
		JWTHeaderName:          a.jwtHeaderName,
		Script:                 a.script,
		UniqueFilenames:        a.uniqueFilenames,
		IgnoreAlreadyProcessed: a.ignoreAlreadyProcessed,
		SkipTLSVerify:          a.skipTLSVerify,
	}

	if a.namespace == "" {
		ns, err := currentNamespace()
		if err != nil {
			return nil, err
		}
		cfg.Namespaces = []string{ns}
	} else {
		for _, part := range strings.Split(a.namespace, ",") {
			if part = strings.TrimSpace(part); part != "" {
				cfg.Namespaces = append(cfg.Namespaces, part)
			}
		}
	}

	if a.defaultFileMode != "" {
		mode, err := strconv.ParseInt(a.defaultFileMode, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing DEFAULT_FILE_MODE %q: %w", a.defaultFileMode, err)
		}
		m := int(mode)
		cfg.DefaultFileMode = &m
	}

	if a.basicAuthUsernameFile != "" {
		b, err := os.ReadFile(a.basicAuthUsernameFile)
		if err != nil {
			return nil, fmt.Errorf("reading --basic-auth-username-file: %w", err)
		}
		cfg.ReqUsername = strings.TrimSpace(string(b))
	}
	if a.basicAuthPasswordFile != "" {
		b, err := os.ReadFile(a.basicAuthPasswordFile)
		if err != nil {
			return nil, fmt.Errorf("reading --basic-auth-password-file: %w", err)
		}
		cfg.ReqPassword = strings.TrimSpace(string(b))
	}

	return cfg, nil
}

func currentNamespace() (string, error) {
	b, err := os.ReadFile(serviceAccountNamespaceFile)
	if err != nil {
		return "", fmt.Errorf("reading service-account namespace file %q: %w", serviceAccountNamespaceFile, err)
	}
	return strings.TrimSpace(string(b)), nil
}
