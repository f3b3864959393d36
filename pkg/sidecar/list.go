package sidecar

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ListLoop is C6 (§4.7): the polling alternative to WatchLoop, used when METHOD=LIST. It lists
// the matching set of resources for one (namespace, kind) pair every SleepTime seconds and feeds
// the result straight to ReconcileFullSet, so add/update/remove are all inferred from successive
// snapshots rather than from discrete watch events. Grounded on the same retry/backoff envelope
// as WatchLoop, with the periodic trigger modeled on
// pkg/operator/certupdater/cert_updater.go's ticker-driven Start loop.
type ListLoop struct {
	logger     log.Logger
	cfg        *Config
	client     *apiClient
	reconciler *Reconciler
	metrics    *metrics
	namespace  string
	kind       Kind
	ready      chan struct{}
	readyOnce  bool
	reconnect  *reconnectLimiter
}

// NewListLoop constructs a ListLoop for one (namespace, kind) pair.
func NewListLoop(logger log.Logger, cfg *Config, client *apiClient, reconciler *Reconciler, m *metrics, namespace string, kind Kind) *ListLoop {
	return &ListLoop{
		logger:     logger,
		cfg:        cfg,
		client:     client,
		reconciler: reconciler,
		metrics:    m,
		namespace:  namespace,
		kind:       kind,
		ready:      make(chan struct{}),
		reconnect:  newReconnectLimiter(time.Duration(cfg.ErrorThrottleSleep) * time.Second),
	}
}

// Ready returns a channel closed once the loop's first list pass completes.
func (l *ListLoop) Ready() <-chan struct{} { return l.ready }

func (l *ListLoop) markReady() {
	if !l.readyOnce {
		close(l.ready)
		l.readyOnce = true
	}
}

// Run blocks until ctx is cancelled (nil return, graceful shutdown) or a fatal API error occurs
// (*FatalError return, same envelope as WatchLoop so the supervisor treats both loop kinds
// identically).
func (l *ListLoop) Run(ctx context.Context) error {
	selector := labelSelector(l.cfg.LabelFor(l.kind), l.cfg.LabelValue)
	sleep := time.Duration(l.cfg.SleepTime) * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := l.pass(ctx, selector); err != nil {
			if fatal, ok := asFatal(err); ok {
				return NewFatalError(l.loopName(), fatal)
			}
			level.Error(l.logger).Log("msg", "list pass failed, retrying", "namespace", l.namespace, "kind", l.kind, "err", err)
			if !l.reconnect.wait(ctx) {
				return nil
			}
			continue
		}
		l.markReady()

		if !sleepOrDone(ctx, sleep) {
			return nil
		}
	}
}

func (l *ListLoop) pass(ctx context.Context, selector string) error {
	snapshots, _, err := l.client.list(ctx, l.namespace, l.kind, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return err
	}
	l.reconciler.ReconcileFullSet(snapshots)
	return nil
}

func (l *ListLoop) loopName() string {
	return string(l.kind) + "/" + l.namespace
}
