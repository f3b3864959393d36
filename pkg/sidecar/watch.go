package sidecar

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
)

// WatchLoop is C5 (§4.6): streams ADDED/MODIFIED/DELETED events for one (namespace, kind) pair,
// reconnecting with error throttling on failure. Grounded on pkg/secrets/watch.go's
// newWatcher/start/restart trio, generalized from a single fixed Secret to a label-selected set
// of either kind.
type WatchLoop struct {
	logger      log.Logger
	cfg         *Config
	client      *apiClient
	reconciler  *Reconciler
	metrics     *metrics
	namespace   string
	kind        Kind
	ready       chan struct{}
	readyClosed bool
	reconnect   *reconnectLimiter
}

// NewWatchLoop constructs a WatchLoop for one (namespace, kind) pair.
func NewWatchLoop(logger log.Logger, cfg *Config, client *apiClient, reconciler *Reconciler, m *metrics, namespace string, kind Kind) *WatchLoop {
	return &WatchLoop{
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

// Ready returns a channel closed once the loop has completed its first full reconciliation pass
// (the §12 initial list, or equivalently the first watch pass), for the health endpoint's
// readiness check.
func (l *WatchLoop) Ready() <-chan struct{} { return l.ready }

func (l *WatchLoop) markReady() {
	if !l.readyClosed {
		close(l.ready)
		l.readyClosed = true
	}
}

// Run blocks until ctx is cancelled (returning nil, a graceful shutdown per §4.8) or a fatal
// API error occurs (returning a *FatalError, which the supervisor treats as "this loop died").
func (l *WatchLoop) Run(ctx context.Context) error {
	selector := labelSelector(l.cfg.LabelFor(l.kind), l.cfg.LabelValue)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		resourceVersion, err := l.initialList(ctx, selector)
		if err != nil {
			if fatal, ok := asFatal(err); ok {
				return NewFatalError(l.loopName(), fatal)
			}
			level.Error(l.logger).Log("msg", "initial list failed, retrying", "namespace", l.namespace, "kind", l.kind, "err", err)
			if !l.reconnect.wait(ctx) {
				return nil
			}
			continue
		}
		l.markReady()

		if err := l.runStream(ctx, selector, resourceVersion); err != nil {
			if fatal, ok := asFatal(err); ok {
				return NewFatalError(l.loopName(), fatal)
			}
			if ctx.Err() != nil {
				return nil
			}
			level.Error(l.logger).Log("msg", "watch stream ended, reconnecting", "namespace", l.namespace, "kind", l.kind, "err", err)
			if l.metrics != nil {
				l.metrics.reconnects.Inc()
			}
			if !l.reconnect.wait(ctx) {
				return nil
			}
			continue
		}
		// Clean stream close (channel closed without error): reconnect, rate-limited the same as
		// any other disconnect.
		if !l.reconnect.wait(ctx) {
			return nil
		}
	}
}

// initialList performs the §12 supplemented behavior: a full-set reconciliation pass before the
// watch stream opens, so a resource created between process start and the first watch event is
// not missed until the next relist. Returns the list's ResourceVersion to seed the watch.
func (l *WatchLoop) initialList(ctx context.Context, selector string) (string, error) {
	snapshots, rv, err := l.client.list(ctx, l.namespace, l.kind, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return "", err
	}
	l.reconciler.ReconcileFullSet(snapshots)
	return rv, nil
}

func (l *WatchLoop) runStream(ctx context.Context, selector, resourceVersion string) error {
	streamCtx, cancel := context.WithTimeout(ctx, time.Duration(l.cfg.WatchClientTimeout)*time.Second)
	defer cancel()

	serverTimeout := int64(l.cfg.WatchServerTimeout)
	w, err := l.client.watch(streamCtx, l.namespace, l.kind, metav1.ListOptions{
		LabelSelector:       selector,
		ResourceVersion:     resourceVersion,
		TimeoutSeconds:      &serverTimeout,
		AllowWatchBookmarks: false,
	})
	if err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case event, ok := <-w.ResultChan():
			if !ok {
				return nil
			}
			if err := l.handleEvent(event); err != nil {
				return err
			}
		case <-streamCtx.Done():
			return nil
		}
	}
}

func (l *WatchLoop) handleEvent(event watch.Event) error {
	if event.Type == watch.Error {
		if status, ok := event.Object.(*metav1.Status); ok {
			if status.Code == 500 {
				gr := schema.GroupResource{Resource: "configmaps"}
				if l.kind == KindSecret {
					gr = schema.GroupResource{Resource: "secrets"}
				}
				return apierrors.NewGenericServerResponse(500, "watch", gr, "", status.Message, 0, true)
			}
		}
		level.Warn(l.logger).Log("msg", "watch error event", "namespace", l.namespace, "kind", l.kind)
		return nil
	}
	if event.Type == watch.Bookmark {
		return nil
	}

	snap, err := snapshotFromWatchObject(event.Object, l.kind)
	if err != nil {
		level.Error(l.logger).Log("msg", "failed to decode watch event object", "err", err)
		return nil
	}

	var eventType EventType
	switch event.Type {
	case watch.Added:
		eventType = EventAdded
	case watch.Modified:
		eventType = EventModified
	case watch.Deleted:
		eventType = EventDeleted
	default:
		return nil
	}
	l.reconciler.ReconcileEvent(snap, eventType)
	return nil
}

func (l *WatchLoop) loopName() string {
	return string(l.kind) + "/" + l.namespace
}

// asFatal reports whether err represents an API-server 500 response (§7's "API fatal" row).
func asFatal(err error) (error, bool) {
	if err == nil {
		return nil, false
	}
	if status, ok := err.(apierrors.APIStatus); ok {
		if status.Status().Code == 500 {
			return err, true
		}
	}
	return nil, false
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
