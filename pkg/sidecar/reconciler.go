package sidecar

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// EventType mirrors the three Kubernetes watch event types the reconciler dispatches on (§4.5).
type EventType int

const (
	EventAdded EventType = iota
	EventModified
	EventDeleted
)

// Reconciler is C4 (§4.5): for one resource snapshot it computes the diff against the previous
// snapshot held in cache and drives the projector and notifier.
type Reconciler struct {
	logger    log.Logger
	cfg       *Config
	cache     *kindCache
	projector *Projector
	resolver  *Resolver
	notifier  *Notifier
	metrics   *metrics
}

// NewReconciler wires together one (namespace,kind) loop's private cache with the shared
// projector/resolver/notifier. The cache is private per §9's isolation requirement; the other
// three collaborators are stateless enough to share across loops.
func NewReconciler(logger log.Logger, cfg *Config, projector *Projector, resolver *Resolver, notifier *Notifier, m *metrics) *Reconciler {
	return &Reconciler{
		logger:    logger,
		cfg:       cfg,
		cache:     newKindCache(),
		projector: projector,
		resolver:  resolver,
		notifier:  notifier,
		metrics:   m,
	}
}

// ReconcileEvent is the single-event path (§4.5), fed by the Watch loop.
func (r *Reconciler) ReconcileEvent(s *Snapshot, event EventType) {
	changed := r.reconcileOneTrackingChange(s, event)

	if r.metrics != nil {
		r.metrics.reconcilePasses.Inc()
	}
	if changed {
		if r.cfg.Script != "" {
			r.notifier.Execute(r.cfg.Script)
		}
		if r.cfg.ReqURL != "" {
			r.notifier.Notify()
		}
	}
}

// ReconcileFullSet is the full-set path (§4.5), fed by the List loop. It reconciles every
// currently matching snapshot as an ADDED/MODIFIED event, then synthesizes a DELETED event for
// every cached key absent from the live set, and issues at most one notification for the whole
// pass.
func (r *Reconciler) ReconcileFullSet(snapshots []*Snapshot) {
	present := make(map[Key]bool, len(snapshots))
	anyChanged := false

	for _, s := range snapshots {
		present[s.Key()] = true
		if r.reconcileOneTrackingChange(s, EventModified) {
			anyChanged = true
		}
	}

	for _, key := range r.cache.knownKeys() {
		if present[key] {
			continue
		}
		cached, ok := r.cache.object(key)
		if !ok {
			continue
		}
		if r.reconcileOneTrackingChange(cached, EventDeleted) {
			anyChanged = true
		}
	}

	if r.metrics != nil {
		r.metrics.reconcilePasses.Inc()
	}
	if anyChanged {
		if r.cfg.Script != "" {
			r.notifier.Execute(r.cfg.Script)
		}
		if r.cfg.ReqURL != "" {
			r.notifier.Notify()
		}
	}
}

// reconcileOneTrackingChange runs the diff-and-apply logic shared with ReconcileEvent but
// reports whether anything changed instead of notifying immediately, so ReconcileFullSet can
// coalesce notification across the whole pass (§4.5, testable property 6).
func (r *Reconciler) reconcileOneTrackingChange(s *Snapshot, event EventType) bool {
	key := s.Key()

	if r.cfg.IgnoreAlreadyProcessed {
		if seen, ok := r.cache.seenVersion(key); ok && seen == s.ResourceVersion {
			if event == EventDeleted {
				r.cache.dropSeenVersion(key)
			} else {
				level.Debug(r.logger).Log("msg", "resource version already processed, skipping",
					"namespace", s.Namespace, "name", s.Name, "resource_version", s.ResourceVersion)
				return false
			}
		} else if event != EventDeleted {
			r.cache.setSeenVersion(key, s.ResourceVersion)
		}
	}

	dest := resolveDestFolder(r.cfg, s)
	isRemoved := event == EventDeleted

	switch s.Kind {
	case KindSecret:
		return r.reconcileSecret(s, key, dest, isRemoved)
	default:
		return r.reconcileConfigMap(s, key, dest, isRemoved)
	}
}

func (r *Reconciler) reconcileConfigMap(s *Snapshot, key Key, dest string, isRemoved bool) bool {
	if isRemoved {
		cached, ok := r.cache.object(key)
		if !ok {
			return false
		}
		cachedDest, _ := r.cache.destFolder(key)
		if cachedDest == "" {
			cachedDest = dest
		}
		changed := r.iterate(cached.Data, cachedDest, ContentText, true, key, s.Kind)
		changed = r.iterate(cached.BinaryData, cachedDest, ContentBinary, true, key, s.Kind) || changed
		r.cache.dropObject(key)
		return changed
	}

	changed := r.iterate(s.Data, dest, ContentText, false, key, s.Kind)
	changed = r.iterate(s.BinaryData, dest, ContentBinary, false, key, s.Kind) || changed

	old, hasOld := r.cache.object(key)
	oldDest, hasOldDest := r.cache.destFolder(key)
	if hasOld {
		if hasOldDest && oldDest == dest {
			staleText := remainingKeys(old.Data, s.Data)
			staleBinary := remainingKeys(old.BinaryData, s.BinaryData)
			changed = r.iterate(staleText, dest, ContentText, true, key, s.Kind) || changed
			changed = r.iterate(staleBinary, dest, ContentBinary, true, key, s.Kind) || changed
		} else if hasOldDest {
			changed = r.iterate(old.Data, oldDest, ContentText, true, key, s.Kind) || changed
			changed = r.iterate(old.BinaryData, oldDest, ContentBinary, true, key, s.Kind) || changed
		}
	}

	r.cache.setObject(key, s.DeepCopy())
	r.cache.setDestFolder(key, dest)
	return changed
}

func (r *Reconciler) reconcileSecret(s *Snapshot, key Key, dest string, isRemoved bool) bool {
	if isRemoved {
		cached, ok := r.cache.object(key)
		if !ok {
			return false
		}
		cachedDest, _ := r.cache.destFolder(key)
		if cachedDest == "" {
			cachedDest = dest
		}
		changed := r.iterate(cached.Data, cachedDest, ContentBinary, true, key, s.Kind)
		r.cache.dropObject(key)
		return changed
	}

	changed := r.iterate(s.Data, dest, ContentBinary, false, key, s.Kind)

	old, hasOld := r.cache.object(key)
	oldDest, hasOldDest := r.cache.destFolder(key)
	if hasOld {
		if hasOldDest && oldDest == dest {
			stale := remainingKeys(old.Data, s.Data)
			changed = r.iterate(stale, dest, ContentBinary, true, key, s.Kind) || changed
		} else if hasOldDest {
			changed = r.iterate(old.Data, oldDest, ContentBinary, true, key, s.Kind) || changed
		}
	}

	r.cache.setObject(key, s.DeepCopy())
	r.cache.setDestFolder(key, dest)
	return changed
}

// remainingKeys returns the subset of old not present in current, used to find keys removed
// from a resource's data so stale projected files can be cleaned up (§4.5 folder-move /
// key-removal cleanup).
func remainingKeys(old, current map[string]string) map[string]string {
	if len(old) == 0 {
		return nil
	}
	out := make(map[string]string)
	for k, v := range old {
		if _, ok := current[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// iterate implements §4.5's _iterate: resolve each data key to a (filename, payload), then
// write or remove it. Resolver failures are logged with (data_key, dest) context and counted as
// "no change" per §7.
func (r *Reconciler) iterate(data map[string]string, dest string, kind ContentKind, remove bool, key Key, resKind Kind) bool {
	changed := false
	for dataKey, rawValue := range data {
		filename, payload, err := r.resolver.Resolve(dataKey, rawValue, kind, key.Namespace, resKind, key.Name)
		if err != nil {
			level.Error(r.logger).Log("msg", "content resolution failed", "data_key", dataKey, "dest", dest, "err", err)
			continue
		}
		if remove {
			if r.projector.Remove(dest, filename) {
				changed = true
			}
			continue
		}
		if r.projector.Write(dest, filename, payload, kind) {
			changed = true
		}
	}
	return changed
}
