// Package sidecar implements the synchronization engine of the cluster-resource file
// projector: watch/list loops, content resolution, file projection, change detection and
// outbound notification.
package sidecar

import (
	corev1 "k8s.io/api/core/v1"
)

// Kind identifies which Kubernetes resource type a loop or snapshot refers to.
type Kind string

const (
	KindConfigMap Kind = "configmap"
	KindSecret    Kind = "secret"
)

func (k Kind) String() string { return string(k) }

// Key identifies a resource by namespace and name, independent of its Kind.
type Key struct {
	Namespace string
	Name      string
}

// Snapshot is the abstract record the reconciler operates on (spec §3): a point-in-time view of
// one ConfigMap or Secret, kind-tagged so the rest of the pipeline need not type-switch on the
// underlying Kubernetes API object.
type Snapshot struct {
	Namespace       string
	Name            string
	ResourceVersion string
	Annotations     map[string]string
	// Data holds UTF-8 text for ConfigMaps and base64-encoded bytes for Secrets, matching the
	// Kubernetes wire convention for each kind.
	Data map[string]string
	// BinaryData is only ever populated for ConfigMaps; Secrets carry everything in Data.
	BinaryData map[string]string
	Kind       Kind
}

// Key returns the (namespace, name) identity of the snapshot.
func (s *Snapshot) Key() Key {
	return Key{Namespace: s.Namespace, Name: s.Name}
}

// DeepCopy returns an owned copy of s so callers may retain it in a cache without aliasing the
// maps of an object that the watch layer may mutate or release.
func (s *Snapshot) DeepCopy() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Namespace:       s.Namespace,
		Name:            s.Name,
		ResourceVersion: s.ResourceVersion,
		Kind:            s.Kind,
	}
	out.Annotations = copyMap(s.Annotations)
	out.Data = copyMap(s.Data)
	out.BinaryData = copyMap(s.BinaryData)
	return out
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SnapshotFromConfigMap builds a Snapshot from a live ConfigMap object.
func SnapshotFromConfigMap(cm *corev1.ConfigMap) *Snapshot {
	return &Snapshot{
		Namespace:       cm.Namespace,
		Name:            cm.Name,
		ResourceVersion: cm.ResourceVersion,
		Annotations:     cm.Annotations,
		Data:            cm.Data,
		BinaryData:      encodeBinaryData(cm.BinaryData),
		Kind:            KindConfigMap,
	}
}

// SnapshotFromSecret builds a Snapshot from a live Secret object. Secret.Data values are raw
// bytes in the API type; we carry them through the pipeline base64-encoded like the rest of
// Data so the content resolver's base64-decode step is uniform across both kinds.
func SnapshotFromSecret(s *corev1.Secret) *Snapshot {
	data := make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		data[k] = base64StdEncode(v)
	}
	return &Snapshot{
		Namespace:       s.Namespace,
		Name:            s.Name,
		ResourceVersion: s.ResourceVersion,
		Annotations:     s.Annotations,
		Data:            data,
		Kind:            KindSecret,
	}
}

func encodeBinaryData(in map[string][]byte) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = base64StdEncode(v)
	}
	return out
}
