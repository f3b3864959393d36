package sidecar

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// apiClient adapts the distinct ConfigMap/Secret typed clientsets to the single shape the
// watch/list loops need, keyed by Kind. Grounded on pkg/secrets/watch.go's direct use of
// client.CoreV1().Secrets(ns), generalized to also cover ConfigMaps.
type apiClient struct {
	clientset kubernetes.Interface
}

// NewAPIClient adapts clientset to the watch/list shape the core engine needs.
func NewAPIClient(clientset kubernetes.Interface) *apiClient {
	return &apiClient{clientset: clientset}
}

func (c *apiClient) watch(ctx context.Context, ns string, kind Kind, opts metav1.ListOptions) (watch.Interface, error) {
	switch kind {
	case KindSecret:
		return c.clientset.CoreV1().Secrets(ns).Watch(ctx, opts)
	default:
		return c.clientset.CoreV1().ConfigMaps(ns).Watch(ctx, opts)
	}
}

// list returns the matching snapshots plus the list's ResourceVersion, used to seed a
// subsequent watch (§12 supplement: initial full list before watch start).
func (c *apiClient) list(ctx context.Context, ns string, kind Kind, opts metav1.ListOptions) ([]*Snapshot, string, error) {
	switch kind {
	case KindSecret:
		list, err := c.clientset.CoreV1().Secrets(ns).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		out := make([]*Snapshot, 0, len(list.Items))
		for i := range list.Items {
			out = append(out, SnapshotFromSecret(&list.Items[i]))
		}
		return out, list.ResourceVersion, nil
	default:
		list, err := c.clientset.CoreV1().ConfigMaps(ns).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		out := make([]*Snapshot, 0, len(list.Items))
		for i := range list.Items {
			out = append(out, SnapshotFromConfigMap(&list.Items[i]))
		}
		return out, list.ResourceVersion, nil
	}
}

// snapshotFromWatchObject converts a watch.Event's runtime.Object to a Snapshot.
func snapshotFromWatchObject(obj interface{}, kind Kind) (*Snapshot, error) {
	switch kind {
	case KindSecret:
		s, ok := obj.(*corev1.Secret)
		if !ok {
			return nil, fmt.Errorf("unexpected watch object type %T for secret", obj)
		}
		return SnapshotFromSecret(s), nil
	default:
		cm, ok := obj.(*corev1.ConfigMap)
		if !ok {
			return nil, fmt.Errorf("unexpected watch object type %T for configmap", obj)
		}
		return SnapshotFromConfigMap(cm), nil
	}
}

// labelSelector builds the §4.6 step 1 selector: "key=value" when a value is configured, else
// the bare key to match presence only.
func labelSelector(key, value string) string {
	if value != "" {
		return fmt.Sprintf("%s=%s", key, value)
	}
	return key
}
