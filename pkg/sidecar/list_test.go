package sidecar

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func newTestListLoop(t *testing.T, dir string, cs *fake.Clientset, sleepTime int) *ListLoop {
	t.Helper()
	cfg := &Config{
		Label:              "watch-me",
		LabelValue:         "true",
		Folder:             dir,
		FolderAnnotation:   DefaultFolderAnnotation,
		Namespaces:         []string{"ns"},
		SleepTime:          sleepTime,
		ErrorThrottleSleep: 1,
	}
	require.NoError(t, cfg.DefaultAndValidate(log.NewNopLogger()))

	client := NewAPIClient(cs)
	projector := NewProjector(log.NewNopLogger(), nil, nil)
	resolver := NewResolver(&stubFetcher{}, false)
	notifier := NewNotifier(log.NewNopLogger(), cfg, nil)
	reconciler := NewReconciler(log.NewNopLogger(), cfg, projector, resolver, notifier, nil)

	return NewListLoop(log.NewNopLogger(), cfg, client, reconciler, NewMetrics(nil), "ns", KindConfigMap)
}

func TestListLoopProjectsOnEachPollAndCleansUpRemoved(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "dash", Labels: map[string]string{"watch-me": "true"}},
		Data:       map[string]string{"a.yaml": "a: 1"},
	}
	cs := fake.NewSimpleClientset(cm)
	loop := newTestListLoop(t, dir, cs, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case <-loop.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("list loop never became ready")
	}

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(filepath.Join(dir, "a.yaml"))
		return err == nil && string(b) == "a: 1"
	}, 5*time.Second, 50*time.Millisecond, "file was not projected after initial pass")

	require.NoError(t, cs.CoreV1().ConfigMaps("ns").Delete(ctx, "dash", metav1.DeleteOptions{}))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "a.yaml"))
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond, "file was not removed once resource dropped out of the list")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("list loop did not exit after context cancellation")
	}
}
