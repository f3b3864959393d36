package sidecar

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaultAndValidateFillsDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{Label: "watch-me", Folder: "/data", Namespaces: []string{"default"}}
	require.NoError(t, cfg.DefaultAndValidate(log.NewNopLogger()))

	require.Equal(t, DefaultFolderAnnotation, cfg.FolderAnnotation)
	require.Equal(t, ResourceConfigMap, cfg.Resources)
	require.Equal(t, MethodWatch, cfg.Method)
	require.Equal(t, defaultSleepTime, cfg.SleepTime)
	require.Equal(t, defaultErrorThrottleSleep, cfg.ErrorThrottleSleep)
	require.Equal(t, defaultReqRetryTotal, cfg.ReqRetryTotal)
	require.Equal(t, defaultBasicAuthEncoding, cfg.ReqBasicAuthEncoding)
	require.Equal(t, "POST", cfg.ReqMethod)
}

func TestConfigDefaultAndValidateRequiresLabel(t *testing.T) {
	t.Parallel()

	cfg := &Config{Folder: "/data", Namespaces: []string{"default"}}
	err := cfg.DefaultAndValidate(log.NewNopLogger())
	require.ErrorContains(t, err, "LABEL")
}

func TestConfigDefaultAndValidateRequiresFolder(t *testing.T) {
	t.Parallel()

	cfg := &Config{Label: "watch-me", Namespaces: []string{"default"}}
	err := cfg.DefaultAndValidate(log.NewNopLogger())
	require.ErrorContains(t, err, "FOLDER")
}

func TestConfigDefaultAndValidateRequiresNamespace(t *testing.T) {
	t.Parallel()

	cfg := &Config{Label: "watch-me", Folder: "/data"}
	err := cfg.DefaultAndValidate(log.NewNopLogger())
	require.ErrorContains(t, err, "NAMESPACE")
}

func TestConfigAllNamespaces(t *testing.T) {
	t.Parallel()

	require.True(t, (&Config{Namespaces: []string{"ALL"}}).AllNamespaces())
	require.True(t, (&Config{Namespaces: []string{"all"}}).AllNamespaces())
	require.False(t, (&Config{Namespaces: []string{"default"}}).AllNamespaces())
	require.False(t, (&Config{Namespaces: []string{"ALL", "default"}}).AllNamespaces())
}

func TestConfigLabelForHonorsOverride(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Label:       "shared-label",
		LabelByKind: map[Kind]string{KindSecret: "secret-only-label"},
	}
	require.Equal(t, "shared-label", cfg.LabelFor(KindConfigMap))
	require.Equal(t, "secret-only-label", cfg.LabelFor(KindSecret))
}

func TestResourcesKinds(t *testing.T) {
	t.Parallel()

	require.Equal(t, []Kind{KindConfigMap}, ResourceConfigMap.Kinds())
	require.Equal(t, []Kind{KindSecret}, ResourceSecret.Kinds())
	require.Equal(t, []Kind{KindConfigMap, KindSecret}, ResourceBoth.Kinds())
}
