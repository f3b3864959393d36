package sidecar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestProjectorWriteCreatesFolderAndFile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested")
	p := NewProjector(log.NewNopLogger(), nil, nil)

	changed := p.Write(dir, "a.yaml", []byte("hello"), ContentText)
	require.True(t, changed)

	got, err := os.ReadFile(filepath.Join(dir, "a.yaml"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestProjectorWriteSkipsIdenticalContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewProjector(log.NewNopLogger(), nil, nil)

	require.True(t, p.Write(dir, "a.yaml", []byte("hello"), ContentText))
	require.False(t, p.Write(dir, "a.yaml", []byte("hello"), ContentText))
}

func TestProjectorWriteDetectsChangedContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewProjector(log.NewNopLogger(), nil, nil)

	require.True(t, p.Write(dir, "a.yaml", []byte("hello"), ContentText))
	require.True(t, p.Write(dir, "a.yaml", []byte("world"), ContentText))

	got, err := os.ReadFile(filepath.Join(dir, "a.yaml"))
	require.NoError(t, err)
	require.Equal(t, "world", string(got))
}

func TestProjectorWriteAppliesFileMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mode := 0o640
	p := NewProjector(log.NewNopLogger(), &mode, nil)

	require.True(t, p.Write(dir, "a.yaml", []byte("hello"), ContentText))

	info, err := os.Stat(filepath.Join(dir, "a.yaml"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestProjectorRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewProjector(log.NewNopLogger(), nil, nil)

	require.True(t, p.Write(dir, "a.yaml", []byte("hello"), ContentText))
	require.True(t, p.Remove(dir, "a.yaml"))
	require.False(t, p.Remove(dir, "a.yaml"))

	_, err := os.Stat(filepath.Join(dir, "a.yaml"))
	require.True(t, os.IsNotExist(err))
}
