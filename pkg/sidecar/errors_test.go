package sidecar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFatalErrorWrapsAndUnwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := NewFatalError("configmap/default", cause)

	require.ErrorContains(t, err, "fatal error in configmap/default")
	require.ErrorContains(t, err, "boom")
	require.ErrorIs(t, err, cause)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	require.Equal(t, "configmap/default", fatal.Loop)
}

func TestNewFatalErrorNilPassthrough(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewFatalError("configmap/default", nil))
}
