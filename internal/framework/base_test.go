package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceBase_Lifecycle(t *testing.T) {
	b := NewServiceBase("stream-runner", "rules")
	require.Equal(t, "stream-runner", b.Name())
	require.Equal(t, StateUninitialized, b.State())

	b.MarkStarted()
	require.True(t, b.IsReady())
	require.NoError(t, b.Ready(context.Background()))

	b.MarkFailed(errors.New("boom"))
	require.False(t, b.IsReady())
	require.Error(t, b.Ready(context.Background()))
	require.ErrorContains(t, b.Ready(context.Background()), "boom")

	b.MarkStopped()
	require.True(t, b.IsStopped())
}

func TestServiceBase_Metadata(t *testing.T) {
	b := NewServiceBase("sink", "ingest")
	b.SetMetadata("tenant", "acme")
	v, ok := b.GetMetadata("tenant")
	require.True(t, ok)
	require.Equal(t, "acme", v)
	require.Len(t, b.AllMetadata(), 1)
}
