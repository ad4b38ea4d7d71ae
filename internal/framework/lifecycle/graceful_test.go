package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGracefulShutdown_WaitsForInFlight(t *testing.T) {
	gs := NewGracefulShutdown()
	require.True(t, gs.Add())
	require.Equal(t, int64(1), gs.InFlight())

	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		gs.Done()
		close(done)
	}()

	gs.Shutdown()
	require.True(t, gs.IsShuttingDown())
	require.False(t, gs.Add())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, gs.Wait(ctx))
	<-done
}

func TestOperationGuard_RejectsAfterShutdown(t *testing.T) {
	gs := NewGracefulShutdown()
	gs.Shutdown()
	require.Nil(t, NewOperationGuard(gs))
}

func TestOperationGuard_TracksInFlight(t *testing.T) {
	gs := NewGracefulShutdown()
	guard := NewOperationGuard(gs)
	require.NotNil(t, guard)
	require.Equal(t, int64(1), gs.InFlight())
	guard.Close()
	require.Equal(t, int64(0), gs.InFlight())
}
