package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsAppliedForNonPositive(t *testing.T) {
	l := New(Config{})
	require.NotNil(t, l)
}

func TestAllowN_RespectsBurst(t *testing.T) {
	l := New(Config{RequestsPerSecond: 10, Burst: 5})
	now := time.Now()
	require.True(t, l.AllowN(now, 5))
	require.False(t, l.AllowN(now, 1))
}

func TestTenantLimiters_IsolatesPerTenant(t *testing.T) {
	reg := NewTenantLimiters(Config{RequestsPerSecond: 10, Burst: 2})
	now := time.Now()
	require.True(t, reg.For("tenant-a").AllowN(now, 2))
	require.False(t, reg.For("tenant-a").AllowN(now, 1))
	require.True(t, reg.For("tenant-b").AllowN(now, 2))
}

func TestWaitN_CancelsOnContext(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	now := time.Now()
	require.True(t, l.AllowN(now, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := l.WaitN(ctx, 1)
	require.Error(t, err)
}
