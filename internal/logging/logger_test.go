package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		service string
		level   string
		format  string
	}{
		{"json logger", "sink", "info", "json"},
		{"text logger", "sink", "debug", "text"},
		{"invalid level defaults to info", "sink", "bogus", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.service, tt.level, tt.format)
			require.NotNil(t, logger)
			require.Equal(t, tt.service, logger.service)
		})
	}
}

func TestLogger_WithContext(t *testing.T) {
	logger := New("batchsched", "info", "json")
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithTenantID(ctx, "tenant-a")
	ctx = WithRuleID(ctx, "rule-1")

	entry := logger.WithContext(ctx)
	require.Equal(t, "batchsched", entry.Data["service"])
	require.Equal(t, "trace-1", entry.Data["trace_id"])
	require.Equal(t, "tenant-a", entry.Data["tenant_id"])
	require.Equal(t, "rule-1", entry.Data["rule_id"])
}

func TestLogger_WithError(t *testing.T) {
	logger := New("sink", "info", "json")
	entry := logger.WithError(errors.New("boom"))
	require.Equal(t, "boom", entry.Data["error"])
}

func TestTenantID(t *testing.T) {
	ctx := WithTenantID(context.Background(), "t1")
	require.Equal(t, "t1", TenantID(ctx))
	require.Equal(t, "", TenantID(context.Background()))
}

func TestDefault(t *testing.T) {
	require.NotNil(t, Default())
}
