package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	m.EventsIngestedTotal.WithLabelValues("tenant-a", "firewall").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestReapInactive_DropsStaleGauges(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.SetQueueDepth("tenant-a", 5)
	m.lastSeen.Store("queue_depth|tenant-a", time.Now().Add(-2*time.Hour))

	m.ReapInactive(time.Hour)

	_, ok := m.lastSeen.Load("queue_depth|tenant-a")
	require.False(t, ok)
}

func TestReapInactive_KeepsFresh(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.SetQueueDepth("tenant-a", 5)

	m.ReapInactive(time.Hour)

	_, ok := m.lastSeen.Load("queue_depth|tenant-a")
	require.True(t, ok)
}

func TestHandler_ServesMetrics(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
