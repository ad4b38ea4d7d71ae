package rule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBatchDedupHash_Deterministic(t *testing.T) {
	h1 := BatchDedupHash("rule-1", "tenant-a")
	h2 := BatchDedupHash("rule-1", "tenant-a")
	require.Equal(t, h1, h2)
	require.Len(t, h1, 16)

	h3 := BatchDedupHash("rule-1", "tenant-b")
	require.NotEqual(t, h1, h3)
}

func TestThrottleWindow_FloorsToMinimum60(t *testing.T) {
	now := time.Unix(1000, 0)
	require.Equal(t, now.Unix()/60, ThrottleWindow(now, 0))
	require.Equal(t, now.Unix()/60, ThrottleWindow(now, 30))
	require.Equal(t, now.Unix()/120, ThrottleWindow(now, 120))
}

func TestBatchAlertID_Deterministic(t *testing.T) {
	dedup := BatchDedupHash("rule-1", "tenant-a")
	id1 := BatchAlertID(dedup, 42)
	id2 := BatchAlertID(dedup, 42)
	require.Equal(t, id1, id2)

	id3 := BatchAlertID(dedup, 43)
	require.NotEqual(t, id1, id3)
}

func TestStreamAlertID_Deterministic(t *testing.T) {
	id1 := StreamAlertID("rule-1", "tenant-a", "group-1", "1234-0")
	id2 := StreamAlertID("rule-1", "tenant-a", "group-1", "1234-0")
	require.Equal(t, id1, id2)

	id3 := StreamAlertID("rule-1", "tenant-a", "group-1", "1234-1")
	require.NotEqual(t, id1, id3)
}

func TestDedupKey(t *testing.T) {
	require.Equal(t, "dedup:rule-1:tenant-a|evt-1", DedupKey("rule-1", []string{"tenant-a", "evt-1"}))
	require.Equal(t, "dedup:rule-1:", DedupKey("rule-1", nil))
}
