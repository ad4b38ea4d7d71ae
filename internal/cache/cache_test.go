package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	c.Set("rule-1:sql", "SELECT 1", 0)
	v, ok := c.Get("rule-1:sql")
	require.True(t, ok)
	require.Equal(t, "SELECT 1", v)
}

func TestGet_ExpiredEntryMisses(t *testing.T) {
	c := New(Config{DefaultTTL: time.Millisecond})
	defer c.Close()

	c.Set("rule-1:sql", "SELECT 1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("rule-1:sql")
	require.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	c.Set("rule-1:sql", "SELECT 1", 0)
	c.Invalidate("rule-1:sql")

	_, ok := c.Get("rule-1:sql")
	require.False(t, ok)
}

func TestInvalidateAll_BumpsVersion(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	c.Set("rule-1:sql", "SELECT 1", 0)
	before := c.CurrentVersion()
	c.InvalidateAll()

	require.Greater(t, c.CurrentVersion(), before)
	require.Equal(t, 0, c.Size())
}
