package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResultCacheGetPutRoundTrips(t *testing.T) {
	c := newResultCache()
	r := Result{Stats: []MoveStat{{Move: "e4", WhiteWins: 1}}}
	c.put("k1", r)

	got, ok := c.get("k1")
	require.True(t, ok)
	require.Equal(t, r, got)

	_, ok = c.get("missing")
	require.False(t, ok)
}

func TestResultCacheEvictsOldestTwentyPercentAtThreshold(t *testing.T) {
	c := newResultCache()
	for i := 0; i < cacheSizeThreshold; i++ {
		c.put(fmt.Sprintf("k%d", i), Result{})
	}
	require.Equal(t, cacheSizeThreshold, c.len())

	// One more insert crosses the threshold and triggers eviction of the
	// oldest 20%.
	c.put("trigger", Result{})
	require.Less(t, c.len(), cacheSizeThreshold+1)

	_, ok := c.get("k0")
	require.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.get("trigger")
	require.True(t, ok, "just-inserted entry should survive its own eviction")
}
