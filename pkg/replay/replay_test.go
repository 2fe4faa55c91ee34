package replay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func clockAt(ms uint64) func() uint64 {
	return func() uint64 { return ms }
}

func digestOf(b byte) [32]byte {
	var d [32]byte
	d[0] = b
	return d
}

func TestObserveFreshThenReplayed(t *testing.T) {
	c := New(10, 1000, clockAt(0))
	d := digestOf(1)

	require.Equal(t, Fresh, c.Observe(d))
	require.Equal(t, Replayed, c.Observe(d))
}

func TestObserveExpiresAfterTTL(t *testing.T) {
	now := uint64(0)
	c := New(10, 1000, func() uint64 { return now })
	d := digestOf(1)

	require.Equal(t, Fresh, c.Observe(d))
	now = 1001
	require.Equal(t, Fresh, c.Observe(d), "digest should be admitted again once its TTL has elapsed")
}

func TestObserveDistinctDigestsIndependent(t *testing.T) {
	c := New(10, 1000, clockAt(0))
	require.Equal(t, Fresh, c.Observe(digestOf(1)))
	require.Equal(t, Fresh, c.Observe(digestOf(2)))
	require.Equal(t, Replayed, c.Observe(digestOf(1)))
	require.Equal(t, Replayed, c.Observe(digestOf(2)))
}

func TestCapacityEvictsOldestFirst(t *testing.T) {
	c := New(2, 1_000_000, clockAt(0))
	require.Equal(t, Fresh, c.Observe(digestOf(1)))
	require.Equal(t, Fresh, c.Observe(digestOf(2)))
	require.Equal(t, Fresh, c.Observe(digestOf(3))) // evicts digest 1, the oldest

	require.Equal(t, Fresh, c.Observe(digestOf(1)), "digest 1 was evicted and should be admitted again")
	require.Equal(t, 2, c.Len())
}
