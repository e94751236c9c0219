package scdedup_test

import (
	"testing"
	"time"

	"github.com/gordian-engine/shardcast/scdedup"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCache_expiryBoundary(t *testing.T) {
	t.Parallel()

	const ttl = 10 * time.Second
	const eps = time.Millisecond

	t.Run("just before ttl", func(t *testing.T) {
		t.Parallel()

		clk := newFakeClock()
		c := scdedup.New[string](ttl, clk.Now)

		require.True(t, c.InsertIfAbsent("k"))
		clk.Advance(ttl - eps)
		require.True(t, c.Contains("k"))
	})

	t.Run("just after ttl", func(t *testing.T) {
		t.Parallel()

		clk := newFakeClock()
		c := scdedup.New[string](ttl, clk.Now)

		require.True(t, c.InsertIfAbsent("k"))
		clk.Advance(ttl + eps)
		require.False(t, c.Contains("k"))

		// Lazy removal on lookup.
		require.Zero(t, c.Len())
	})
}

func TestCache_InsertIfAbsent(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	c := scdedup.New[int](time.Minute, clk.Now)

	require.True(t, c.InsertIfAbsent(1))
	require.False(t, c.InsertIfAbsent(1))

	// A failed insert must not refresh the timestamp.
	clk.Advance(40 * time.Second)
	require.False(t, c.InsertIfAbsent(1))
	clk.Advance(30 * time.Second)
	require.False(t, c.Contains(1))

	// Once expired, the key can be inserted again.
	require.True(t, c.InsertIfAbsent(1))
	require.True(t, c.Contains(1))
}

func TestCache_Evict(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	c := scdedup.New[string](time.Minute, clk.Now)

	require.True(t, c.InsertIfAbsent("a"))
	require.True(t, c.InsertIfAbsent("b"))
	clk.Advance(30 * time.Second)
	require.True(t, c.InsertIfAbsent("c"))

	require.Zero(t, c.Evict())
	require.Equal(t, 3, c.Len())

	clk.Advance(31 * time.Second)
	require.Equal(t, 2, c.Evict())
	require.Equal(t, 1, c.Len())
	require.True(t, c.Contains("c"))

	clk.Advance(time.Minute)
	require.Equal(t, 1, c.Evict())
	require.Zero(t, c.Len())
}

func TestCache_Evict_reinsertedKeyKeepsNewTimestamp(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	c := scdedup.New[string](time.Minute, clk.Now)

	require.True(t, c.InsertIfAbsent("a"))
	clk.Advance(2 * time.Minute)

	// Expired but not yet evicted; re-insert succeeds.
	require.True(t, c.InsertIfAbsent("a"))

	// The stale order record for the first insert must not remove the new entry.
	require.Zero(t, c.Evict())
	require.True(t, c.Contains("a"))

	clk.Advance(time.Minute)
	require.Equal(t, 1, c.Evict())
	require.False(t, c.Contains("a"))
}

func TestCache_Evict_afterLazyRemoval(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	c := scdedup.New[string](time.Minute, clk.Now)

	require.True(t, c.InsertIfAbsent("a"))
	clk.Advance(2 * time.Minute)
	require.False(t, c.Contains("a"))

	// Already removed by Contains, so nothing is counted.
	require.Zero(t, c.Evict())
}

func TestCache_manyEntries(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	c := scdedup.New[int](time.Second, clk.Now)

	for round := range 5 {
		for i := range 100 {
			require.True(t, c.InsertIfAbsent(round*1000+i))
			clk.Advance(time.Millisecond)
		}
		clk.Advance(2 * time.Second)
		require.Equal(t, 100, c.Evict())
		require.Zero(t, c.Len())
	}
}
