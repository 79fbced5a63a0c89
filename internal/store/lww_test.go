package store

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"gotest.tools/v3/assert"
)

func newTestMap(t *testing.T, node string) *LWWMap[string, int] {
	t.Helper()
	return New[string, int]("test", node, StringCodec{}, NoopReplicator{}, zap.NewNop())
}

func TestPutGetRemove(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, "n1")

	_, ok, err := m.Get(ctx, "a")
	assert.NilError(t, err)
	assert.Equal(t, ok, false)

	assert.NilError(t, m.Put(ctx, "a", 1))
	v, ok, err := m.Get(ctx, "a")
	assert.NilError(t, err)
	assert.Equal(t, ok, true)
	assert.Equal(t, v, 1)

	contains, err := m.Contains(ctx, "a")
	assert.NilError(t, err)
	assert.Equal(t, contains, true)

	assert.NilError(t, m.Remove(ctx, "a"))
	_, ok, err = m.Get(ctx, "a")
	assert.NilError(t, err)
	assert.Equal(t, ok, false)

	size, err := m.Size(ctx)
	assert.NilError(t, err)
	assert.Equal(t, size, 0)
}

func TestGetOrElse(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, "n1")
	v, err := m.GetOrElse(ctx, "missing", func() int { return -7 })
	assert.NilError(t, err)
	assert.Equal(t, v, -7)

	assert.NilError(t, m.Put(ctx, "present", 3))
	v, err = m.GetOrElse(ctx, "present", func() int { return -7 })
	assert.NilError(t, err)
	assert.Equal(t, v, 3)
}

func TestUpdateAndUpsert(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, "n1")

	// Update on an absent key is a no-op
	assert.NilError(t, m.Update(ctx, "a", func(v int) int { return v + 1 }))
	_, ok, _ := m.Get(ctx, "a")
	assert.Equal(t, ok, false)

	assert.NilError(t, m.Upsert(ctx, "a", 10, func(v int) int { return v + 1 }))
	v, _, _ := m.Get(ctx, "a")
	assert.Equal(t, v, 10)

	assert.NilError(t, m.Upsert(ctx, "a", 10, func(v int) int { return v + 1 }))
	v, _, _ = m.Get(ctx, "a")
	assert.Equal(t, v, 11)

	assert.NilError(t, m.Update(ctx, "a", func(v int) int { return v * 2 }))
	v, _, _ = m.Get(ctx, "a")
	assert.Equal(t, v, 22)
}

func TestRemoveBySelectKey(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, "n1")
	assert.NilError(t, m.PutAll(ctx, map[string]int{"jm@c1": 1, "tm@c1": 2, "jm@c2": 3}))

	assert.NilError(t, m.RemoveBySelectKey(ctx, func(k string) bool {
		return len(k) > 3 && k[len(k)-2:] == "c1"
	}))

	all, err := m.ListAll(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(all), 1)
	assert.Equal(t, all["jm@c2"], 3)
}

func TestLWWMergeResolvesByTag(t *testing.T) {
	ctx := context.Background()
	a := newTestMap(t, "nodeA")
	b := newTestMap(t, "nodeB")

	assert.NilError(t, a.Put(ctx, "k", 1))
	assert.NilError(t, b.Put(ctx, "k", 2))
	assert.NilError(t, b.Put(ctx, "k", 3)) // nodeB has the higher counter

	// bidirectional merge converges both replicas to nodeB's write
	assert.NilError(t, a.Merge(b.Snapshot()))
	assert.NilError(t, b.Merge(a.Snapshot()))

	va, _, _ := a.Get(ctx, "k")
	vb, _, _ := b.Get(ctx, "k")
	assert.Equal(t, va, 3)
	assert.Equal(t, vb, 3)
}

func TestLWWMergeEqualCountersBreakTiesByNode(t *testing.T) {
	ctx := context.Background()
	a := newTestMap(t, "nodeA")
	b := newTestMap(t, "nodeB")

	assert.NilError(t, a.Put(ctx, "k", 1))
	assert.NilError(t, b.Put(ctx, "k", 2))

	assert.NilError(t, a.Merge(b.Snapshot()))
	assert.NilError(t, b.Merge(a.Snapshot()))

	// same counter on both writes, the larger node address wins everywhere
	va, _, _ := a.Get(ctx, "k")
	vb, _, _ := b.Get(ctx, "k")
	assert.Equal(t, va, 2)
	assert.Equal(t, vb, 2)
}

func TestTombstoneWinsOverStaleWrite(t *testing.T) {
	ctx := context.Background()
	a := newTestMap(t, "nodeA")
	b := newTestMap(t, "nodeB")

	assert.NilError(t, a.Put(ctx, "k", 1))
	assert.NilError(t, b.Merge(a.Snapshot()))

	assert.NilError(t, b.Remove(ctx, "k"))
	assert.NilError(t, b.Remove(ctx, "k")) // bump past nodeA's counter
	assert.NilError(t, a.Merge(b.Snapshot()))

	_, ok, _ := a.Get(ctx, "k")
	assert.Equal(t, ok, false)
}
