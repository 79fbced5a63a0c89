package sharding

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"gotest.tools/v3/assert"
)

type recordingEntity struct {
	key        string
	received   chan any
	terminated *atomic.Int32
	panicOn    string
}

func (e *recordingEntity) Receive(msg any) {
	if s, ok := msg.(string); ok && s == e.panicOn {
		panic("boom")
	}
	e.received <- msg
}

func (e *recordingEntity) Terminate() {
	e.terminated.Add(1)
}

func newTestProxy(t *testing.T, panicOn string) (*Proxy, chan any, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	received := make(chan any, 16)
	terminated := &atomic.Int32{}
	spawned := &atomic.Int32{}
	factory := func(key string) (Entity, error) {
		spawned.Add(1)
		return &recordingEntity{key: key, received: received, terminated: terminated, panicOn: panicOn}, nil
	}
	ring := NewRing([]string{"self"})
	p := NewProxy("self", true, ring, factory, nil, zap.NewNop())
	return p, received, terminated, spawned
}

func waitFor(t *testing.T, ch chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entity message")
		return nil
	}
}

func TestTellSpawnsOnDemand(t *testing.T) {
	p, received, _, spawned := newTestProxy(t, "")
	ctx := context.Background()

	assert.NilError(t, p.Tell(ctx, "jmMt@c1@ns1", "hello"))
	assert.Equal(t, waitFor(t, received), "hello")
	assert.Equal(t, spawned.Load(), int32(1))

	// second message reuses the live entity
	assert.NilError(t, p.Tell(ctx, "jmMt@c1@ns1", "again"))
	assert.Equal(t, waitFor(t, received), "again")
	assert.Equal(t, spawned.Load(), int32(1))
}

func TestStopTerminatesAndReleasesSlot(t *testing.T) {
	p, received, terminated, spawned := newTestProxy(t, "")
	ctx := context.Background()

	assert.NilError(t, p.Tell(ctx, "jmMt@c1@ns1", "one"))
	waitFor(t, received)
	assert.NilError(t, p.Stop(ctx, "jmMt@c1@ns1"))

	// wait out the mailbox shutdown
	deadline := time.Now().Add(2 * time.Second)
	for terminated.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, terminated.Load(), int32(1))
	assert.Equal(t, len(p.LiveKeys()), 0)

	// a message after Stop spawns a fresh entity
	assert.NilError(t, p.Tell(ctx, "jmMt@c1@ns1", "two"))
	assert.Equal(t, waitFor(t, received), "two")
	assert.Equal(t, spawned.Load(), int32(2))
}

func TestStopWithoutEntityIsIdempotent(t *testing.T) {
	p, _, _, spawned := newTestProxy(t, "")
	assert.NilError(t, p.Stop(context.Background(), "jmMt@c1@ns1"))
	assert.Equal(t, spawned.Load(), int32(0))
}

func TestPanicRestartsEntity(t *testing.T) {
	p, received, terminated, spawned := newTestProxy(t, "kaboom")
	ctx := context.Background()

	assert.NilError(t, p.Tell(ctx, "jmMt@c1@ns1", "kaboom"))
	assert.NilError(t, p.Tell(ctx, "jmMt@c1@ns1", "after"))
	assert.Equal(t, waitFor(t, received), "after")

	assert.Equal(t, spawned.Load(), int32(2))
	assert.Equal(t, terminated.Load(), int32(1))
}

func TestRingAssignmentIsStable(t *testing.T) {
	ring := NewRing([]string{"nodeB", "nodeA", "nodeC"})
	first := ring.Owner("jmMt@c1@ns1")
	for i := 0; i < 10; i++ {
		assert.Equal(t, ring.Owner("jmMt@c1@ns1"), first)
	}
	// order of the member list does not change assignments
	ring2 := NewRing([]string{"nodeC", "nodeA", "nodeB"})
	assert.Equal(t, ring2.Owner("jmMt@c1@ns1"), first)
}

func TestNonHostingNodeRefusesLocalSpawn(t *testing.T) {
	ring := NewRing([]string{"self"})
	p := NewProxy("self", false, ring, func(string) (Entity, error) { return nil, nil }, nil, zap.NewNop())
	err := p.Tell(context.Background(), "jmMt@c1@ns1", "x")
	assert.ErrorContains(t, err, "hosting role")
}
