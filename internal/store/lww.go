/*
Copyright 2019 Google LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package store implements a replicated last-writer-wins key/value map.
// Writes are tagged with (counter, node); concurrent writes to one key
// resolve to the larger tag on every replica, so replicas converge without
// coordination. Removals leave tombstones so they win over stale writes.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Consistency selects how many replicas a read or write must touch.
type Consistency int

const (
	Local Consistency = iota
	Majority
	All
)

func (c Consistency) String() string {
	switch c {
	case Majority:
		return "majority"
	case All:
		return "all"
	default:
		return "local"
	}
}

// Tag orders writes. The larger (Counter, Node) pair wins.
type Tag struct {
	Counter uint64 `json:"counter"`
	Node    string `json:"node"`
}

// After reports whether t supersedes o.
func (t Tag) After(o Tag) bool {
	if t.Counter != o.Counter {
		return t.Counter > o.Counter
	}
	return t.Node > o.Node
}

type entry[V any] struct {
	Val     V
	Tag     Tag
	Deleted bool
}

// KeyCodec maps keys to the opaque strings used on the wire.
type KeyCodec[K comparable] interface {
	Marshal(K) string
	Unmarshal(string) (K, error)
}

// WireEntry is one replicated cell of a delta.
type WireEntry struct {
	Key     string          `json:"key"`
	Val     json.RawMessage `json:"val,omitempty"`
	Tag     Tag             `json:"tag"`
	Deleted bool            `json:"deleted,omitempty"`
}

// Delta is the replication unit exchanged between nodes.
type Delta struct {
	Store   string      `json:"store"`
	Entries []WireEntry `json:"entries"`
}

// LWWMap is a generic last-writer-wins map. All operations are safe for
// concurrent use; replication is handled by the attached Replicator.
type LWWMap[K comparable, V any] struct {
	name    string
	node    string
	codec   KeyCodec[K]
	repl    Replicator
	log     *zap.Logger
	counter atomic.Uint64

	mu      sync.RWMutex
	entries map[K]entry[V]
}

// Options tune per-map behavior.
type Options struct {
	ReadLevel  Consistency
	WriteLevel Consistency
}

func New[K comparable, V any](name, node string, codec KeyCodec[K], repl Replicator, logger *zap.Logger) *LWWMap[K, V] {
	m := &LWWMap[K, V]{
		name:    name,
		node:    node,
		codec:   codec,
		repl:    repl,
		log:     logger.Named("store." + name),
		entries: make(map[K]entry[V]),
	}
	repl.Attach(name, m)
	return m
}

func (m *LWWMap[K, V]) Name() string { return m.name }

func (m *LWWMap[K, V]) nextTag() Tag {
	return Tag{Counter: m.counter.Add(1), Node: m.node}
}

// Get returns the value for k from the local replica.
func (m *LWWMap[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	return m.GetWith(ctx, k, Local)
}

// GetWith reads at the given consistency level. Non-local levels pull the
// key from peers and merge before answering.
func (m *LWWMap[K, V]) GetWith(ctx context.Context, k K, level Consistency) (V, bool, error) {
	var zero V
	if level != Local {
		if err := m.pull(ctx, []K{k}, level); err != nil {
			return zero, false, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[k]
	if !ok || e.Deleted {
		return zero, false, nil
	}
	return e.Val, true, nil
}

// GetOrElse reads k and falls back to defaultNotFound on a missing key, so
// callers can distinguish "key missing" from a zero value.
func (m *LWWMap[K, V]) GetOrElse(ctx context.Context, k K, defaultNotFound func() V) (V, error) {
	v, ok, err := m.Get(ctx, k)
	if err != nil {
		return v, err
	}
	if !ok {
		return defaultNotFound(), nil
	}
	return v, nil
}

func (m *LWWMap[K, V]) Contains(ctx context.Context, k K) (bool, error) {
	_, ok, err := m.Get(ctx, k)
	return ok, err
}

func (m *LWWMap[K, V]) ListKeys(ctx context.Context) ([]K, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.entries))
	for k, e := range m.entries {
		if !e.Deleted {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *LWWMap[K, V]) ListAll(ctx context.Context) (map[K]V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[K]V, len(m.entries))
	for k, e := range m.entries {
		if !e.Deleted {
			out[k] = e.Val
		}
	}
	return out, nil
}

func (m *LWWMap[K, V]) Size(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if !e.Deleted {
			n++
		}
	}
	return n, nil
}

func (m *LWWMap[K, V]) Put(ctx context.Context, k K, v V) error {
	return m.PutWith(ctx, k, v, Local)
}

func (m *LWWMap[K, V]) PutWith(ctx context.Context, k K, v V, level Consistency) error {
	m.mu.Lock()
	e := entry[V]{Val: v, Tag: m.nextTag()}
	m.entries[k] = e
	delta := m.deltaOf(map[K]entry[V]{k: e})
	m.mu.Unlock()
	return m.push(ctx, delta, level)
}

func (m *LWWMap[K, V]) PutAll(ctx context.Context, kvs map[K]V) error {
	m.mu.Lock()
	changed := make(map[K]entry[V], len(kvs))
	for k, v := range kvs {
		e := entry[V]{Val: v, Tag: m.nextTag()}
		m.entries[k] = e
		changed[k] = e
	}
	delta := m.deltaOf(changed)
	m.mu.Unlock()
	return m.push(ctx, delta, Local)
}

func (m *LWWMap[K, V]) Remove(ctx context.Context, k K) error {
	m.mu.Lock()
	e := entry[V]{Tag: m.nextTag(), Deleted: true}
	m.entries[k] = e
	delta := m.deltaOf(map[K]entry[V]{k: e})
	m.mu.Unlock()
	return m.push(ctx, delta, Local)
}

func (m *LWWMap[K, V]) RemoveAll(ctx context.Context, keys []K) error {
	m.mu.Lock()
	changed := make(map[K]entry[V], len(keys))
	for _, k := range keys {
		e := entry[V]{Tag: m.nextTag(), Deleted: true}
		m.entries[k] = e
		changed[k] = e
	}
	delta := m.deltaOf(changed)
	m.mu.Unlock()
	return m.push(ctx, delta, Local)
}

// RemoveBySelectKey tombstones every live key the predicate selects.
func (m *LWWMap[K, V]) RemoveBySelectKey(ctx context.Context, pred func(K) bool) error {
	m.mu.Lock()
	changed := make(map[K]entry[V])
	for k, e := range m.entries {
		if e.Deleted || !pred(k) {
			continue
		}
		tomb := entry[V]{Tag: m.nextTag(), Deleted: true}
		m.entries[k] = tomb
		changed[k] = tomb
	}
	delta := m.deltaOf(changed)
	m.mu.Unlock()
	if len(changed) == 0 {
		return nil
	}
	return m.push(ctx, delta, Local)
}

// Update applies f to the current value; no-op when the key is absent.
func (m *LWWMap[K, V]) Update(ctx context.Context, k K, f func(V) V) error {
	m.mu.Lock()
	cur, ok := m.entries[k]
	if !ok || cur.Deleted {
		m.mu.Unlock()
		return nil
	}
	e := entry[V]{Val: f(cur.Val), Tag: m.nextTag()}
	m.entries[k] = e
	delta := m.deltaOf(map[K]entry[V]{k: e})
	m.mu.Unlock()
	return m.push(ctx, delta, Local)
}

// Upsert inserts vPut when the key is absent, otherwise applies f.
func (m *LWWMap[K, V]) Upsert(ctx context.Context, k K, vPut V, f func(V) V) error {
	m.mu.Lock()
	cur, ok := m.entries[k]
	val := vPut
	if ok && !cur.Deleted {
		val = f(cur.Val)
	}
	e := entry[V]{Val: val, Tag: m.nextTag()}
	m.entries[k] = e
	delta := m.deltaOf(map[K]entry[V]{k: e})
	m.mu.Unlock()
	return m.push(ctx, delta, Local)
}

// Merge folds a replication delta into the local replica, larger tags win.
func (m *LWWMap[K, V]) Merge(delta Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, we := range delta.Entries {
		k, err := m.codec.Unmarshal(we.Key)
		if err != nil {
			return fmt.Errorf("merge into %s: %w", m.name, err)
		}
		cur, ok := m.entries[k]
		if ok && !we.Tag.After(cur.Tag) {
			continue
		}
		e := entry[V]{Tag: we.Tag, Deleted: we.Deleted}
		if !we.Deleted {
			if err := json.Unmarshal(we.Val, &e.Val); err != nil {
				return fmt.Errorf("merge into %s: decode value of %q: %w", m.name, we.Key, err)
			}
		}
		m.entries[k] = e
	}
	return nil
}

// Snapshot renders the full replica as a delta, tombstones included.
func (m *LWWMap[K, V]) Snapshot() Delta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make(map[K]entry[V], len(m.entries))
	for k, e := range m.entries {
		all[k] = e
	}
	return m.deltaOf(all)
}

// SnapshotKeys renders only the named wire keys, for targeted pulls.
func (m *LWWMap[K, V]) SnapshotKeys(wireKeys []string) Delta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sel := make(map[K]entry[V], len(wireKeys))
	for _, wk := range wireKeys {
		k, err := m.codec.Unmarshal(wk)
		if err != nil {
			continue
		}
		if e, ok := m.entries[k]; ok {
			sel[k] = e
		}
	}
	return m.deltaOf(sel)
}

func (m *LWWMap[K, V]) deltaOf(changed map[K]entry[V]) Delta {
	delta := Delta{Store: m.name, Entries: make([]WireEntry, 0, len(changed))}
	for k, e := range changed {
		we := WireEntry{Key: m.codec.Marshal(k), Tag: e.Tag, Deleted: e.Deleted}
		if !e.Deleted {
			raw, err := json.Marshal(e.Val)
			if err != nil {
				m.log.Error("failed to encode entry for replication",
					zap.String("key", we.Key), zap.Error(err))
				continue
			}
			we.Val = raw
		}
		delta.Entries = append(delta.Entries, we)
	}
	return delta
}

func (m *LWWMap[K, V]) push(ctx context.Context, delta Delta, level Consistency) error {
	if len(delta.Entries) == 0 {
		return nil
	}
	if err := m.repl.Push(ctx, delta, level); err != nil {
		if level == Local {
			// local writes never fail the caller on replication trouble
			m.log.Warn("replication push failed", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

func (m *LWWMap[K, V]) pull(ctx context.Context, keys []K, level Consistency) error {
	wireKeys := make([]string, len(keys))
	for i, k := range keys {
		wireKeys[i] = m.codec.Marshal(k)
	}
	deltas, err := m.repl.Pull(ctx, m.name, wireKeys, level)
	if err != nil {
		return err
	}
	for _, d := range deltas {
		if err := m.Merge(d); err != nil {
			return err
		}
	}
	return nil
}
