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

// Package sharding keeps at most one live entity per key cluster-wide.
// A key's messages land on the node the ring assigns it to; the first
// message spawns the entity there. Entities stay live until their Stop
// message arrives, there is no passivation.
package sharding

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Entity consumes its inbox messages serially on a single goroutine.
type Entity interface {
	// Receive handles one message. Never called concurrently for one key.
	Receive(msg any)
	// Terminate releases entity resources. No Receive follows it.
	Terminate()
}

// Factory builds the entity for an unmarshaled key on first message.
type Factory func(key string) (Entity, error)

// Forwarder carries messages to the owning node when it is not this one.
type Forwarder interface {
	Forward(ctx context.Context, node, key string, msg any) error
}

// Proxy routes keyed messages to entities, spawning them on demand.
type Proxy struct {
	node        string
	hostingRole bool
	ring        *Ring
	factory     Factory
	forwarder   Forwarder
	inboxSize   int
	log         *zap.Logger

	mu       sync.Mutex
	mailboxes map[string]*mailbox
}

type stopMsg struct{}

type mailbox struct {
	inbox chan any
	done  chan struct{}
}

// NewProxy builds a proxy for this node. hostingRole must only be true on
// nodes carrying the FlinkOperator role; other nodes forward keys owned by
// peers and return an error for keys the ring assigns to themselves.
func NewProxy(node string, hostingRole bool, ring *Ring, factory Factory, forwarder Forwarder, logger *zap.Logger) *Proxy {
	return &Proxy{
		node:        node,
		hostingRole: hostingRole,
		ring:        ring,
		factory:     factory,
		forwarder:   forwarder,
		inboxSize:   64,
		log:         logger.Named("sharding"),
		mailboxes:   make(map[string]*mailbox),
	}
}

// Tell routes msg to the entity owning key, spawning it when absent.
func (p *Proxy) Tell(ctx context.Context, key string, msg any) error {
	owner := p.ring.Owner(key)
	if owner != p.node {
		if p.forwarder == nil {
			return fmt.Errorf("no route to shard owner %q for key %q", owner, key)
		}
		return p.forwarder.Forward(ctx, owner, key, msg)
	}
	if !p.hostingRole {
		return fmt.Errorf("node %q owns key %q but does not carry the hosting role", p.node, key)
	}
	mb, err := p.mailboxFor(key)
	if err != nil {
		return err
	}
	select {
	case mb.inbox <- msg:
		return nil
	case <-mb.done:
		// entity terminated concurrently, retry against a fresh one
		mb, err = p.mailboxFor(key)
		if err != nil {
			return err
		}
		select {
		case mb.inbox <- msg:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop delivers the stop message and waits for the entity to terminate.
// Everything enqueued before the stop is still processed first.
func (p *Proxy) Stop(ctx context.Context, key string) error {
	owner := p.ring.Owner(key)
	if owner != p.node {
		if p.forwarder == nil {
			return fmt.Errorf("no route to shard owner %q for key %q", owner, key)
		}
		return p.forwarder.Forward(ctx, owner, key, stopMsg{})
	}
	p.mu.Lock()
	mb, ok := p.mailboxes[key]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case mb.inbox <- stopMsg{}:
	case <-mb.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-mb.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LiveKeys lists keys with a live local entity.
func (p *Proxy) LiveKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.mailboxes))
	for k := range p.mailboxes {
		keys = append(keys, k)
	}
	return keys
}

func (p *Proxy) mailboxFor(key string) (*mailbox, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if mb, ok := p.mailboxes[key]; ok {
		select {
		case <-mb.done:
			// fall through and respawn
		default:
			return mb, nil
		}
	}
	entity, err := p.factory(key)
	if err != nil {
		return nil, fmt.Errorf("spawn entity for key %q: %w", key, err)
	}
	mb := &mailbox{inbox: make(chan any, p.inboxSize), done: make(chan struct{})}
	p.mailboxes[key] = mb
	go p.runMailbox(key, entity, mb)
	return mb, nil
}

// runMailbox is the entity's single consumer loop. A panicking Receive is
// survived by rebuilding the entity from the factory with fresh state.
func (p *Proxy) runMailbox(key string, entity Entity, mb *mailbox) {
	defer close(mb.done)
	for msg := range mb.inbox {
		if _, isStop := msg.(stopMsg); isStop {
			entity.Terminate()
			p.mu.Lock()
			delete(p.mailboxes, key)
			p.mu.Unlock()
			return
		}
		if restarted := p.receiveSupervised(key, entity, msg); restarted != nil {
			entity = restarted
		}
	}
}

func (p *Proxy) receiveSupervised(key string, entity Entity, msg any) (restarted Entity) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("entity panicked, restarting",
				zap.String("key", key), zap.Any("panic", r))
			entity.Terminate()
			fresh, err := p.factory(key)
			if err != nil {
				p.log.Error("entity restart failed", zap.String("key", key), zap.Error(err))
				return
			}
			restarted = fresh
		}
	}()
	entity.Receive(msg)
	return nil
}
