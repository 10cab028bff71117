// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package membus implements a process-local, in-memory publish/subscribe
// bus satisfying transport.Factory. It stands in for a real messaging
// middleware in tests and in the CLI demo; the recorder and player never
// know the difference.
package membus

import (
	"sync"

	"github.com/zwhy2025/openbag/transport"
)

// Bus is a concrete transport.Factory. Publish fans a message out to every
// currently-subscribed callback for that topic, each on its own goroutine,
// matching the "many producers, opaque to the core" model the recorder is
// built against.
//
// Bus is safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[*subscriber]struct{})}
}

// CreateSubscriber implements transport.Factory.
func (b *Bus) CreateSubscriber(topic string, cb transport.Callback) (transport.Subscriber, error) {
	sub := &subscriber{bus: b, topic: topic, cb: cb}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*subscriber]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

// CreatePublisher implements transport.Factory.
func (b *Bus) CreatePublisher(topic string) (transport.Publisher, error) {
	return &publisher{bus: b, topic: topic}, nil
}

// publish fans payload out to every live subscriber of topic, each on its
// own goroutine, and reports whether there was at least one subscriber to
// deliver to.
func (b *Bus) publish(topic string, payload []byte) bool {
	b.mu.Lock()
	subs := b.subs[topic]
	targets := make([]*subscriber, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	if len(targets) == 0 {
		return false
	}

	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, sub := range targets {
		go func(sub *subscriber) {
			defer wg.Done()
			sub.deliver(payload)
		}(sub)
	}
	wg.Wait()
	return true
}

func (b *Bus) removeSubscriber(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set := b.subs[sub.topic]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.topic)
		}
	}
}

type subscriber struct {
	bus   *Bus
	topic string
	cb    transport.Callback

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) TopicName() string { return s.topic }

func (s *subscriber) deliver(payload []byte) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.cb(payload)
	}
}

func (s *subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.bus.removeSubscriber(s)
	return nil
}

type publisher struct {
	bus   *Bus
	topic string

	mu     sync.Mutex
	closed bool
}

func (p *publisher) TopicName() string { return p.topic }

func (p *publisher) Publish(payload []byte) bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return false
	}
	return p.bus.publish(p.topic, payload)
}

func (p *publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
