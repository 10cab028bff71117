// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bagfile

import (
	"sync"
	"time"

	"github.com/zwhy2025/openbag/support/bufferpool"
	"github.com/zwhy2025/openbag/support/logging"
)

// DefaultPushTimeout is the default amount of time Push will wait for space
// to free up in a full Buffer before failing.
const DefaultPushTimeout = 100 * time.Millisecond

// DefaultPopTimeout is the default amount of time PopBatch will wait for
// data to arrive in an empty, running Buffer.
const DefaultPopTimeout = 100 * time.Millisecond

// Buffer is a bounded, thread-safe FIFO of *Message, with a companion index
// mapping topic to a per-topic FIFO of the same messages.
//
// Buffer is safe for concurrent Push calls from any number of producer
// goroutines. Exactly one consumer goroutine is expected to call PopBatch;
// PopBatchTopic is provided for completeness but is not used by Recorder's
// canonical drain loop.
type Buffer struct {
	// Logger is used to report dropped pushes. If nil, no logging occurs.
	Logger logging.L

	capacity int

	// pool, if non-nil, backs every pushed payload no larger than pool.Size
	// with a reference-counted, reusable buffer, decoupling the stored
	// Message from whatever slice the publisher handed to Push. Payloads
	// larger than pool.Size fall back to holding the caller's slice directly,
	// as if pool were nil.
	pool *bufferpool.Pool

	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	main    []*Message
	byTopic map[string][]*Message

	running bool
	counter uint64
}

// NewBuffer creates a Buffer with the given capacity. The Buffer starts in
// the running state. Pushed payloads are held by direct reference to the
// caller's slice; use NewBufferWithPool for defensive copying.
func NewBuffer(capacity int) *Buffer {
	return newBuffer(capacity, nil)
}

// NewBufferWithPool is like NewBuffer, but every pushed payload no larger
// than pool.Size is defensively copied into a buffer drawn from pool, which
// is released back to the pool once the message has been written (or
// discarded via Clear). This protects the recorder from a publisher that
// reuses or mutates its send buffer after delivery.
func NewBufferWithPool(capacity int, pool *bufferpool.Pool) *Buffer {
	return newBuffer(capacity, pool)
}

func newBuffer(capacity int, pool *bufferpool.Pool) *Buffer {
	b := &Buffer{
		capacity: capacity,
		pool:     pool,
		byTopic:  make(map[string][]*Message),
		running:  true,
	}
	b.notFull = sync.NewCond(&b.mu)
	b.notEmpty = sync.NewCond(&b.mu)
	return b
}

// waitUntil blocks on cond, held by b.mu, until signaled or deadline passes.
//
// b.mu must be held when calling waitUntil; it is released for the duration
// of the wait and re-acquired before returning, per sync.Cond.Wait's
// contract.
func (b *Buffer) waitUntil(cond *sync.Cond, deadline time.Time) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return
	}

	timer := time.AfterFunc(remaining, func() {
		b.mu.Lock()
		cond.Broadcast()
		b.mu.Unlock()
	})
	defer timer.Stop()

	cond.Wait()
}

// Push appends a new Message built from topic, payload, and ts to the
// buffer, assigning it the next sequence number in arrival order.
//
// If the buffer is full, Push waits up to DefaultPushTimeout for space. It
// returns false if the wait times out or the buffer is (or becomes)
// stopped; messages are never dropped silently — a false return is the
// caller's signal that the message was not recorded.
func (b *Buffer) Push(topic string, payload []byte, tsUs int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return false
	}

	if len(b.main) >= b.capacity {
		deadline := time.Now().Add(DefaultPushTimeout)
		for len(b.main) >= b.capacity && b.running && time.Now().Before(deadline) {
			b.waitUntil(b.notFull, deadline)
		}
		if !b.running {
			return false
		}
		if len(b.main) >= b.capacity {
			if b.Logger != nil {
				b.Logger.Warnf("buffer full; push to %q timed out after %s", topic, DefaultPushTimeout)
			}
			return false
		}
	}

	m := &Message{
		Topic:       topic,
		Payload:     payload,
		TimestampUs: tsUs,
		Sequence:    b.counter,
		Encoding:    DefaultEncoding,
	}
	b.counter++

	if b.pool != nil && len(payload) <= b.pool.Size {
		pb := b.pool.Get()
		copy(pb.Bytes(), payload)
		pb.Truncate(len(payload))
		m.Payload = pb.Bytes()
		m.release = pb.Release
	}

	b.main = append(b.main, m)
	b.byTopic[topic] = append(b.byTopic[topic], m)

	b.notEmpty.Signal()
	return true
}

// PopBatch removes and returns up to max of the oldest messages in the
// buffer.
//
// If the buffer is empty and running, PopBatch waits up to timeout for data
// to arrive. Once stopped, PopBatch continues to return remaining data
// until the buffer is empty, honoring the drain contract; it never blocks
// once stopped.
func (b *Buffer) PopBatch(max int, timeout time.Duration) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.main) == 0 && b.running {
		deadline := time.Now().Add(timeout)
		for len(b.main) == 0 && b.running && time.Now().Before(deadline) {
			b.waitUntil(b.notEmpty, deadline)
		}
	}

	if len(b.main) == 0 {
		return nil
	}

	n := max
	if n > len(b.main) {
		n = len(b.main)
	}

	batch := make([]*Message, n)
	copy(batch, b.main[:n])
	b.main = b.main[n:]

	for _, m := range batch {
		b.removeFromTopicQueue(m)
	}

	b.notFull.Broadcast()
	return batch
}

// PopBatchTopic is analogous to PopBatch, scoped to messages for a single
// topic. Matching entries are also removed from the main FIFO by identity.
func (b *Buffer) PopBatchTopic(topic string, max int, timeout time.Duration) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.byTopic[topic]) == 0 && b.running {
		deadline := time.Now().Add(timeout)
		for len(b.byTopic[topic]) == 0 && b.running && time.Now().Before(deadline) {
			b.waitUntil(b.notEmpty, deadline)
		}
	}

	queue := b.byTopic[topic]
	if len(queue) == 0 {
		return nil
	}

	n := max
	if n > len(queue) {
		n = len(queue)
	}

	batch := make([]*Message, n)
	copy(batch, queue[:n])
	if n == len(queue) {
		delete(b.byTopic, topic)
	} else {
		b.byTopic[topic] = queue[n:]
	}

	for _, m := range batch {
		b.removeFromMainQueue(m)
	}

	b.notFull.Broadcast()
	return batch
}

// removeFromTopicQueue removes m, by identity, from its topic's FIFO. b.mu
// must be held.
func (b *Buffer) removeFromTopicQueue(m *Message) {
	queue := b.byTopic[m.Topic]
	for i, candidate := range queue {
		if candidate == m {
			b.byTopic[m.Topic] = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(b.byTopic[m.Topic]) == 0 {
		delete(b.byTopic, m.Topic)
	}
}

// removeFromMainQueue removes m, by identity, from the main FIFO. b.mu must
// be held.
func (b *Buffer) removeFromMainQueue(m *Message) {
	for i, candidate := range b.main {
		if candidate == m {
			b.main = append(b.main[:i], b.main[i+1:]...)
			break
		}
	}
}

// Size returns a snapshot of the number of messages currently queued.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.main)
}

// TopicSize returns a snapshot of the number of messages queued for topic.
func (b *Buffer) TopicSize(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byTopic[topic])
}

// Start marks the buffer as running, resets its sequence counter, and wakes
// any waiters so they can re-observe the new state.
func (b *Buffer) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	b.counter = 0
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Stop marks the buffer as stopped. Pending and future Push calls will fail
// immediately; PopBatch continues to drain remaining data.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Clear discards all queued messages without affecting the running state or
// sequence counter. Any pooled payload backing a discarded message is
// released.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.main {
		releaseMessage(m)
	}
	b.main = nil
	b.byTopic = make(map[string][]*Message)
}

// releaseMessage returns m's pooled payload buffer, if any, to its pool. It
// is safe to call more than once; only the first call has an effect.
func releaseMessage(m *Message) {
	if m.release == nil {
		return
	}
	release := m.release
	m.release = nil
	release()
}

// IsRunning reports whether the buffer is currently accepting pushes.
func (b *Buffer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
