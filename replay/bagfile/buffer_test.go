// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bagfile

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/zwhy2025/openbag/support/bufferpool"
)

var _ = Describe("Buffer", func() {
	var b *Buffer

	BeforeEach(func() {
		b = NewBuffer(2)
	})

	It("pops messages in FIFO order", func() {
		Expect(b.Push("a", []byte("1"), 100)).To(BeTrue())
		Expect(b.Push("a", []byte("2"), 200)).To(BeTrue())

		batch := b.PopBatch(10, 10*time.Millisecond)
		Expect(batch).To(HaveLen(2))
		Expect(batch[0].Payload).To(Equal([]byte("1")))
		Expect(batch[1].Payload).To(Equal([]byte("2")))
		Expect(batch[0].Sequence).To(BeNumerically("<", batch[1].Sequence))
	})

	It("keeps the per-topic index in lockstep with the main queue", func() {
		Expect(b.Push("a", []byte("1"), 100)).To(BeTrue())
		Expect(b.Push("b", []byte("2"), 200)).To(BeTrue())

		Expect(b.TopicSize("a")).To(Equal(1))
		Expect(b.TopicSize("b")).To(Equal(1))

		batch := b.PopBatchTopic("a", 10, 10*time.Millisecond)
		Expect(batch).To(HaveLen(1))
		Expect(b.TopicSize("a")).To(Equal(0))
		Expect(b.Size()).To(Equal(1))
	})

	It("rejects pushes once full until space frees up", func() {
		Expect(b.Push("a", []byte("1"), 100)).To(BeTrue())
		Expect(b.Push("a", []byte("2"), 200)).To(BeTrue())

		start := time.Now()
		ok := b.Push("a", []byte("3"), 300)
		Expect(ok).To(BeFalse())
		Expect(time.Since(start)).To(BeNumerically(">=", DefaultPushTimeout))
	})

	It("unblocks a waiting push once a pop frees capacity", func() {
		Expect(b.Push("a", []byte("1"), 100)).To(BeTrue())
		Expect(b.Push("a", []byte("2"), 200)).To(BeTrue())

		doneC := make(chan bool, 1)
		go func() {
			doneC <- b.Push("a", []byte("3"), 300)
		}()

		time.Sleep(10 * time.Millisecond)
		Expect(b.PopBatch(1, time.Millisecond)).To(HaveLen(1))

		Eventually(doneC, time.Second).Should(Receive(BeTrue()))
	})

	It("keeps draining remaining data after Stop until empty", func() {
		Expect(b.Push("a", []byte("1"), 100)).To(BeTrue())
		Expect(b.Push("a", []byte("2"), 200)).To(BeTrue())

		b.Stop()
		Expect(b.Push("a", []byte("3"), 300)).To(BeFalse())

		Expect(b.PopBatch(10, 10*time.Millisecond)).To(HaveLen(2))
		Expect(b.PopBatch(10, 10*time.Millisecond)).To(BeEmpty())
	})

	It("defensively copies pooled payloads, decoupling them from the caller's slice", func() {
		pool := &bufferpool.Pool{Size: 8}
		pooled := NewBufferWithPool(2, pool)

		payload := []byte("hello")
		Expect(pooled.Push("a", payload, 100)).To(BeTrue())
		payload[0] = 'X'

		batch := pooled.PopBatch(1, 10*time.Millisecond)
		Expect(batch[0].Payload).To(Equal([]byte("hello")))
	})

	It("falls back to a direct reference for payloads larger than the pool size", func() {
		pool := &bufferpool.Pool{Size: 2}
		pooled := NewBufferWithPool(2, pool)

		payload := []byte("hello")
		Expect(pooled.Push("a", payload, 100)).To(BeTrue())

		batch := pooled.PopBatch(1, 10*time.Millisecond)
		Expect(&batch[0].Payload[0]).To(Equal(&payload[0]))
	})

	It("resets its sequence counter on Start", func() {
		Expect(b.Push("a", []byte("1"), 100)).To(BeTrue())
		b.Stop()
		b.Clear()
		b.Start()

		Expect(b.Push("a", []byte("2"), 200)).To(BeTrue())
		batch := b.PopBatch(1, 10*time.Millisecond)
		Expect(batch[0].Sequence).To(Equal(uint64(0)))
	})
})
