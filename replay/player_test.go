// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/zwhy2025/openbag/replay/bagfile"
	"github.com/zwhy2025/openbag/transport/membus"
)

// recordFixture records n messages on /ping into a fresh container file
// under dir and returns its path.
func recordFixture(dir string, n int) string {
	rc, sc := newTestStorageConfig(dir)

	bus := membus.New()
	writer := NewWriterFromConfig(rc, sc, nil)
	buffer := bagfile.NewBuffer(16)
	rec := NewRecorder(bus, writer, buffer, sc.WriteBatchSize, nil)

	Expect(rec.Start(rc.Topics)).To(Succeed())

	pub, err := bus.CreatePublisher("/ping")
	Expect(err).NotTo(HaveOccurred())
	for i := 0; i < n; i++ {
		Expect(pub.Publish([]byte(fmt.Sprintf("msg-%d", i)))).To(BeTrue())
	}

	Eventually(func() uint64 { return rec.Status().TotalMessages }, time.Second).Should(Equal(uint64(n)))
	Expect(rec.Stop()).To(Succeed())

	entries, err := os.ReadDir(dir)
	Expect(err).NotTo(HaveOccurred())
	Expect(entries).To(HaveLen(1))
	return filepath.Join(dir, entries[0].Name())
}

var _ = Describe("Player", func() {
	var (
		dir  string
		path string
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "player")
		Expect(err).NotTo(HaveOccurred())
		path = recordFixture(dir, 3)
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("replays every recorded message onto its original topic", func() {
		bus := membus.New()

		var mu sync.Mutex
		var got [][]byte
		sub, err := bus.CreateSubscriber("/ping", func(p []byte) {
			mu.Lock()
			got = append(got, append([]byte(nil), p...))
			mu.Unlock()
		})
		Expect(err).NotTo(HaveOccurred())
		defer sub.Close()

		player := NewPlayer(bus, bagfile.NewReader(), path, 1.0, false, nil)
		Expect(player.Start()).To(Succeed())

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(got)
		}, time.Second).Should(Equal(3))

		Eventually(func() PlayerState { return player.Status().State }, time.Second).Should(Equal(PlayerStopped))

		mu.Lock()
		defer mu.Unlock()
		Expect(got[0]).To(Equal([]byte("msg-0")))
		Expect(got[2]).To(Equal([]byte("msg-2")))
	})

	It("loops playback when configured to do so", func() {
		bus := membus.New()

		var mu sync.Mutex
		var count int
		sub, err := bus.CreateSubscriber("/ping", func([]byte) {
			mu.Lock()
			count++
			mu.Unlock()
		})
		Expect(err).NotTo(HaveOccurred())
		defer sub.Close()

		player := NewPlayer(bus, bagfile.NewReader(), path, 50.0, true, nil)
		Expect(player.Start()).To(Succeed())
		defer player.Stop()

		Eventually(func() int64 { return player.Status().Cycles }, 2*time.Second).Should(BeNumerically(">=", 1))
		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return count
		}, 2*time.Second).Should(BeNumerically(">=", 6))
	})

	It("refuses to start twice", func() {
		bus := membus.New()
		player := NewPlayer(bus, bagfile.NewReader(), path, 1.0, true, nil)
		Expect(player.Start()).To(Succeed())
		defer player.Stop()

		Expect(player.Start()).To(MatchError(ErrAlreadyRunning))
	})

	It("pauses and resumes", func() {
		bus := membus.New()
		player := NewPlayer(bus, bagfile.NewReader(), path, 1.0, true, nil)
		Expect(player.Start()).To(Succeed())
		defer player.Stop()

		Expect(player.Pause()).To(Succeed())
		Eventually(func() PlayerState { return player.Status().State }, time.Second).Should(Equal(PlayerPaused))

		Expect(player.Resume()).To(Succeed())
		Eventually(func() PlayerState { return player.Status().State }, time.Second).Should(Equal(PlayerPlaying))
	})

	It("is a no-op to Stop an already-stopped player", func() {
		player := NewPlayer(membus.New(), bagfile.NewReader(), path, 1.0, false, nil)
		Expect(player.Stop()).To(Succeed())
	})
})
