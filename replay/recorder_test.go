// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"fmt"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/zwhy2025/openbag/config"
	"github.com/zwhy2025/openbag/replay/bagfile"
	"github.com/zwhy2025/openbag/transport/membus"
)

func TestReplay(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Replay")
}

func pingTopicSpec() config.TopicSpec {
	return config.TopicSpec{Name: "/ping", Type: "sample.Ping", SchemaFile: "sample.proto"}
}

func newTestStorageConfig(outputDir string) (config.RecorderConfig, config.StorageConfig) {
	rc := config.RecorderConfig{
		OutputPath:     outputDir,
		FilenamePrefix: "session",
		OutputFormat:   "mcap",
		Topics:         []config.TopicSpec{pingTopicSpec()},
	}
	sc := config.StorageConfig{
		SchemaSearchPaths: []string{"bagfile/testdata"},
		ChunkSize:         1 << 20,
		WriteBatchSize:    4,
	}
	return rc, sc
}

var _ = Describe("Recorder", func() {
	var (
		dir    string
		bus    *membus.Bus
		rec    *Recorder
		rc     config.RecorderConfig
		buffer *bagfile.Buffer
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "recorder")
		Expect(err).NotTo(HaveOccurred())

		var sc config.StorageConfig
		rc, sc = newTestStorageConfig(dir)

		bus = membus.New()
		writer := NewWriterFromConfig(rc, sc, nil)
		buffer = bagfile.NewBuffer(16)
		rec = NewRecorder(bus, writer, buffer, sc.WriteBatchSize, nil)
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("records published messages to a container file", func() {
		Expect(rec.Start(rc.Topics)).To(Succeed())
		Expect(rec.Status().State).To(Equal(RecorderRunning))

		pub, err := bus.CreatePublisher("/ping")
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 5; i++ {
			Expect(pub.Publish([]byte(fmt.Sprintf("msg-%d", i)))).To(BeTrue())
		}

		Eventually(func() uint64 { return rec.Status().TotalMessages }, time.Second).Should(Equal(uint64(5)))

		Expect(rec.Stop()).To(Succeed())
		Expect(rec.Status().State).To(Equal(RecorderStopped))

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})

	It("refuses to start twice", func() {
		Expect(rec.Start(rc.Topics)).To(Succeed())
		defer rec.Stop()

		Expect(rec.Start(rc.Topics)).To(MatchError(ErrAlreadyRunning))
	})

	It("refuses to start with no topics", func() {
		Expect(rec.Start(nil)).To(MatchError(ErrNoTopics))
	})

	It("discards messages arriving while paused", func() {
		Expect(rec.Start(rc.Topics)).To(Succeed())
		defer rec.Stop()

		pub, err := bus.CreatePublisher("/ping")
		Expect(err).NotTo(HaveOccurred())

		Expect(rec.Pause()).To(Succeed())
		Expect(pub.Publish([]byte("dropped"))).To(BeTrue()) // delivered to the subscriber, but discarded by onMessage
		time.Sleep(20 * time.Millisecond)
		Expect(rec.Status().TotalMessages).To(Equal(uint64(0)))

		Expect(rec.Resume()).To(Succeed())
		Expect(pub.Publish([]byte("kept"))).To(BeTrue())
		Eventually(func() uint64 { return rec.Status().TotalMessages }, time.Second).Should(Equal(uint64(1)))
	})

	It("rejects Pause/Resume in the wrong state", func() {
		Expect(rec.Pause()).To(MatchError(ErrNotRunning))

		Expect(rec.Start(rc.Topics)).To(Succeed())
		defer rec.Stop()

		Expect(rec.Resume()).To(MatchError(ErrNotPaused))
	})

	It("is a no-op to Stop an already-stopped recorder", func() {
		Expect(rec.Stop()).To(Succeed())
	})
})
