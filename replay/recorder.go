// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package replay implements the recorder and player state machines: the
// concurrent engine that sits between the abstract transport ports and the
// bagfile container format.
package replay

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxglove/mcap/go/mcap"
	"github.com/pkg/errors"

	"github.com/zwhy2025/openbag/config"
	"github.com/zwhy2025/openbag/replay/bagfile"
	"github.com/zwhy2025/openbag/support/bufferpool"
	"github.com/zwhy2025/openbag/support/logging"
	"github.com/zwhy2025/openbag/transport"
)

// RecorderState is one of the recorder's three states.
type RecorderState int32

const (
	RecorderStopped RecorderState = iota
	RecorderRunning
	RecorderPaused
)

func (s RecorderState) String() string {
	switch s {
	case RecorderRunning:
		return "RUNNING"
	case RecorderPaused:
		return "PAUSED"
	default:
		return "STOPPED"
	}
}

// RecorderStatus is a snapshot of the current recorder status.
type RecorderStatus struct {
	State         RecorderState
	TotalMessages uint64
	FileSize      uint64
	Topics        []string
}

// Recorder drives the subscribe → buffer → drain → stop state machine
// described for C6. A Recorder is reusable across sessions: Start may be
// called again after a Stop completes.
type Recorder struct {
	Logger logging.L

	factory        transport.Factory
	writer         *bagfile.Writer
	buffer         *bagfile.Buffer
	writeBatchSize int

	state int32 // RecorderState, accessed atomically

	mu     sync.Mutex
	subs   []transport.Subscriber
	topics []config.TopicSpec

	totalMessages uint64 // atomic
	droppedPushes uint64 // atomic

	drainDone chan struct{}
}

// NewRecorder returns a STOPPED Recorder. writer and buffer are owned by
// the Recorder for the duration of any session started on it.
func NewRecorder(factory transport.Factory, writer *bagfile.Writer, buffer *bagfile.Buffer, writeBatchSize int, logger logging.L) *Recorder {
	return &Recorder{
		Logger:         logging.Must(logger),
		factory:        factory,
		writer:         writer,
		buffer:         buffer,
		writeBatchSize: writeBatchSize,
	}
}

// NewWriterFromConfig builds a bagfile.Writer and its backing schema
// registry from a RecorderConfig/StorageConfig pair, translating
// config.CompressionType to the concrete mcap.CompressionFormat the
// bagfile package is built against.
func NewWriterFromConfig(rc config.RecorderConfig, sc config.StorageConfig, logger logging.L) *bagfile.Writer {
	registry := bagfile.NewRegistry()
	for _, p := range sc.SchemaSearchPaths {
		registry.AddSearchPath(p)
	}

	return bagfile.NewWriter(bagfile.WriterOptions{
		OutputDir:   rc.OutputPath,
		Prefix:      rc.FilenamePrefix,
		Extension:   rc.OutputFormat,
		Compression: compressionFormat(sc.CompressionType),
		ChunkSize:   sc.ChunkSize,
		MaxFileSize: sc.MaxFileSize,
		SplitBySize: sc.SplitBySize,
		Registry:    registry,
		Logger:      logging.Must(logger),
	})
}

// NewBufferFromConfig builds a bagfile.Buffer from a BufferConfig, backing
// it with a pool of reusable payload buffers when MaxMessageSize is set.
func NewBufferFromConfig(bc config.BufferConfig) *bagfile.Buffer {
	if bc.MaxMessageSize <= 0 {
		return bagfile.NewBuffer(bc.BufferSize)
	}
	pool := &bufferpool.Pool{Size: bc.MaxMessageSize}
	return bagfile.NewBufferWithPool(bc.BufferSize, pool)
}

func compressionFormat(c config.CompressionType) mcap.CompressionFormat {
	switch c {
	case config.CompressionLZ4:
		return mcap.CompressionLZ4
	case config.CompressionZstd:
		return mcap.CompressionZSTD
	default:
		return mcap.CompressionNone
	}
}

// Start transitions STOPPED→RUNNING: it opens the writer, imports and
// registers every configured topic's schema, clears and starts the
// buffer, creates one subscriber per topic, and launches the drain
// goroutine. It returns ErrAlreadyRunning if the recorder is not STOPPED,
// or ErrNoTopics if topics is empty.
func (r *Recorder) Start(topics []config.TopicSpec) error {
	if !atomic.CompareAndSwapInt32(&r.state, int32(RecorderStopped), int32(RecorderRunning)) {
		return ErrAlreadyRunning
	}
	if len(topics) == 0 {
		atomic.StoreInt32(&r.state, int32(RecorderStopped))
		return ErrNoTopics
	}

	if err := r.writer.Open(); err != nil {
		atomic.StoreInt32(&r.state, int32(RecorderStopped))
		return errors.Wrap(err, "opening writer")
	}

	if err := r.registerTopics(topics); err != nil {
		_ = r.writer.Close()
		atomic.StoreInt32(&r.state, int32(RecorderStopped))
		return err
	}

	r.buffer.Clear()
	r.buffer.Start()
	atomic.StoreUint64(&r.totalMessages, 0)
	atomic.StoreUint64(&r.droppedPushes, 0)

	r.mu.Lock()
	r.topics = topics
	r.mu.Unlock()

	subs, err := r.subscribeAll(topics)
	if err != nil {
		r.buffer.Stop()
		_ = r.writer.Close()
		atomic.StoreInt32(&r.state, int32(RecorderStopped))
		return err
	}

	r.mu.Lock()
	r.subs = subs
	r.mu.Unlock()

	r.drainDone = make(chan struct{})
	go r.drainLoop()

	recorderRecordingGauge.Set(1)
	return nil
}

func (r *Recorder) registerTopics(topics []config.TopicSpec) error {
	registry := r.writer.Registry()
	for _, t := range topics {
		if !registry.Import(t.SchemaFile) {
			return errors.Wrapf(combineImportErrors(registry.Errors()), "importing schema for topic %q", t.Name)
		}

		cfg := &bagfile.TopicConfig{
			TopicName: t.Name,
			TypeName:  t.Type,
			Encoding:  bagfile.DefaultEncoding,
		}
		if err := r.writer.RegisterTopic(cfg); err != nil {
			return errors.Wrapf(err, "registering topic %q", t.Name)
		}
	}
	return nil
}

func (r *Recorder) subscribeAll(topics []config.TopicSpec) ([]transport.Subscriber, error) {
	subs := make([]transport.Subscriber, 0, len(topics))
	for _, t := range topics {
		topic := t.Name
		sub, err := r.factory.CreateSubscriber(topic, func(payload []byte) { r.onMessage(topic, payload) })
		if err != nil {
			for _, s := range subs {
				_ = s.Close()
			}
			return nil, errors.Wrapf(err, "subscribing to %q", topic)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// onMessage is the subscriber adapter's callback contract: if the recorder
// is not RUNNING the message is discarded; otherwise it is pushed onto the
// buffer with a failed push counted but not fatal.
func (r *Recorder) onMessage(topic string, payload []byte) {
	if RecorderState(atomic.LoadInt32(&r.state)) != RecorderRunning {
		return
	}

	if !r.buffer.Push(topic, payload, time.Now().UnixMicro()) {
		atomic.AddUint64(&r.droppedPushes, 1)
		recorderDroppedPushes.Inc()
		return
	}
	atomic.AddUint64(&r.totalMessages, 1)
	recorderEvents.Inc()
}

// Pause transitions RUNNING→PAUSED: inbound callbacks begin discarding
// messages while the drain goroutine continues to flush what is already
// buffered.
func (r *Recorder) Pause() error {
	if !atomic.CompareAndSwapInt32(&r.state, int32(RecorderRunning), int32(RecorderPaused)) {
		return ErrNotRunning
	}
	return nil
}

// Resume transitions PAUSED→RUNNING.
func (r *Recorder) Resume() error {
	if !atomic.CompareAndSwapInt32(&r.state, int32(RecorderPaused), int32(RecorderRunning)) {
		return ErrNotPaused
	}
	return nil
}

// Stop transitions RUNNING or PAUSED to STOPPED: subscribers are canceled
// first so no new messages enter the buffer, then the drain goroutine is
// signaled and joined — it must drain the buffer to empty before exiting —
// and finally the writer is closed. Stop on an already-STOPPED recorder is
// a no-op.
func (r *Recorder) Stop() error {
	if RecorderState(atomic.LoadInt32(&r.state)) == RecorderStopped {
		return nil
	}

	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}

	atomic.StoreInt32(&r.state, int32(RecorderStopped))
	r.buffer.Stop()

	if r.drainDone != nil {
		<-r.drainDone
	}

	err := r.writer.Close()
	recorderRecordingGauge.Set(0)
	return err
}

// drainLoop is the recorder's single consumer goroutine. It runs while the
// recorder is running, or the buffer still has data to flush, sleeping
// briefly when it finds nothing to do.
func (r *Recorder) drainLoop() {
	defer close(r.drainDone)

	for {
		running := RecorderState(atomic.LoadInt32(&r.state)) != RecorderStopped
		size := r.buffer.Size()
		if !running && size == 0 {
			return
		}

		batchSize := r.writeBatchSize
		if !running && size > 0 && size < batchSize {
			batchSize = size
		}

		batch := r.buffer.PopBatch(batchSize, bagfile.DefaultPopTimeout)
		if len(batch) == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := r.writer.WriteBatch(batch); err != nil {
			if isFatalWriteErr(err) {
				r.Logger.Errorf("stopping recorder after fatal write error: %s", err)
				recorderErrors.WithLabelValues("fatal").Inc()
				atomic.StoreInt32(&r.state, int32(RecorderStopped))
				r.buffer.Stop()
				return
			}
			recorderErrors.WithLabelValues("write").Inc()
		}
	}
}

func isFatalWriteErr(err error) bool {
	_, ok := errors.Cause(err).(*bagfile.RotationError)
	return ok
}

func combineImportErrors(errs []*bagfile.ImportError) error {
	if len(errs) == 0 {
		return errors.New("unknown schema import failure")
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Status returns a snapshot of the current recorder status.
func (r *Recorder) Status() RecorderStatus {
	r.mu.Lock()
	topics := make([]string, len(r.topics))
	for i, t := range r.topics {
		topics[i] = t.Name
	}
	r.mu.Unlock()

	return RecorderStatus{
		State:         RecorderState(atomic.LoadInt32(&r.state)),
		TotalMessages: atomic.LoadUint64(&r.totalMessages),
		FileSize:      r.writer.Info().BytesWritten,
		Topics:        topics,
	}
}
