// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bagfile

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/foxglove/mcap/go/mcap"
	"github.com/pkg/errors"

	"github.com/zwhy2025/openbag/support/fmtutil"
	"github.com/zwhy2025/openbag/support/logging"
	"github.com/zwhy2025/openbag/support/stagingdir"
)

// recordOverheadBytes approximates the fixed per-record framing cost the
// container format adds beyond the raw payload. It exists only to drive
// rotation decisions; BytesWritten is never treated as an authoritative
// file size.
const recordOverheadBytes = 64

// WriterOptions configures a Writer's container output. It deliberately
// takes an mcap.CompressionFormat rather than a config.CompressionType, so
// this package has no dependency on the config package; callers translate.
type WriterOptions struct {
	OutputDir string
	Prefix    string
	Extension string // defaults to "mcap"
	TempDir   string // staging root; defaults to the output file's directory

	Compression mcap.CompressionFormat
	ChunkSize   int64
	MaxFileSize uint64
	SplitBySize bool

	// Registry resolves TopicConfig.TypeName to a descriptor set during
	// RegisterTopic. It must be non-nil before the first RegisterTopic
	// call.
	Registry *Registry

	Logger logging.L
}

type channelState struct {
	channelID uint16
}

// hexDumpPrefixBytes caps how much of a dropped payload gets hex-dumped into
// a log line.
const hexDumpPrefixBytes = 32

func hexPrefix(payload []byte) fmtutil.Hex {
	if len(payload) > hexDumpPrefixBytes {
		payload = payload[:hexDumpPrefixBytes]
	}
	return fmtutil.Hex(payload)
}

// Writer owns a single active container file at a time. It registers
// schemas and channels via the configured Registry, writes messages, and
// rotates to a fresh file once BytesWritten crosses MaxFileSize.
//
// A Writer is safe for concurrent use; Recorder calls Write/WriteBatch from
// its drain goroutine while Status-style callers may read Info
// concurrently.
type Writer struct {
	opts   WriterOptions
	naming *NamingPolicy

	mu sync.Mutex

	stage *stagingdir.D
	file  *os.File
	mw    *mcap.Writer

	info FileInfo

	nextSchemaID    uint16
	nextChannelID   uint16
	channelsByTopic map[string]*channelState

	// topics remembers every TopicConfig registered so far this session,
	// so rotation can re-register them into the new file.
	topics []TopicConfig
}

// NewWriter returns an unopened Writer configured by opts.
func NewWriter(opts WriterOptions) *Writer {
	if opts.Extension == "" {
		opts.Extension = "mcap"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop
	}
	return &Writer{
		opts:            opts,
		nextChannelID:   1,
		channelsByTopic: make(map[string]*channelState),
		naming: &NamingPolicy{
			OutputDir: opts.OutputDir,
			Prefix:    opts.Prefix,
			Extension: opts.Extension,
		},
	}
}

// Open computes the output path, creates parent directories, and
// instantiates the container writer. It returns ErrAlreadyOpen if called
// while a file is already open.
func (w *Writer) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.openLocked()
}

func (w *Writer) openLocked() error {
	if w.mw != nil {
		return ErrAlreadyOpen
	}

	path := w.naming.GenerateName()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(ErrPathInvalid, "creating %q: %s", filepath.Dir(path), err)
	}

	tempRoot := w.opts.TempDir
	if tempRoot == "" {
		tempRoot = filepath.Dir(path)
	}
	stage, err := stagingdir.New(tempRoot, w.opts.Prefix)
	if err != nil {
		return errors.Wrap(err, "creating staging directory")
	}

	f, err := os.Create(stage.Path(filepath.Base(path)))
	if err != nil {
		_ = stage.Destroy()
		return errors.Wrapf(ErrPathInvalid, "%s", err)
	}

	mw, err := mcap.NewWriter(f, &mcap.WriterOptions{
		Chunked:     true,
		ChunkSize:   w.opts.ChunkSize,
		Compression: w.opts.Compression,
		IncludeCRC:  true,
	})
	if err != nil {
		_ = f.Close()
		_ = stage.Destroy()
		return errors.Wrap(err, "initializing container writer")
	}

	if err := mw.WriteHeader(&mcap.Header{Library: "openbag"}); err != nil {
		_ = f.Close()
		_ = stage.Destroy()
		return errors.Wrap(err, "writing container header")
	}

	w.stage = stage
	w.file = f
	w.mw = mw
	w.info = FileInfo{
		Path:      path,
		IsOpen:    true,
		Prefix:    w.opts.Prefix,
		Extension: w.opts.Extension,
		OutputDir: w.opts.OutputDir,
		Format:    "mcap",
	}
	w.nextSchemaID = 1
	w.channelsByTopic = make(map[string]*channelState)

	for i := range w.topics {
		if err := w.registerTopicLocked(&w.topics[i]); err != nil {
			return errors.Wrapf(err, "re-registering topic %q after rotation", w.topics[i].TopicName)
		}
	}

	return nil
}

// RegisterTopic resolves cfg's descriptor set via the configured Registry
// and writes a schema record followed by a channel record. ChannelID is
// stable for a topic across the life of the Writer, including rotations;
// SchemaID restarts at 1 in every new file.
func (w *Writer) RegisterTopic(cfg *TopicConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mw == nil {
		return ErrNotOpen
	}
	if err := w.registerTopicLocked(cfg); err != nil {
		return err
	}
	w.rememberTopic(*cfg)
	return nil
}

func (w *Writer) registerTopicLocked(cfg *TopicConfig) error {
	descSet, err := w.opts.Registry.DescriptorSet(cfg.TypeName)
	if err != nil {
		return errors.Wrapf(err, "resolving descriptor for %q", cfg.TypeName)
	}

	schemaID := w.nextSchemaID
	w.nextSchemaID++

	if err := w.mw.WriteSchema(&mcap.Schema{
		ID:       schemaID,
		Name:     cfg.TypeName,
		Encoding: "protobuf",
		Data:     descSet,
	}); err != nil {
		return errors.Wrapf(err, "writing schema for %q", cfg.TypeName)
	}

	var channelID uint16
	if state, known := w.channelsByTopic[cfg.TopicName]; known {
		channelID = state.channelID
	} else if cfg.ChannelID != 0 {
		// Re-registration after a rotation or reopen keeps the ID assigned
		// when the topic was first registered.
		channelID = cfg.ChannelID
	} else {
		channelID = w.nextChannelID
		w.nextChannelID++
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = DefaultEncoding
	}

	if err := w.mw.WriteChannel(&mcap.Channel{
		ID:              channelID,
		SchemaID:        schemaID,
		Topic:           cfg.TopicName,
		MessageEncoding: encoding,
		Metadata:        map[string]string{"message_type": cfg.TypeName},
	}); err != nil {
		return errors.Wrapf(err, "writing channel for %q", cfg.TopicName)
	}

	cfg.SchemaID = schemaID
	cfg.ChannelID = channelID
	w.channelsByTopic[cfg.TopicName] = &channelState{channelID: channelID}
	return nil
}

// rememberTopic records cfg for re-registration on the next rotation,
// replacing any earlier entry for the same topic.
func (w *Writer) rememberTopic(cfg TopicConfig) {
	for i := range w.topics {
		if w.topics[i].TopicName == cfg.TopicName {
			w.topics[i] = cfg
			return
		}
	}
	w.topics = append(w.topics, cfg)
}

// Write looks up msg's channel and writes it as a container record. A
// write failure after a successful Open is logged and the message is
// dropped — the session continues — except when it is triggered by a
// rotation failure, which is returned wrapped in a *RotationError and
// should be treated as fatal by the caller.
func (w *Writer) Write(msg *Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(msg)
}

func (w *Writer) writeLocked(msg *Message) error {
	defer releaseMessage(msg)

	if w.mw == nil {
		return ErrNotOpen
	}

	state, ok := w.channelsByTopic[msg.Topic]
	if !ok {
		return errors.Wrapf(ErrTopicNotRegistered, "%q", msg.Topic)
	}

	logTimeNs := uint64(msg.TimestampUs) * 1000

	if err := w.mw.WriteMessage(&mcap.Message{
		ChannelID:   state.channelID,
		Sequence:    uint32(msg.Sequence),
		LogTime:     logTimeNs,
		PublishTime: logTimeNs,
		Data:        msg.Payload,
	}); err != nil {
		w.opts.Logger.Warnf("dropping message on %q (%s): %s", msg.Topic, hexPrefix(msg.Payload), err)
		return errors.Wrapf(err, "writing message on %q", msg.Topic)
	}

	w.info.BytesWritten += uint64(len(msg.Payload)) + recordOverheadBytes

	if w.opts.SplitBySize && w.info.BytesWritten >= w.opts.MaxFileSize {
		if err := w.rotateLocked(); err != nil {
			return &RotationError{Err: err}
		}
	}

	return nil
}

// WriteBatch writes each message via Write. If any individual write fails
// with an ordinary (non-rotation) error, WriteBatch continues through the
// remaining messages and returns ErrWriteBatchFailed; a rotation failure
// aborts the batch immediately and is returned as-is.
func (w *Writer) WriteBatch(msgs []*Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var anyFailed bool
	for _, m := range msgs {
		err := w.writeLocked(m)
		if err == nil {
			continue
		}
		if _, fatal := errors.Cause(err).(*RotationError); fatal {
			return err
		}
		anyFailed = true
	}

	if anyFailed {
		return ErrWriteBatchFailed
	}
	return nil
}

// rotateLocked closes the current file, generates a fresh unique name, and
// reopens, re-registering every known topic. It is an error to call with
// w.mu unheld.
func (w *Writer) rotateLocked() error {
	if err := w.closeLocked(); err != nil {
		return errors.Wrap(err, "closing for rotation")
	}
	if err := w.openLocked(); err != nil {
		return errors.Wrap(err, "opening rotated file")
	}
	return nil
}

// Close flushes and releases the container writer, atomically committing
// the staged file to its final path. Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) closeLocked() error {
	if w.mw == nil {
		return nil
	}

	err := w.mw.Close()
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}

	dest := w.info.Path
	if commitErr := w.commitLocked(dest); err == nil {
		err = commitErr
	}

	w.mw = nil
	w.file = nil
	w.info.IsOpen = false

	if err != nil {
		return errors.Wrap(err, "closing container file")
	}
	return nil
}

// commitLocked atomically renames the staged file into its final
// destination and removes the now-empty staging directory.
func (w *Writer) commitLocked(dest string) error {
	if w.stage == nil {
		return nil
	}

	tempPath := w.stage.Path(filepath.Base(dest))
	if err := os.Rename(tempPath, dest); err != nil {
		_ = w.stage.Destroy()
		w.stage = nil
		return errors.Wrapf(err, "committing %q", dest)
	}

	err := w.stage.Destroy()
	w.stage = nil
	return err
}

// Registry returns the schema registry this Writer resolves topic types
// against.
func (w *Writer) Registry() *Registry {
	return w.opts.Registry
}

// Info returns a snapshot of the currently open (or most recently closed)
// file's metadata.
func (w *Writer) Info() FileInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.info
}
