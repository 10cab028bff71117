// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bagfile implements the on-disk container format used to record
// and replay topic traffic: the bounded message buffer, the embedded schema
// registry, and the MCAP-backed writer and reader.
package bagfile

// Message is an immutable captured record.
//
// A Message is produced once, at the moment it is pushed onto a Buffer, and
// is never mutated afterward. It is passed by pointer through the buffer and
// the writer, and should be treated as read-only by every consumer.
type Message struct {
	// Topic is the name of the topic this message was captured from.
	Topic string
	// Payload is the opaque message body. No parsing occurs during capture;
	// it is copied verbatim into the container.
	Payload []byte
	// TimestampUs is the monotonic wall-clock time, in microseconds since the
	// epoch, at which this message was pushed onto the buffer.
	TimestampUs int64
	// Sequence is a monotonically increasing, session-scoped arrival index
	// assigned by the Buffer at push time.
	Sequence uint64
	// SchemaName is the fully qualified message type this payload encodes.
	SchemaName string
	// Encoding identifies how Payload should be interpreted. Defaults to
	// "protobuf".
	Encoding string

	// release, if non-nil, returns Payload's backing storage to the pool it
	// was drawn from. It is called once, by whichever of Writer or Buffer.Clear
	// finishes with the message last, and must not be called again.
	release func()
}

// DefaultEncoding is the encoding assumed when none is specified.
const DefaultEncoding = "protobuf"

// TopicConfig binds a topic to a message type and its schema source.
//
// SchemaID and ChannelID are unset (zero) until the Writer assigns them via
// RegisterTopic; they are reassigned on every file rotation.
type TopicConfig struct {
	TopicName  string
	TypeName   string
	SchemaFile string
	Encoding   string

	SchemaID  uint16
	ChannelID uint16
}

// FileInfo describes one output file generation.
//
// BytesWritten is a lower-bound estimator used only to decide when to
// rotate; it is not an authoritative file size (framing and chunk overhead
// added by the container library are not counted).
type FileInfo struct {
	Path         string
	BytesWritten uint64
	IsOpen       bool
	Prefix       string
	Extension    string
	OutputDir    string
	Format       string
}
