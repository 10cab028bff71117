// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package config defines the flat, transport-independent record types
// consumed by the recorder and player, along with a thin YAML loader used
// only by the CLI. The recording and playback engine never parses a config
// file itself; it is always handed already-populated structs.
package config

// TopicSpec binds one topic to its message type and schema source, as read
// from a recorder config file.
type TopicSpec struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	SchemaFile string `yaml:"schema_file"`
}

// RecorderConfig controls where and how a recording session writes its
// output file.
type RecorderConfig struct {
	OutputPath     string      `yaml:"output_path"`
	FilenamePrefix string      `yaml:"filename_prefix"`
	OutputFormat   string      `yaml:"output_format"`
	Topics         []TopicSpec `yaml:"topics"`
}

// PlayerConfig controls what a playback session reads and how it paces
// publication.
type PlayerConfig struct {
	InputPath    string  `yaml:"input_path"`
	LoopPlayback bool    `yaml:"loop_playback"`
	PlaybackRate float64 `yaml:"playback_rate"`
}

// StorageConfig controls the container writer's compression and rotation
// behavior, and the schema registry's search path.
type StorageConfig struct {
	CompressionType CompressionType `yaml:"compression_type"`

	// CompressionLevel is accepted for configuration-file compatibility
	// but is not currently wired into the container writer; see DESIGN.md.
	CompressionLevel  int      `yaml:"compression_level"`
	ChunkSize         int64    `yaml:"chunk_size"`
	WriteBatchSize    int      `yaml:"write_batch_size"`
	MaxFileSize       uint64   `yaml:"max_file_size"`
	SplitBySize       bool     `yaml:"split_by_size"`
	SchemaSearchPaths []string `yaml:"schema_search_paths"`
}

// BufferConfig controls the recorder's bounded message buffer.
type BufferConfig struct {
	BufferSize int `yaml:"buffer_size"`

	// MaxMessageSize, if positive, sizes a pool of reusable buffers that the
	// buffer defensively copies pushed payloads into, up to this many bytes.
	// Payloads larger than MaxMessageSize are held by direct reference
	// instead. Zero disables pooling entirely.
	MaxMessageSize int `yaml:"max_message_size"`
}
