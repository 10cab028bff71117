// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bagfile

import (
	"io"
	"os"
	"sort"

	"github.com/foxglove/mcap/go/mcap"
	"github.com/pkg/errors"

	"github.com/zwhy2025/openbag/support/logging"
)

// ChannelInfo describes one channel recorded in a container file.
type ChannelInfo struct {
	Topic    string
	Encoding string
	SchemaID uint16
}

// Record is one message read back from a container file.
type Record struct {
	ChannelID uint16
	LogTimeNs uint64
	Payload   []byte
}

// Reader opens a single container file for playback. It is single-pass and
// not safe for concurrent use; a caller that needs to scan the same file
// from more than one goroutine should open() it again in each.
type Reader struct {
	Logger logging.L

	f        *os.File
	mr       *mcap.Reader
	channels map[uint16]ChannelInfo
}

// NewReader returns an unopened Reader.
func NewReader() *Reader {
	return &Reader{Logger: logging.Nop}
}

// Open opens path and reads its summary (channels, schemas, statistics).
// If the summary is missing or corrupt, Open falls back to a full linear
// scan to discover channels.
func (r *Reader) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %q", path)
	}

	mr, err := mcap.NewReader(f)
	if err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "reading container header for %q", path)
	}

	r.f = f
	r.mr = mr
	r.channels = make(map[uint16]ChannelInfo)

	info, err := mr.Info()
	if err != nil {
		r.Logger.Warnf("summary unavailable for %q (%s); falling back to full scan", path, err)
		if scanErr := r.scanChannels(); scanErr != nil {
			return errors.Wrapf(scanErr, "scanning %q for channels", path)
		}
		return nil
	}

	for id, ch := range info.Channels {
		var schemaID uint16
		if ch != nil {
			schemaID = ch.SchemaID
		}
		r.channels[id] = ChannelInfo{
			Topic:    ch.Topic,
			Encoding: ch.MessageEncoding,
			SchemaID: schemaID,
		}
	}
	return nil
}

// scanChannels discovers channels by walking every message once, used when
// the summary could not be read.
func (r *Reader) scanChannels() error {
	it, err := r.mr.Messages()
	if err != nil {
		return err
	}

	for {
		_, channel, _, err := it.Next(nil)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if channel == nil {
			continue
		}
		r.channels[channel.ID] = ChannelInfo{
			Topic:    channel.Topic,
			Encoding: channel.MessageEncoding,
			SchemaID: channel.SchemaID,
		}
	}
}

// Topics returns the distinct topic names across all enumerated channels,
// sorted for determinism.
func (r *Reader) Topics() []string {
	seen := make(map[string]bool, len(r.channels))
	out := make([]string, 0, len(r.channels))
	for _, ci := range r.channels {
		if !seen[ci.Topic] {
			seen[ci.Topic] = true
			out = append(out, ci.Topic)
		}
	}
	sort.Strings(out)
	return out
}

// Channels returns a copy of the channel-ID-to-info map.
func (r *Reader) Channels() map[uint16]ChannelInfo {
	out := make(map[uint16]ChannelInfo, len(r.channels))
	for id, ci := range r.channels {
		out[id] = ci
	}
	return out
}

// MessageStream is a lazy, single-pass, log-time-ascending iterator over a
// container file's records.
type MessageStream struct {
	it mcap.MessageIterator
}

// Next returns the next record, or io.EOF once the stream is exhausted.
func (s *MessageStream) Next() (*Record, error) {
	_, channel, msg, err := s.it.Next(nil)
	if err != nil {
		return nil, err
	}

	rec := &Record{LogTimeNs: msg.LogTime, Payload: msg.Data}
	if channel != nil {
		rec.ChannelID = channel.ID
	}
	return rec, nil
}

// Messages returns a fresh MessageStream over the file's records in
// log-time ascending order. Calling Messages again after a prior stream is
// exhausted restarts the scan from the beginning.
func (r *Reader) Messages() (*MessageStream, error) {
	if r.mr == nil {
		return nil, ErrNotOpen
	}
	it, err := r.mr.Messages(mcap.InOrder(mcap.LogTimeOrder))
	if err != nil {
		return nil, errors.Wrap(err, "opening message iterator")
	}
	return &MessageStream{it: it}, nil
}

// Close is idempotent.
func (r *Reader) Close() error {
	if r.mr == nil {
		return nil
	}
	r.mr = nil
	err := r.f.Close()
	r.f = nil
	return err
}
