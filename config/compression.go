// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// CompressionType selects the container's chunk compression codec.
type CompressionType int

const (
	// CompressionNone disables chunk compression.
	CompressionNone CompressionType = iota
	// CompressionLZ4 compresses chunks with LZ4.
	CompressionLZ4
	// CompressionZstd compresses chunks with Zstandard.
	CompressionZstd
)

var compressionNames = map[CompressionType]string{
	CompressionNone: "none",
	CompressionLZ4:  "lz4",
	CompressionZstd: "zstd",
}

var compressionValues = map[string]CompressionType{
	"none": CompressionNone,
	"lz4":  CompressionLZ4,
	"zstd": CompressionZstd,
}

func (c CompressionType) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return "none"
}

// MarshalYAML implements yaml.Marshaler so CompressionType round-trips
// through config files as its name rather than its ordinal.
func (c CompressionType) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *CompressionType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return c.Set(s)
}

var _ pflag.Value = (*CompressionType)(nil)

// Set implements pflag.Value, allowing CompressionType to be bound directly
// to a --compression flag.
func (c *CompressionType) Set(v string) error {
	cv, ok := compressionValues[v]
	if !ok {
		return errors.Errorf("unknown compression type: %q", v)
	}
	*c = cv
	return nil
}

// Type implements pflag.Value.
func (c *CompressionType) Type() string { return "config.CompressionType" }
