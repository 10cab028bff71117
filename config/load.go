// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path into out, which must be a pointer to
// one of RecorderConfig, PlayerConfig, StorageConfig, or BufferConfig (or a
// struct embedding them).
//
// Load is a convenience used only by cmd/openbagctl; the recorder and
// player constructors always take the parsed structs directly.
func Load(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening config %q", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(out); err != nil {
		return errors.Wrapf(err, "decoding config %q", path)
	}
	return nil
}
