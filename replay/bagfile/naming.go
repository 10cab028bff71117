// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bagfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultOutputDir is used when a NamingPolicy's OutputDir is empty.
const DefaultOutputDir = "./bags"

// NamingPolicy generates unique output paths for successive file
// generations of one recording session, following the default/prefixed
// naming scheme: an empty OutputDir yields a single bare
// "<prefix>.<ext>", while a configured OutputDir yields timestamped names
// with a collision suffix.
type NamingPolicy struct {
	OutputDir string
	Prefix    string
	Extension string

	// now is overridable by tests; defaults to time.Now.
	now func() time.Time
}

// GenerateName returns the next unique path for this policy.
//
// When OutputDir is empty, the result is always "./<default>/<prefix>.<ext>"
// — callers that want multiple generations must set OutputDir. Otherwise the
// result embeds the current local time to second resolution, with a "_N"
// suffix appended on collision against an existing file.
func (p *NamingPolicy) GenerateName() string {
	now := p.now
	if now == nil {
		now = time.Now
	}

	if p.OutputDir == "" {
		return filepath.Join(DefaultOutputDir, fmt.Sprintf("%s.%s", p.Prefix, p.Extension))
	}

	stamp := now().Format("2006_01_02-15_04_05")
	base := fmt.Sprintf("%s_%s", p.Prefix, stamp)

	candidate := filepath.Join(p.OutputDir, fmt.Sprintf("%s.%s", base, p.Extension))
	for suffix := 1; fileExists(candidate); suffix++ {
		candidate = filepath.Join(p.OutputDir, fmt.Sprintf("%s_%d.%s", base, suffix, p.Extension))
	}
	return candidate
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
