// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bagfile

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("NamingPolicy", func() {
	It("generates a bare prefix.ext path when OutputDir is empty", func() {
		p := &NamingPolicy{Prefix: "session", Extension: "mcap"}
		Expect(p.GenerateName()).To(Equal(filepath.Join(DefaultOutputDir, "session.mcap")))
	})

	It("generates a timestamped path and disambiguates collisions", func() {
		dir, err := os.MkdirTemp("", "naming")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		p := &NamingPolicy{
			OutputDir: dir,
			Prefix:    "session",
			Extension: "mcap",
			now:       func() time.Time { return fixed },
		}

		first := p.GenerateName()
		Expect(first).To(Equal(filepath.Join(dir, "session_2026_01_02-03_04_05.mcap")))

		Expect(os.WriteFile(first, nil, 0o644)).To(Succeed())

		second := p.GenerateName()
		Expect(second).To(Equal(filepath.Join(dir, "session_2026_01_02-03_04_05_1.mcap")))
	})
})
