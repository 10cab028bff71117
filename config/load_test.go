// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Load", func() {
	It("decodes a recorder config file", func() {
		dir, err := os.MkdirTemp("", "config")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "recorder.yaml")
		contents := `
output_path: ./bags
filename_prefix: session
output_format: mcap
topics:
  - name: /odom
    type: nav.Odometry
    schema_file: nav/odometry.proto
`
		Expect(os.WriteFile(path, []byte(contents), 0o644)).To(Succeed())

		var rc RecorderConfig
		Expect(Load(path, &rc)).To(Succeed())

		Expect(rc.OutputPath).To(Equal("./bags"))
		Expect(rc.Topics).To(HaveLen(1))
		Expect(rc.Topics[0].Name).To(Equal("/odom"))
		Expect(rc.Topics[0].Type).To(Equal("nav.Odometry"))
	})

	It("returns an error for a missing file", func() {
		var rc RecorderConfig
		Expect(Load("/no/such/file.yaml", &rc)).To(HaveOccurred())
	})
})
