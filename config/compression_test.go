// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package config

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config")
}

var _ = Describe("CompressionType", func() {
	It("stringifies every known value", func() {
		Expect(CompressionNone.String()).To(Equal("none"))
		Expect(CompressionLZ4.String()).To(Equal("lz4"))
		Expect(CompressionZstd.String()).To(Equal("zstd"))
	})

	It("round-trips through Set and String", func() {
		var c CompressionType
		Expect(c.Set("zstd")).To(Succeed())
		Expect(c).To(Equal(CompressionZstd))
		Expect(c.String()).To(Equal("zstd"))
	})

	It("rejects an unknown value", func() {
		var c CompressionType
		Expect(c.Set("bogus")).To(HaveOccurred())
	})

	It("round-trips through YAML as a name, not an ordinal", func() {
		c := CompressionLZ4
		v, err := c.MarshalYAML()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("lz4"))

		var decoded CompressionType
		Expect(decoded.UnmarshalYAML(func(out interface{}) error {
			*(out.(*string)) = "lz4"
			return nil
		})).To(Succeed())
		Expect(decoded).To(Equal(CompressionLZ4))
	})
})
