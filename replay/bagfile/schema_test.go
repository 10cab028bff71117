// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bagfile

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	var r *Registry

	BeforeEach(func() {
		r = NewRegistry()
		r.AddSearchPath("testdata")
	})

	It("imports a file and resolves its message types", func() {
		Expect(r.Import("sample.proto")).To(BeTrue())
		Expect(r.Errors()).To(BeEmpty())

		data, err := r.DescriptorSet("sample.Ping")
		Expect(err).NotTo(HaveOccurred())

		var set descriptorpb.FileDescriptorSet
		Expect(proto.Unmarshal(data, &set)).To(Succeed())
		Expect(set.File).NotTo(BeEmpty())
		Expect(set.File[0].GetName()).To(Equal("sample.proto"))
	})

	It("reports ErrTypeNotFound for an unknown type", func() {
		Expect(r.Import("sample.proto")).To(BeTrue())

		_, err := r.DescriptorSet("sample.DoesNotExist")
		Expect(err).To(MatchError(ErrTypeNotFound))
	})

	It("accumulates ImportErrors for a missing file without panicking", func() {
		ok := r.Import("does-not-exist.proto")
		Expect(ok).To(BeFalse())
		Expect(r.Errors()).NotTo(BeEmpty())
	})
})
