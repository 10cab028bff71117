// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bagfile

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestBagfile(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bagfile")
}
