// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bagfile

import "github.com/pkg/errors"

// Sentinel errors returned by this package. Callers should compare against
// these with errors.Cause, since they are typically wrapped with context.
var (
	// ErrTypeNotFound is returned by Registry.DescriptorSet when the
	// requested type name was never seen by a successful Import.
	ErrTypeNotFound = errors.New("bagfile: type not found in schema registry")

	// ErrAlreadyOpen is returned by Writer.Open when called on a Writer
	// that already has an active output file.
	ErrAlreadyOpen = errors.New("bagfile: writer already open")

	// ErrNotOpen is returned by Writer/Reader operations that require an
	// open file.
	ErrNotOpen = errors.New("bagfile: not open")

	// ErrPathInvalid is returned by Writer.Open when the computed output
	// path cannot be created.
	ErrPathInvalid = errors.New("bagfile: invalid output path")

	// ErrTopicNotRegistered is returned by Writer.Write when the
	// message's topic has no corresponding channel in the current file.
	ErrTopicNotRegistered = errors.New("bagfile: topic not registered")

	// ErrWriteBatchFailed is returned by Writer.WriteBatch when one or
	// more messages in the batch failed to write; the batch is not
	// rolled back, since Writer.Write failures are drop-and-continue by
	// design.
	ErrWriteBatchFailed = errors.New("bagfile: one or more messages in batch failed to write")
)

// RotationError wraps a failure that occurred while rotating to a new
// output file during a write. Unlike an ordinary write failure, rotation
// failure is fatal to the session: the caller should stop.
type RotationError struct {
	Err error
}

func (e *RotationError) Error() string { return "bagfile: rotation failed: " + e.Err.Error() }

// Cause is intentionally not implemented: github.com/pkg/errors.Cause walks
// the causer chain until it finds a type that no longer implements causer,
// so a Cause method here would make errors.Cause(err) unwrap past
// *RotationError to its wrapped error, and callers checking
// errors.Cause(err).(*RotationError) would never match. Leaving this type
// out of the causer chain makes errors.Cause stop at the *RotationError
// itself.
func (e *RotationError) Unwrap() error { return e.Err }
