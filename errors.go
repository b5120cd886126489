// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import "errors"

// Configuration errors. These are returned from constructors and config
// loaders and are never deferred to a running pipeline.
var (
	// ErrInvalidParams is returned when atmosphere parameters violate their invariants.
	ErrInvalidParams = errors.New("skylut: invalid atmosphere parameters")

	// ErrInvalidLutConfig is returned when a LUT resolution is zero or negative.
	ErrInvalidLutConfig = errors.New("skylut: invalid LUT config")

	// ErrInvalidRingSize is returned for a ring smaller than 2, or smaller
	// than 3 with cross-fade enabled.
	ErrInvalidRingSize = errors.New("skylut: invalid ring size")

	// ErrInvalidOption is returned when an option value is out of range.
	ErrInvalidOption = errors.New("skylut: invalid option")

	// ErrNilCollaborator is returned when a Dispatcher or Allocator is nil.
	ErrNilCollaborator = errors.New("skylut: nil dispatcher or allocator")
)

// Run errors.
var (
	// ErrRunInProgress is returned by Start while a run has not finished.
	// Runs cannot be interrupted.
	ErrRunInProgress = errors.New("skylut: run in progress")

	// ErrNotStarted is returned by Advance on an Updater that was never started.
	ErrNotStarted = errors.New("skylut: run not started")

	// ErrClosed is returned when operating on a closed Updater or Ring.
	ErrClosed = errors.New("skylut: closed")
)
