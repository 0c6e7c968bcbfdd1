// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import "errors"

// Error taxonomy for the codec, transport, and command engine. Validation
// reports the first failing check only, so errors.Is against these sentinels
// is enough to classify a bad frame.
var (
	// ErrInvalidInput means the sample source handed the builder nothing or
	// too few samples.
	ErrInvalidInput = errors.New("invalid sample input")

	// ErrInvalidData means a frame is structurally broken: wrong size or
	// corrupted start/end markers.
	ErrInvalidData = errors.New("invalid frame data")

	// ErrPixelCount means the pixel-count field disagrees with the fixed
	// sensor geometry.
	ErrPixelCount = errors.New("wrong pixel count")

	// ErrChecksum means the embedded CRC does not match the frame contents.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrBusy means a command was rejected by the current acquisition state.
	ErrBusy = errors.New("acquisition running")

	// ErrInvalidParam means a command argument failed to parse or fell
	// outside the configured range.
	ErrInvalidParam = errors.New("invalid parameter")
)
