// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Frame is one complete, checksummed readout of the sensor: every pixel word
// the ADC produced for a single integration period. Multi-byte fields travel
// little-endian; the layout is fixed at FrameSize bytes with no padding and
// no versioning.
type Frame struct {
	Counter  uint16
	Pixels   [PixelCount]uint16
	Checksum uint16
}

// FrameBuilder stamps sample arrays into frames. The builder owns the running
// frame counter: it increments on every Build, wrapping at 65536, whether or
// not the frame is ever transmitted. Counter gaps seen by a receiver
// therefore mean suppressed frames, not lost ones.
//
// A FrameBuilder is not safe for concurrent use.
type FrameBuilder struct {
	counter uint16
}

// NewFrameBuilder returns a builder whose next frame carries counter 0.
func NewFrameBuilder() *FrameBuilder {
	return &FrameBuilder{}
}

// Counter returns the value the next built frame will carry.
func (b *FrameBuilder) Counter() uint16 {
	return b.counter
}

// ResetCounter rewinds the counter to zero, for calibration runs and test
// harnesses that need deterministic numbering.
func (b *FrameBuilder) ResetCounter() {
	b.counter = 0
}

// Build copies the first PixelCount samples into a new frame, stamps markers,
// pixel count and the current counter, computes the checksum, and then
// advances the counter. It fails only when samples is absent or short.
func (b *FrameBuilder) Build(samples []uint16) (*Frame, error) {
	if samples == nil {
		return nil, fmt.Errorf("%w: nil samples", ErrInvalidInput)
	}
	if len(samples) < PixelCount {
		return nil, fmt.Errorf("%w: got %d samples, want %d", ErrInvalidInput, len(samples), PixelCount)
	}

	f := &Frame{Counter: b.counter}
	copy(f.Pixels[:], samples[:PixelCount])
	f.Checksum = Checksum(f.appendBody(make([]byte, 0, FrameSize-2)))

	b.counter++ // wraps at 65536
	return f, nil
}

// appendBody serializes everything except the trailing checksum field, which
// is exactly the byte range the checksum covers.
func (f *Frame) appendBody(dst []byte) []byte {
	dst = append(dst, StartMarker...)
	dst = binary.LittleEndian.AppendUint16(dst, f.Counter)
	dst = binary.LittleEndian.AppendUint16(dst, PixelCount)
	for _, px := range f.Pixels {
		dst = binary.LittleEndian.AppendUint16(dst, px)
	}
	dst = append(dst, EndMarker...)
	return dst
}

// AppendEncode appends the full wire representation of the frame to dst and
// returns the extended slice.
func (f *Frame) AppendEncode(dst []byte) []byte {
	dst = f.appendBody(dst)
	return binary.LittleEndian.AppendUint16(dst, f.Checksum)
}

// Encode returns the frame's wire representation: exactly FrameSize bytes.
func (f *Frame) Encode() []byte {
	return f.AppendEncode(make([]byte, 0, FrameSize))
}

// ValidateFrame checks a candidate frame in contract order: size, then both
// markers, then the pixel-count field, then the checksum. The first failure
// is returned, so marker corruption is always reported as ErrInvalidData
// before the checksum is consulted.
func ValidateFrame(p []byte) error {
	if len(p) != FrameSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidData, len(p), FrameSize)
	}
	if !bytes.Equal(p[:4], []byte(StartMarker)) {
		return fmt.Errorf("%w: bad start marker % X", ErrInvalidData, p[:4])
	}
	if !bytes.Equal(p[FrameSize-6:FrameSize-2], []byte(EndMarker)) {
		return fmt.Errorf("%w: bad end marker % X", ErrInvalidData, p[FrameSize-6:FrameSize-2])
	}
	if count := binary.LittleEndian.Uint16(p[6:8]); count != PixelCount {
		return fmt.Errorf("%w: field says %d, want %d", ErrPixelCount, count, PixelCount)
	}
	want := binary.LittleEndian.Uint16(p[FrameSize-2:])
	if got := Checksum(p[:FrameSize-2]); got != want {
		return fmt.Errorf("%w: computed 0x%04X, embedded 0x%04X", ErrChecksum, got, want)
	}
	return nil
}

// DecodeFrame validates p and, on success, returns the parsed frame.
func DecodeFrame(p []byte) (*Frame, error) {
	if err := ValidateFrame(p); err != nil {
		return nil, err
	}
	f := &Frame{
		Counter:  binary.LittleEndian.Uint16(p[4:6]),
		Checksum: binary.LittleEndian.Uint16(p[FrameSize-2:]),
	}
	for i := 0; i < PixelCount; i++ {
		f.Pixels[i] = binary.LittleEndian.Uint16(p[FrameHeaderSize+2*i:])
	}
	return f, nil
}

// SignalPixels returns the light-sensing portion of the array, excluding the
// shielded dummy elements at both ends.
func (f *Frame) SignalPixels() []uint16 {
	return f.Pixels[SignalStart : SignalEnd+1]
}

// DarkLevel returns the mean of the shielded dummy pixels, the per-frame
// dark/noise reference.
func (f *Frame) DarkLevel() float64 {
	var sum uint64
	var n int
	for i := DummyFrontStart; i <= DummyFrontEnd; i++ {
		sum += uint64(f.Pixels[i])
		n++
	}
	for i := DummyRearStart; i <= DummyRearEnd; i++ {
		sum += uint64(f.Pixels[i])
		n++
	}
	return float64(sum) / float64(n)
}
