// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package capture

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/Littrow/czerny/pkg/tcd1304"
)

// ============================================================
// Helpers
// ============================================================

func testFrames(t *testing.T, n int) []*tcd1304.Frame {
	t.Helper()
	b := tcd1304.NewFrameBuilder()
	frames := make([]*tcd1304.Frame, 0, n)
	for i := 0; i < n; i++ {
		samples := make([]uint16, tcd1304.PixelCount)
		for j := range samples {
			samples[j] = uint16((j + i*13) & 0x3FF)
		}
		f, err := b.Build(samples)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		frames = append(frames, f)
	}
	return frames
}

// ============================================================
// Round Trip
// ============================================================

func TestWriterReader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	frames := testFrames(t, 3)

	w, err := NewWriter(&buf, "/dev/ttyACM0")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	for _, f := range frames {
		if err := w.WriteFrame(f, ""); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}
	if w.Count() != 3 {
		t.Errorf("expected 3 records written, got %d", w.Count())
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	hdr := r.Header()
	if hdr.Magic != Magic {
		t.Errorf("expected magic %q, got %q", Magic, hdr.Magic)
	}
	if hdr.Version != Version {
		t.Errorf("expected version %d, got %d", Version, hdr.Version)
	}
	if hdr.Device != "/dev/ttyACM0" {
		t.Errorf("expected device /dev/ttyACM0, got %q", hdr.Device)
	}
	if hdr.PixelCount != tcd1304.PixelCount {
		t.Errorf("expected pixel count %d, got %d", tcd1304.PixelCount, hdr.PixelCount)
	}
	if hdr.CreatedAt == 0 {
		t.Error("expected nonzero creation time")
	}

	for i, want := range frames {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("Next failed on record %d: %v", i, err)
		}
		if rec.Counter != want.Counter {
			t.Errorf("record %d: expected counter %d, got %d", i, want.Counter, rec.Counter)
		}
		if rec.Time == 0 {
			t.Errorf("record %d: expected nonzero timestamp", i)
		}
		if len(rec.Pixels) != tcd1304.PixelCount {
			t.Fatalf("record %d: expected %d pixels, got %d", i, tcd1304.PixelCount, len(rec.Pixels))
		}
		for j, px := range rec.Pixels {
			if px != want.Pixels[j] {
				t.Fatalf("record %d pixel %d: expected %d, got %d", i, j, want.Pixels[j], px)
			}
		}
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after last record, got %v", err)
	}
}

func TestWriteRecord_NoteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "sim")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	rec := Record{
		Time:    1234567890,
		Counter: 42,
		Pixels:  make([]uint16, tcd1304.PixelCount),
		Note:    "dark reference",
	}
	if err := w.WriteRecord(rec); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got.Time != 1234567890 {
		t.Errorf("expected timestamp 1234567890, got %d", got.Time)
	}
	if got.Counter != 42 {
		t.Errorf("expected counter 42, got %d", got.Counter)
	}
	if got.Note != "dark reference" {
		t.Errorf("expected note to survive, got %q", got.Note)
	}
}

// ============================================================
// Header Validation
// ============================================================

func TestNewReader_BadMagic(t *testing.T) {
	var buf bytes.Buffer
	enc := cbor.NewEncoder(&buf)
	if err := enc.Encode(Header{Magic: "NOPE!", Version: Version}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	_, err := NewReader(&buf)
	if !errors.Is(err, ErrBadMagic) {
		t.Errorf("expected ErrBadMagic, got %v", err)
	}
}

func TestNewReader_BadVersion(t *testing.T) {
	var buf bytes.Buffer
	enc := cbor.NewEncoder(&buf)
	if err := enc.Encode(Header{Magic: Magic, Version: 99}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	_, err := NewReader(&buf)
	if !errors.Is(err, ErrVersion) {
		t.Errorf("expected ErrVersion, got %v", err)
	}
}

func TestNewReader_EmptyStream(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil))
	if err == nil {
		t.Error("expected error for empty stream")
	}
}

// ============================================================
// Truncation
// ============================================================

func TestReader_TruncatedRecord(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "sim")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	frames := testFrames(t, 1)
	if err := w.WriteFrame(frames[0], ""); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	// Chop the tail off the only record, as a crash mid-write would.
	cut := buf.Bytes()[:buf.Len()-5]

	r, err := NewReader(bytes.NewReader(cut))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	_, err = r.Next()
	if err == nil {
		t.Fatal("expected error for truncated record")
	}
	if err == io.EOF {
		t.Error("truncated record must not read as a clean end of stream")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

// ============================================================
// Record To Frame
// ============================================================

func TestRecord_Frame(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "sim")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	frames := testFrames(t, 1)
	want := frames[0]
	if err := w.WriteFrame(want, ""); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	got, err := rec.Frame()
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if got.Counter != want.Counter {
		t.Errorf("expected counter %d, got %d", want.Counter, got.Counter)
	}
	if got.Checksum != want.Checksum {
		t.Errorf("expected rebuilt checksum 0x%04X, got 0x%04X", want.Checksum, got.Checksum)
	}

	// The rebuilt frame must re-encode to a wire-valid frame.
	if err := tcd1304.ValidateFrame(got.Encode()); err != nil {
		t.Errorf("rebuilt frame failed validation: %v", err)
	}
}

func TestRecord_FrameWrongPixelCount(t *testing.T) {
	rec := Record{Pixels: make([]uint16, 10)}
	if _, err := rec.Frame(); !errors.Is(err, ErrPixelCount) {
		t.Errorf("expected ErrPixelCount, got %v", err)
	}
}
