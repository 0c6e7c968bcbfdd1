// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

// Package capture persists acquired spectra as a CBOR stream: one Header
// followed by a Record per frame. The stream is append-friendly, so a
// capture interrupted mid-run stays readable up to the last whole record.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Littrow/czerny/pkg/tcd1304"
)

const (
	// Magic identifies a capture stream. It is the first header field
	// written, so even a hex dump of the file names the format.
	Magic = "CZCAP"

	// Version is the current stream layout version.
	Version = 1
)

var (
	// ErrBadMagic means the stream does not start with a capture header.
	ErrBadMagic = errors.New("not a CZCAP capture stream")

	// ErrVersion means the stream was written by an incompatible layout
	// version.
	ErrVersion = errors.New("unsupported capture version")

	// ErrPixelCount means a record does not carry a full readout.
	ErrPixelCount = errors.New("record pixel count mismatch")
)

// Header opens every capture stream and records its provenance.
// Timestamps are Unix microseconds; integration times on this instrument
// are microsecond-denominated, so coarser stamps would be useless.
type Header struct {
	Magic      string `cbor:"magic"`
	Version    uint8  `cbor:"version"`
	Device     string `cbor:"device"`
	PixelCount uint16 `cbor:"pixels"`
	CreatedAt  int64  `cbor:"created"`
}

// Record is one captured frame: the readout, its wire counter, and the
// host-side arrival time in Unix microseconds.
type Record struct {
	Time    int64    `cbor:"time"`
	Counter uint16   `cbor:"counter"`
	Pixels  []uint16 `cbor:"pixels"`
	Note    string   `cbor:"note,omitempty"`
}

// Frame rebuilds the frame carried by rec, including the checksum the
// device would have transmitted for it.
func (rec *Record) Frame() (*tcd1304.Frame, error) {
	if len(rec.Pixels) != tcd1304.PixelCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrPixelCount, len(rec.Pixels), tcd1304.PixelCount)
	}
	f := &tcd1304.Frame{Counter: rec.Counter}
	copy(f.Pixels[:], rec.Pixels)
	enc := f.Encode()
	f.Checksum = tcd1304.Checksum(enc[:tcd1304.FrameSize-2])
	return f, nil
}

// Writer appends frames to a capture stream.
type Writer struct {
	enc *cbor.Encoder
	n   int
}

// NewWriter writes a stream header to w and returns a Writer for the
// records that follow. device names the source (port, URL, or "sim").
func NewWriter(w io.Writer, device string) (*Writer, error) {
	enc := cbor.NewEncoder(w)
	hdr := Header{
		Magic:      Magic,
		Version:    Version,
		Device:     device,
		PixelCount: tcd1304.PixelCount,
		CreatedAt:  time.Now().UnixMicro(),
	}
	if err := enc.Encode(hdr); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &Writer{enc: enc}, nil
}

// WriteFrame appends f as a record stamped with the current time.
func (w *Writer) WriteFrame(f *tcd1304.Frame, note string) error {
	return w.WriteRecord(Record{
		Time:    time.Now().UnixMicro(),
		Counter: f.Counter,
		Pixels:  append([]uint16(nil), f.Pixels[:]...),
		Note:    note,
	})
}

// WriteRecord appends a prebuilt record.
func (w *Writer) WriteRecord(rec Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("write capture record: %w", err)
	}
	w.n++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.n
}

// Reader walks a capture stream.
type Reader struct {
	dec *cbor.Decoder
	hdr Header
}

// NewReader reads and validates the stream header from r.
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)
	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if hdr.Magic != Magic {
		return nil, ErrBadMagic
	}
	if hdr.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, hdr.Version)
	}
	return &Reader{dec: dec, hdr: hdr}, nil
}

// Header returns the stream header read by NewReader.
func (r *Reader) Header() Header {
	return r.hdr
}

// Next returns the next record. A clean end of stream is io.EOF; a
// record cut off mid-write surfaces as a wrapped io.ErrUnexpectedEOF.
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read capture record: %w", err)
	}
	return &rec, nil
}
