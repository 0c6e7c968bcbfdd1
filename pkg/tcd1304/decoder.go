// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import "bytes"

// maxPendingText bounds the out-of-band text buffer so an unattended decoder
// on a noisy line cannot grow without limit. Oldest bytes are dropped first.
const maxPendingText = 4096

// Decoder recovers frames from an arbitrary byte stream. The instrument
// interleaves ASCII reply lines with binary frames on one channel, so the
// decoder hunts for the start marker, collects the fixed frame length,
// validates, and hands everything that was never part of a frame candidate
// to the caller via TakeText.
//
// When a candidate fails validation its bytes are discarded, but the
// candidate is first rescanned past the failed start marker so a genuine
// frame beginning inside it is not lost.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	state    int
	matchLen int // start-marker bytes matched while hunting
	buf      []byte
	text     []byte
}

// NewDecoder creates a decoder in the hunting state.
func NewDecoder() *Decoder {
	return &Decoder{
		state: stateHunt,
		buf:   make([]byte, 0, FrameSize),
	}
}

// Reset returns the decoder to the hunting state and drops all buffered
// candidate and text bytes.
func (d *Decoder) Reset() {
	d.state = stateHunt
	d.matchLen = 0
	d.buf = d.buf[:0]
	d.text = d.text[:0]
}

// TakeText returns the bytes received outside any frame candidate since the
// last call — typically command replies — and clears the buffer.
func (d *Decoder) TakeText() []byte {
	if len(d.text) == 0 {
		return nil
	}
	out := make([]byte, len(d.text))
	copy(out, d.text)
	d.text = d.text[:0]
	return out
}

// DecodeByte processes a single stream byte. It returns a frame when one
// completes and validates, an error when a complete candidate fails
// validation, and (nil, nil) otherwise.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if d.state == stateHunt {
		d.hunt(b)
		return nil, nil
	}

	d.buf = append(d.buf, b)
	if len(d.buf) < FrameSize {
		return nil, nil
	}

	f, err := DecodeFrame(d.buf)
	if err != nil {
		d.rescan()
		return nil, err
	}
	d.buf = d.buf[:0]
	d.state = stateHunt
	d.matchLen = 0
	return f, nil
}

// hunt advances the start-marker match. The marker has four distinct bytes,
// so on a mismatch the only viable restart is a fresh 'F'.
func (d *Decoder) hunt(b byte) {
	if b == StartMarker[d.matchLen] {
		d.matchLen++
		if d.matchLen == len(StartMarker) {
			d.buf = append(d.buf[:0], StartMarker...)
			d.state = stateCollect
			d.matchLen = 0
		}
		return
	}

	// The matched prefix turned out to be ordinary text.
	if d.matchLen > 0 {
		d.pushText([]byte(StartMarker[:d.matchLen]))
	}
	if b == StartMarker[0] {
		d.matchLen = 1
		return
	}
	d.matchLen = 0
	d.pushText([]byte{b})
}

// rescan handles a candidate that failed validation: look for another start
// marker past the failed one and keep collecting from there, or fall back to
// hunting with any trailing partial marker preserved.
func (d *Decoder) rescan() {
	rest := d.buf[len(StartMarker):]
	if idx := bytes.Index(rest, []byte(StartMarker)); idx >= 0 {
		d.buf = append(d.buf[:0], rest[idx:]...)
		d.state = stateCollect
		return
	}
	d.matchLen = trailingMarkerPrefix(rest)
	d.buf = d.buf[:0]
	d.state = stateHunt
}

// trailingMarkerPrefix reports how many bytes of a split start marker end p.
func trailingMarkerPrefix(p []byte) int {
	for k := len(StartMarker) - 1; k >= 1; k-- {
		if bytes.HasSuffix(p, []byte(StartMarker[:k])) {
			return k
		}
	}
	return 0
}

func (d *Decoder) pushText(p []byte) {
	d.text = append(d.text, p...)
	if over := len(d.text) - maxPendingText; over > 0 {
		d.text = d.text[:copy(d.text, d.text[over:])]
	}
}
