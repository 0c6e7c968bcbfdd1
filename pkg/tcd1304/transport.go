// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import "sync/atomic"

// Link is the underlying byte device (USB CDC endpoint, socket, serial port
// adapter). Send must not block: it either accepts the whole buffer and
// reports completion later through Transport.SendComplete, or refuses it
// outright. The buffer must not be retained after completion is signaled.
type Link interface {
	Send(p []byte) bool
}

// TransportStats is a snapshot of transport counters. Overflow counters
// advance once per lossy call, not once per lost byte; byte totals count
// accepted bytes only.
type TransportStats struct {
	RXBytesTotal      uint64
	TXBytesTotal      uint64
	RXOverflows       uint64
	TXOverflows       uint64
	UnbufferedRejects uint64
}

// TransportOption configures a Transport.
type TransportOption func(*transportConfig)

type transportConfig struct {
	inboundSize  int
	outboundSize int
	flushChunk   int
}

// WithInboundSize overrides the inbound ring capacity.
func WithInboundSize(n int) TransportOption {
	return func(c *transportConfig) { c.inboundSize = n }
}

// WithOutboundSize overrides the outbound ring capacity.
func WithOutboundSize(n int) TransportOption {
	return func(c *transportConfig) { c.outboundSize = n }
}

// WithFlushChunk overrides how many buffered bytes a single Poll may hand to
// the link.
func WithFlushChunk(n int) TransportOption {
	return func(c *transportConfig) { c.flushChunk = n }
}

// Transport moves bytes between the link's callback context and the device's
// cooperative loop. Inbound bytes land in one SPSC ring, small outbound
// writes (ASCII replies) queue in another and drain chunk-at-a-time through
// Poll, and whole frames bypass the rings entirely via SendUnbuffered, gated
// by a single in-flight flag.
//
// Context rules mirror the rings': HandleRX and SendComplete belong to the
// link's producer context; everything else belongs to the loop context.
type Transport struct {
	link     Link
	inbound  *Ring
	outbound *Ring

	sendBusy  atomic.Bool
	flushBuf  []byte
	lineBuf   []byte
	crPending bool
	rxBytes  atomic.Uint64
	txBytes  atomic.Uint64
	rxOver   atomic.Uint64
	txOver   atomic.Uint64
	unbufRej atomic.Uint64
}

// NewTransport creates a transport over link with default ring sizes.
func NewTransport(link Link, opts ...TransportOption) *Transport {
	cfg := transportConfig{
		inboundSize:  DefaultInboundSize,
		outboundSize: DefaultOutboundSize,
		flushChunk:   DefaultFlushChunk,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Transport{
		link:     link,
		inbound:  NewRing(cfg.inboundSize),
		outbound: NewRing(cfg.outboundSize),
		flushBuf: make([]byte, cfg.flushChunk),
	}
}

// HandleRX ingests bytes from the link's receive callback. Bytes that do not
// fit are discarded and the overflow counter advances once. Producer context.
func (t *Transport) HandleRX(p []byte) int {
	written := t.inbound.Write(p)
	t.rxBytes.Add(uint64(written))
	if written < len(p) {
		t.rxOver.Add(1)
	}
	return written
}

// SendComplete clears the in-flight flag. The link must call it exactly once
// per accepted Send. Producer context.
func (t *Transport) SendComplete() {
	t.sendBusy.Store(false)
}

// Busy reports whether a send is in flight.
func (t *Transport) Busy() bool {
	return t.sendBusy.Load()
}

// Available returns the number of inbound bytes ready to read.
func (t *Transport) Available() int {
	return t.inbound.Available()
}

// ReadByte removes and returns the oldest inbound byte.
func (t *Transport) ReadByte() (byte, bool) {
	return t.inbound.ReadByte()
}

// Read fills p from the inbound ring and returns the count transferred.
func (t *Transport) Read(p []byte) int {
	return t.inbound.Read(p)
}

// ReadLine returns the next complete inbound line, with the terminator
// stripped. \r, \n, and \r\n all count as one terminator. It never blocks:
// when no complete line is buffered it returns ("", false) and consumes
// nothing. A terminator-less run of maxLen bytes is discarded whole so a
// babbling peer cannot wedge the inbound ring.
func (t *Transport) ReadLine(maxLen int) (string, bool) {
	// A line consumed on a trailing \r may have its \n half arrive later;
	// swallow it here so the pair still counts as one terminator.
	if t.crPending {
		if b, ok := t.inbound.Peek(); ok {
			t.crPending = false
			if b == '\n' {
				t.inbound.ReadByte()
			}
		}
	}

	avail := t.inbound.Available()
	limit := avail
	if maxLen < limit {
		limit = maxLen
	}

	for i := 0; i < limit; i++ {
		b, _ := t.inbound.PeekAt(i)
		if b != '\n' && b != '\r' {
			continue
		}

		if cap(t.lineBuf) < i {
			t.lineBuf = make([]byte, i)
		}
		line := t.lineBuf[:i]
		t.inbound.Read(line)

		term, _ := t.inbound.ReadByte()
		if term == '\r' {
			next, ok := t.inbound.Peek()
			switch {
			case ok && next == '\n':
				t.inbound.ReadByte()
			case !ok:
				t.crPending = true
			}
		}
		return string(line), true
	}

	if avail >= maxLen {
		for i := 0; i < maxLen; i++ {
			t.inbound.ReadByte()
		}
	}
	return "", false
}

// WriteByte enqueues one byte on the outbound ring.
func (t *Transport) WriteByte(b byte) bool {
	if !t.outbound.WriteByte(b) {
		t.txOver.Add(1)
		return false
	}
	t.txBytes.Add(1)
	return true
}

// Write enqueues p on the outbound ring and returns how many bytes were
// accepted. A short count means overflow; the remainder is discarded, never
// retried.
func (t *Transport) Write(p []byte) int {
	written := t.outbound.Write(p)
	t.txBytes.Add(uint64(written))
	if written < len(p) {
		t.txOver.Add(1)
	}
	return written
}

// WriteString enqueues s on the outbound ring.
func (t *Transport) WriteString(s string) int {
	return t.Write([]byte(s))
}

// SendUnbuffered hands p straight to the link, bypassing the outbound ring.
// It fails immediately — no queuing — when a prior send is still in flight
// or the link refuses the buffer. Frame payloads use this path; at 7402
// bytes they would dwarf any reasonable ring.
func (t *Transport) SendUnbuffered(p []byte) bool {
	if !t.sendBusy.CompareAndSwap(false, true) {
		t.unbufRej.Add(1)
		return false
	}
	if !t.link.Send(p) {
		t.sendBusy.Store(false)
		t.unbufRej.Add(1)
		return false
	}
	t.txBytes.Add(uint64(len(p)))
	return true
}

// Poll opportunistically flushes the outbound ring: when no send is in
// flight and bytes are queued, it hands the link one chunk. The chunk is
// consumed only after the link accepts it, so a refusal leaves the queue
// intact and in order. Call it once per loop iteration.
func (t *Transport) Poll() {
	if t.outbound.IsEmpty() {
		return
	}
	if !t.sendBusy.CompareAndSwap(false, true) {
		return
	}

	n := 0
	for ; n < len(t.flushBuf); n++ {
		b, ok := t.outbound.PeekAt(n)
		if !ok {
			break
		}
		t.flushBuf[n] = b
	}
	if n == 0 {
		t.sendBusy.Store(false)
		return
	}
	if !t.link.Send(t.flushBuf[:n]) {
		t.sendBusy.Store(false)
		return
	}
	for i := 0; i < n; i++ {
		t.outbound.ReadByte()
	}
}

// Stats returns a snapshot of the transport counters.
func (t *Transport) Stats() TransportStats {
	return TransportStats{
		RXBytesTotal:      t.rxBytes.Load(),
		TXBytesTotal:      t.txBytes.Load(),
		RXOverflows:       t.rxOver.Load(),
		TXOverflows:       t.txOver.Load(),
		UnbufferedRejects: t.unbufRej.Load(),
	}
}

// ResetStats zeroes all transport counters.
func (t *Transport) ResetStats() {
	t.rxBytes.Store(0)
	t.txBytes.Store(0)
	t.rxOver.Store(0)
	t.txOver.Store(0)
	t.unbufRej.Store(0)
}
