// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import "sync/atomic"

// Ring is a single-producer/single-consumer circular byte buffer. The
// producer alone advances head, the consumer alone advances tail, and one
// slot stays permanently unused so head == tail always means empty. With a
// single writer per index and atomic loads of the opposite index, the ring
// is safe across two goroutines without locks.
//
// The SPSC precondition is hard: a second writer or second reader corrupts
// the ring silently. Do not repurpose it without adding synchronization.
type Ring struct {
	buf  []byte
	mask uint32
	head atomic.Uint32 // producer-owned
	tail atomic.Uint32 // consumer-owned
}

// NewRing creates a ring with at least the requested capacity, rounded up to
// a power of two. Usable space is always Capacity()-1 bytes.
func NewRing(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}
	size := 2
	for size < capacity {
		size <<= 1
	}
	return &Ring{
		buf:  make([]byte, size),
		mask: uint32(size - 1),
	}
}

// Capacity returns the allocated slot count, including the reserved slot.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Available returns the number of bytes ready to read.
func (r *Ring) Available() int {
	return int((r.head.Load() - r.tail.Load()) & r.mask)
}

// FreeSpace returns the number of bytes that can be written without loss.
// Available() + FreeSpace() == Capacity()-1 at every instant.
func (r *Ring) FreeSpace() int {
	return len(r.buf) - 1 - r.Available()
}

// IsEmpty reports whether no bytes are ready to read.
func (r *Ring) IsEmpty() bool {
	return r.head.Load() == r.tail.Load()
}

// IsFull reports whether the next WriteByte would fail.
func (r *Ring) IsFull() bool {
	return (r.head.Load()+1)&r.mask == r.tail.Load()
}

// WriteByte appends one byte. It returns false, with no mutation, when the
// ring is full. Producer side only.
func (r *Ring) WriteByte(b byte) bool {
	head := r.head.Load()
	next := (head + 1) & r.mask
	if next == r.tail.Load() {
		return false
	}
	r.buf[head] = b
	r.head.Store(next)
	return true
}

// Write appends as many bytes of p as fit, stopping at the first full
// condition. The returned count is authoritative: under concurrent draining
// a partial write may still land short of len(p).
func (r *Ring) Write(p []byte) int {
	for i, b := range p {
		if !r.WriteByte(b) {
			return i
		}
	}
	return len(p)
}

// ReadByte removes and returns the oldest byte. Consumer side only.
func (r *Ring) ReadByte() (byte, bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, false
	}
	b := r.buf[tail]
	r.tail.Store((tail + 1) & r.mask)
	return b, true
}

// Read fills p with up to len(p) bytes and returns the count transferred.
func (r *Ring) Read(p []byte) int {
	for i := range p {
		b, ok := r.ReadByte()
		if !ok {
			return i
		}
		p[i] = b
	}
	return len(p)
}

// Peek returns the oldest byte without removing it.
func (r *Ring) Peek() (byte, bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, false
	}
	return r.buf[tail], true
}

// PeekAt returns the byte offset positions past the oldest one, without
// consuming anything. Like Read, it may only be called from the consumer
// context; it exists so line scanning can look ahead without destroying
// partially received input.
func (r *Ring) PeekAt(offset int) (byte, bool) {
	if offset < 0 || offset >= r.Available() {
		return 0, false
	}
	tail := r.tail.Load()
	return r.buf[(tail+uint32(offset))&r.mask], true
}

// Clear discards all buffered bytes. It advances tail only, so it is safe
// against a concurrent producer but must never race another consumer.
func (r *Ring) Clear() {
	r.tail.Store(r.head.Load())
}
