// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import (
	"bytes"
	"fmt"
	"runtime"
	"testing"
)

// ============================================================
// Ring Construction Tests
// ============================================================

func TestNewRing_PowerOfTwoRounding(t *testing.T) {
	tests := []struct {
		name     string
		request  int
		expected int
	}{
		{"exact power of two", 256, 256},
		{"rounds up", 100, 128},
		{"minimum", 0, 2},
		{"one", 1, 2},
		{"just over power", 129, 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRing(tt.request)
			if r.Capacity() != tt.expected {
				t.Errorf("Capacity mismatch: expected %d, got %d", tt.expected, r.Capacity())
			}
		})
	}
}

func TestNewRing_StartsEmpty(t *testing.T) {
	r := NewRing(64)
	if !r.IsEmpty() {
		t.Error("New ring should be empty")
	}
	if r.Available() != 0 {
		t.Errorf("Available should be 0, got %d", r.Available())
	}
	if r.FreeSpace() != 63 {
		t.Errorf("FreeSpace should be capacity-1 (63), got %d", r.FreeSpace())
	}
}

// ============================================================
// Ring Read/Write Tests
// ============================================================

func TestRing_WriteReadSequence(t *testing.T) {
	r := NewRing(64)
	data := []byte("the quick brown fox jumps over the lazy dog")

	for i, b := range data {
		if !r.WriteByte(b) {
			t.Fatalf("WriteByte failed at index %d", i)
		}
	}
	if r.Available() != len(data) {
		t.Fatalf("Available mismatch: expected %d, got %d", len(data), r.Available())
	}

	out := make([]byte, len(data))
	for i := range out {
		b, ok := r.ReadByte()
		if !ok {
			t.Fatalf("ReadByte failed at index %d", i)
		}
		out[i] = b
	}

	if !bytes.Equal(out, data) {
		t.Errorf("Read sequence differs from written: %q vs %q", out, data)
	}
	if r.Available() != 0 {
		t.Errorf("Available should be 0 after draining, got %d", r.Available())
	}
	if r.FreeSpace() != r.Capacity()-1 {
		t.Errorf("FreeSpace should be %d after draining, got %d", r.Capacity()-1, r.FreeSpace())
	}
}

func TestRing_FullRejectsWrite(t *testing.T) {
	r := NewRing(8)

	// Usable space is capacity-1.
	for i := 0; i < 7; i++ {
		if !r.WriteByte(byte(i)) {
			t.Fatalf("WriteByte %d should succeed", i)
		}
	}
	if !r.IsFull() {
		t.Error("Ring should be full after capacity-1 writes")
	}

	before := r.Available()
	if r.WriteByte(0xFF) {
		t.Error("WriteByte should fail on a full ring")
	}
	if r.Available() != before {
		t.Error("Failed write must not mutate the ring")
	}
}

func TestRing_EmptyRead(t *testing.T) {
	r := NewRing(8)
	if _, ok := r.ReadByte(); ok {
		t.Error("ReadByte on empty ring should fail")
	}
	if _, ok := r.Peek(); ok {
		t.Error("Peek on empty ring should fail")
	}
}

func TestRing_WrapAround(t *testing.T) {
	r := NewRing(8)

	// Cycle enough data through to wrap the indices several times.
	var written, read byte
	for cycle := 0; cycle < 10; cycle++ {
		for i := 0; i < 5; i++ {
			if !r.WriteByte(written) {
				t.Fatalf("cycle %d: write failed", cycle)
			}
			written++
		}
		for i := 0; i < 5; i++ {
			b, ok := r.ReadByte()
			if !ok {
				t.Fatalf("cycle %d: read failed", cycle)
			}
			if b != read {
				t.Fatalf("cycle %d: order broken: expected %d, got %d", cycle, read, b)
			}
			read++
		}
	}
}

func TestRing_Invariant(t *testing.T) {
	r := NewRing(16)
	check := func(step string) {
		avail, free := r.Available(), r.FreeSpace()
		if avail+free != r.Capacity()-1 {
			t.Fatalf("%s: available(%d) + free(%d) != capacity-1(%d)", step, avail, free, r.Capacity()-1)
		}
		if avail < 0 || free < 0 {
			t.Fatalf("%s: negative count: available=%d free=%d", step, avail, free)
		}
	}

	check("empty")
	for i := 0; i < 15; i++ {
		r.WriteByte(byte(i))
		check("filling")
	}
	for i := 0; i < 10; i++ {
		r.ReadByte()
		check("draining")
	}
	r.Write([]byte("wrap around data"))
	check("bulk write")
	r.Clear()
	check("cleared")
}

// ============================================================
// Ring Bulk Operation Tests
// ============================================================

func TestRing_BulkWritePartial(t *testing.T) {
	r := NewRing(8)
	n := r.Write([]byte("0123456789"))
	if n != 7 {
		t.Errorf("Bulk write into 7 free slots should report 7, got %d", n)
	}

	out := make([]byte, 10)
	got := r.Read(out)
	if got != 7 {
		t.Errorf("Bulk read should report 7, got %d", got)
	}
	if !bytes.Equal(out[:got], []byte("0123456")) {
		t.Errorf("Bulk read content mismatch: %q", out[:got])
	}
}

func TestRing_BulkReadEmpty(t *testing.T) {
	r := NewRing(8)
	out := make([]byte, 4)
	if n := r.Read(out); n != 0 {
		t.Errorf("Bulk read on empty ring should report 0, got %d", n)
	}
}

// ============================================================
// Ring Peek Tests
// ============================================================

func TestRing_PeekNonDestructive(t *testing.T) {
	r := NewRing(8)
	r.Write([]byte("AB"))

	b, ok := r.Peek()
	if !ok || b != 'A' {
		t.Errorf("Peek = %c, %v; want 'A', true", b, ok)
	}
	if r.Available() != 2 {
		t.Error("Peek must not consume")
	}

	b, ok = r.PeekAt(1)
	if !ok || b != 'B' {
		t.Errorf("PeekAt(1) = %c, %v; want 'B', true", b, ok)
	}
	if _, ok := r.PeekAt(2); ok {
		t.Error("PeekAt past available data should fail")
	}
	if _, ok := r.PeekAt(-1); ok {
		t.Error("PeekAt with negative offset should fail")
	}
}

func TestRing_PeekAtAcrossWrap(t *testing.T) {
	r := NewRing(8)

	// Push tail near the end of the backing array, then wrap.
	r.Write([]byte("xxxxx"))
	out := make([]byte, 5)
	r.Read(out)
	r.Write([]byte("ABCDE"))

	for i, want := range []byte("ABCDE") {
		b, ok := r.PeekAt(i)
		if !ok || b != want {
			t.Errorf("PeekAt(%d) = %c, %v; want %c, true", i, b, ok, want)
		}
	}
}

// ============================================================
// Ring Clear Tests
// ============================================================

func TestRing_Clear(t *testing.T) {
	r := NewRing(8)
	r.Write([]byte("ABC"))
	r.Clear()

	if !r.IsEmpty() {
		t.Error("Ring should be empty after Clear")
	}
	if r.FreeSpace() != 7 {
		t.Errorf("FreeSpace after Clear should be 7, got %d", r.FreeSpace())
	}

	// The ring must remain usable.
	r.WriteByte('Z')
	if b, ok := r.ReadByte(); !ok || b != 'Z' {
		t.Error("Ring unusable after Clear")
	}
}

// ============================================================
// Ring Concurrency Tests
// ============================================================

// TestRing_ConcurrentSPSC runs one producer and one consumer goroutine at
// full speed and verifies every byte arrives exactly once, in order.
func TestRing_ConcurrentSPSC(t *testing.T) {
	const total = 100000
	r := NewRing(64)

	done := make(chan error, 1)
	go func() {
		var expected byte
		for received := 0; received < total; {
			b, ok := r.ReadByte()
			if !ok {
				runtime.Gosched()
				continue
			}
			if b != expected {
				done <- fmt.Errorf("order broken at byte %d: expected %d, got %d", received, expected, b)
				return
			}
			expected++
			received++
		}
		done <- nil
	}()

	var next byte
	for sent := 0; sent < total; {
		if r.WriteByte(next) {
			next++
			sent++
		} else {
			runtime.Gosched()
		}
	}

	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
