// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks receive-side frame statistics and error rates. Counter
// gaps are tracked separately from errors: the instrument's frame counter
// advances on every readout whether or not the frame was transmitted, so a
// gap means frames were suppressed (idle gate) or dropped (busy link), not
// corrupted in flight.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	ValidFrames      uint64
	ChecksumErrors   uint64
	MarkerErrors     uint64
	PixelCountErrors uint64
	CounterGaps      uint64
	MissedFrames     uint64
	BytesReceived    uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec

	lastCounter uint16
	haveLast    bool
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// AddBytes records raw bytes received, for throughput display.
func (s *Statistics) AddBytes(n int) {
	s.BytesReceived += uint64(n)
}

// Update records one decoder result: a frame, or the error a complete
// candidate failed with.
func (s *Statistics) Update(frame *Frame, decodeErr error) {
	s.TotalFrames++

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrChecksum):
			s.ChecksumErrors++
		case errors.Is(decodeErr, ErrPixelCount):
			s.PixelCountErrors++
		default:
			s.MarkerErrors++
		}
		return
	}

	s.ValidFrames++

	if s.haveLast {
		expected := s.lastCounter + 1 // wraps at 65536
		if frame.Counter != expected {
			s.CounterGaps++
			s.MissedFrames += uint64(frame.Counter - expected)
		}
	}
	s.lastCounter = frame.Counter
	s.haveLast = true

	s.LastUpdateTime = time.Now()
}

// CalculateRates recomputes FrameRate and ErrorRate from the elapsed time.
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		errorCount := s.ChecksumErrors + s.MarkerErrors + s.PixelCountErrors
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary.
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, checksumPercent, markerPercent, sizePercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		checksumPercent = float64(s.ChecksumErrors) * 100.0 / float64(s.TotalFrames)
		markerPercent = float64(s.MarkerErrors) * 100.0 / float64(s.TotalFrames)
		sizePercent = float64(s.PixelCountErrors) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, checksumPercent)
	}
	if s.MarkerErrors > 0 {
		result += fmt.Sprintf("Marker Errors:   %8d (%.1f%%)\n", s.MarkerErrors, markerPercent)
	}
	if s.PixelCountErrors > 0 {
		result += fmt.Sprintf("Count Errors:    %8d (%.1f%%)\n", s.PixelCountErrors, sizePercent)
	}
	if s.CounterGaps > 0 {
		result += fmt.Sprintf("Counter Gaps:    %8d (%d frames missed)\n", s.CounterGaps, s.MissedFrames)
	}
	if s.BytesReceived > 0 {
		result += fmt.Sprintf("Bytes Received:  %8d\n", s.BytesReceived)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters.
func (s *Statistics) Reset() {
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalFrames = 0
	s.ValidFrames = 0
	s.ChecksumErrors = 0
	s.MarkerErrors = 0
	s.PixelCountErrors = 0
	s.CounterGaps = 0
	s.MissedFrames = 0
	s.BytesReceived = 0
	s.FrameRate = 0
	s.ErrorRate = 0
	s.haveLast = false
}
