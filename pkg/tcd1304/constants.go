// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

// Package tcd1304 implements the wire protocol and device-side communications
// core for Littrow's TCD1304 linear-CCD instruments.
//
// The protocol is asymmetric: the instrument streams fixed-size binary pixel
// frames (FRME ... ENDF, CRC-16-CCITT) and accepts newline-terminated ASCII
// commands (START, STOP, STATUS, SET_INT_TIME). This package provides the
// frame codec, a garbage-tolerant stream decoder for hosts, the SPSC byte
// channels and transport used on the device side, and the command engine that
// owns acquisition state.
package tcd1304

// Frame markers
const (
	StartMarker = "FRME"
	EndMarker   = "ENDF"
)

// Frame geometry. A frame is a closed, non-extensible record:
// markers + counter + pixel count + 3694 little-endian pixel words + CRC.
const (
	PixelCount      = 3694
	FrameHeaderSize = 8 // start marker (4) + frame counter (2) + pixel count (2)
	FramePixelSize  = PixelCount * 2
	FrameFooterSize = 6 // end marker (4) + checksum (2)
	FrameSize       = FrameHeaderSize + FramePixelSize + FrameFooterSize // 7402
)

// Pixel map. The TCD1304 shields both ends of the array; shielded elements
// read out as a dark reference.
const (
	DummyFrontStart = 0    // D0-D31
	DummyFrontEnd   = 31   //
	SignalStart     = 32   // S1-S3648
	SignalEnd       = 3679 //
	DummyRearStart  = 3680 // D32-D45
	DummyRearEnd    = 3693 //
)

// ADCMax is the largest value the 12-bit converter can produce. Pixel words
// are right-aligned in their 16-bit field.
const ADCMax = 0x0FFF

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Transport sizing. Inbound carries short ASCII commands; outbound carries
// short ASCII replies. Frames never pass through the outbound ring.
const (
	DefaultInboundSize  = 256
	DefaultOutboundSize = 512
	DefaultFlushChunk   = 64
)

// CommandBufferSize bounds a single inbound command line, terminator
// excluded. Longer lines are discarded whole.
const CommandBufferSize = 64

// Integration time limits in microseconds. The range is deliberately wide;
// instruments with slower timing hardware narrow it via WithIntegrationBounds.
const (
	DefaultMinIntegrationTime = 10
	DefaultMaxIntegrationTime = 10000000
	DefaultIntegrationTime    = 20
)

// shPulseMicros is the electronic-shutter (SH) gate width programmed alongside
// every integration period.
const shPulseMicros = 2

// ReadyBanner is emitted unsolicited once the command engine initializes.
const ReadyBanner = "TCD1304_READY"

// Command verbs
const (
	CmdStart      = "START"
	CmdStop       = "STOP"
	CmdStatus     = "STATUS"
	CmdSetIntTime = "SET_INT_TIME:"
)

// Decoder states (internal)
const (
	stateHunt = iota
	stateCollect
)

// AcqState represents the acquisition gate owned by the command engine.
type AcqState int

// Acquisition states
const (
	StateIdle AcqState = iota
	StateRunning
)

// String returns the state name as it appears in STATUS replies.
func (s AcqState) String() string {
	if s == StateRunning {
		return "RUNNING"
	}
	return "IDLE"
}
