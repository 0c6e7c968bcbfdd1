// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import "sync/atomic"

// DeviceOption configures a Device.
type DeviceOption func(*deviceConfig)

type deviceConfig struct {
	timer         Timer
	transportOpts []TransportOption
	engineOpts    []EngineOption
}

// WithTimer supplies the sensor-timing hardware the command engine drives.
func WithTimer(t Timer) DeviceOption {
	return func(c *deviceConfig) { c.timer = t }
}

// WithTransportOptions forwards options to the device's transport.
func WithTransportOptions(opts ...TransportOption) DeviceOption {
	return func(c *deviceConfig) { c.transportOpts = append(c.transportOpts, opts...) }
}

// WithEngineOptions forwards options to the device's command engine.
func WithEngineOptions(opts ...EngineOption) DeviceOption {
	return func(c *deviceConfig) { c.engineOpts = append(c.engineOpts, opts...) }
}

// DeviceStats is a snapshot of session counters. FramesBuilt advances on
// every readout whether or not the frame went out; FramesDropped counts
// frames suppressed because a prior unbuffered send was still in flight or
// the link refused the payload.
type DeviceStats struct {
	FramesBuilt   uint64
	FramesSent    uint64
	FramesDropped uint64
	BuildErrors   uint64
	Transport     TransportStats
}

// Device is one complete instrument session: transport, command engine, and
// frame builder wired together the way the firmware main loop wires them.
// It is instantiable so tests and simulators can run any number of sessions
// side by side.
//
// Producer-context entrypoints: HandleRX, SendComplete, SamplesReady.
// Loop-context entrypoints: Init, Process, and everything they reach.
type Device struct {
	transport *Transport
	engine    *Engine
	builder   *FrameBuilder

	staged atomic.Pointer[[]uint16]

	framesBuilt   atomic.Uint64
	framesSent    atomic.Uint64
	framesDropped atomic.Uint64
	buildErrors   atomic.Uint64

	encodeBuf []byte
}

// NewDevice creates a session over link.
func NewDevice(link Link, opts ...DeviceOption) *Device {
	var cfg deviceConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	transport := NewTransport(link, cfg.transportOpts...)
	return &Device{
		transport: transport,
		engine:    NewEngine(transport, cfg.timer, cfg.engineOpts...),
		builder:   NewFrameBuilder(),
		encodeBuf: make([]byte, 0, FrameSize),
	}
}

// Transport returns the session's transport.
func (d *Device) Transport() *Transport {
	return d.transport
}

// Engine returns the session's command engine.
func (d *Device) Engine() *Engine {
	return d.engine
}

// Builder returns the session's frame builder.
func (d *Device) Builder() *FrameBuilder {
	return d.builder
}

// Init announces readiness on the outbound path. Call once, before the first
// Process.
func (d *Device) Init() {
	d.engine.Announce()
}

// HandleRX ingests bytes from the link. Producer context.
func (d *Device) HandleRX(p []byte) int {
	return d.transport.HandleRX(p)
}

// SendComplete reports that the link finished the in-flight send. Producer
// context.
func (d *Device) SendComplete() {
	d.transport.SendComplete()
}

// SamplesReady stages a completed readout for the next Process call. The
// staging buffer is one frame deep: a second readout arriving before the
// loop services the first simply replaces it. Producer context.
func (d *Device) SamplesReady(samples []uint16) {
	buf := make([]uint16, len(samples))
	copy(buf, samples)
	d.staged.Store(&buf)
}

// Process runs one loop iteration: build and (when acquiring) transmit any
// staged readout, then service inbound commands, then flush buffered output.
func (d *Device) Process() {
	d.serviceSamples()
	d.engine.Process()
	d.transport.Poll()
}

// serviceSamples turns a staged readout into a frame. The counter advances
// on every build; the acquisition gate only decides whether the encoded
// bytes go to the link.
func (d *Device) serviceSamples() {
	samples := d.staged.Swap(nil)
	if samples == nil {
		return
	}

	frame, err := d.builder.Build(*samples)
	if err != nil {
		d.buildErrors.Add(1)
		return
	}
	d.framesBuilt.Add(1)

	if !d.engine.IsAcquiring() {
		return
	}

	// The encode buffer is reused across frames, so never scribble over a
	// payload the link still owns.
	if d.transport.Busy() {
		d.framesDropped.Add(1)
		return
	}
	d.encodeBuf = frame.AppendEncode(d.encodeBuf[:0])
	if !d.transport.SendUnbuffered(d.encodeBuf) {
		d.framesDropped.Add(1)
		return
	}
	d.framesSent.Add(1)
}

// Stats returns a snapshot of session counters.
func (d *Device) Stats() DeviceStats {
	return DeviceStats{
		FramesBuilt:   d.framesBuilt.Load(),
		FramesSent:    d.framesSent.Load(),
		FramesDropped: d.framesDropped.Load(),
		BuildErrors:   d.buildErrors.Load(),
		Transport:     d.transport.Stats(),
	}
}
