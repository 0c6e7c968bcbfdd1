// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import (
	"fmt"
	"strconv"
	"strings"
)

// Timer is the sensor-timing hardware the engine reconfigures on
// SET_INT_TIME. The engine always drives it as one uninterrupted
// stop/program/restart sequence so the sensor never sees a half-programmed
// period.
type Timer interface {
	// Stop halts pulse generation.
	Stop()
	// Program loads a new integration period and shutter pulse width, both
	// in microseconds, and rewinds any running counter.
	Program(periodMicros, pulseMicros uint32)
	// Restart resumes pulse generation with the programmed values.
	Restart()
}

// NopTimer is a Timer that does nothing, for sessions whose timing hardware
// is driven elsewhere and for tests.
type NopTimer struct{}

// Stop implements Timer.
func (NopTimer) Stop() {}

// Program implements Timer.
func (NopTimer) Program(periodMicros, pulseMicros uint32) {}

// Restart implements Timer.
func (NopTimer) Restart() {}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithIntegrationBounds overrides the accepted SET_INT_TIME range. Both
// bounds are inclusive, in microseconds.
func WithIntegrationBounds(min, max uint32) EngineOption {
	return func(e *Engine) {
		e.minIntTime = min
		e.maxIntTime = max
	}
}

// WithIntegrationTime overrides the initial integration time.
func WithIntegrationTime(us uint32) EngineOption {
	return func(e *Engine) { e.intTime = us }
}

// Engine is the ASCII command state machine. It owns the acquisition gate
// and the stored integration time; nothing else may mutate them. Commands
// arrive through the transport's inbound ring, one per newline-terminated
// line, and every command produces exactly one terminated reply on the
// buffered outbound path.
//
// All methods other than construction belong to the loop context.
type Engine struct {
	transport *Transport
	timer     Timer

	state      AcqState
	intTime    uint32
	minIntTime uint32
	maxIntTime uint32

	lineBuf    [CommandBufferSize]byte
	lineLen    int
	discarding bool
}

// NewEngine creates an engine over t. A nil timer is replaced by NopTimer.
func NewEngine(t *Transport, timer Timer, opts ...EngineOption) *Engine {
	if timer == nil {
		timer = NopTimer{}
	}
	e := &Engine{
		transport:  t,
		timer:      timer,
		state:      StateIdle,
		intTime:    DefaultIntegrationTime,
		minIntTime: DefaultMinIntegrationTime,
		maxIntTime: DefaultMaxIntegrationTime,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Announce emits the unsolicited ready banner. Call it once when the device
// session comes up.
func (e *Engine) Announce() {
	e.reply(ReadyBanner)
}

// State returns the current acquisition state.
func (e *Engine) State() AcqState {
	return e.state
}

// IsAcquiring reports whether built frames should be transmitted.
func (e *Engine) IsAcquiring() bool {
	return e.state == StateRunning
}

// IntegrationTime returns the stored integration time in microseconds.
func (e *Engine) IntegrationTime() uint32 {
	return e.intTime
}

// IntegrationBounds returns the inclusive accepted range for SET_INT_TIME.
func (e *Engine) IntegrationBounds() (min, max uint32) {
	return e.minIntTime, e.maxIntTime
}

// Process drains every inbound byte currently available, accumulating a
// bounded command line. Dispatch happens only on a terminator and only when
// at least one character has accumulated; blank lines are ignored. A line
// that would overflow the accumulator is answered with ERROR:CMD_TOO_LONG
// once and discarded whole, its remaining bytes swallowed up to the next
// terminator so the tail can never dispatch as a command of its own.
func (e *Engine) Process() {
	for e.transport.Available() > 0 {
		b, ok := e.transport.ReadByte()
		if !ok {
			break
		}

		if b == '\n' || b == '\r' {
			if e.discarding {
				e.discarding = false
				continue
			}
			if e.lineLen > 0 {
				line := string(e.lineBuf[:e.lineLen])
				e.lineLen = 0
				e.dispatch(line)
			}
			continue
		}

		if e.discarding {
			continue
		}

		if e.lineLen < CommandBufferSize-1 {
			e.lineBuf[e.lineLen] = b
			e.lineLen++
			continue
		}

		e.lineLen = 0
		e.discarding = true
		e.reply("ERROR:CMD_TOO_LONG")
	}
}

// dispatch matches one accumulated line. Matching is exact and
// case-sensitive after trailing spaces and carriage returns are trimmed.
func (e *Engine) dispatch(line string) {
	cmd := strings.TrimRight(line, " \r")

	switch {
	case cmd == CmdStart:
		e.state = StateRunning
		e.reply("OK:STARTED")

	case cmd == CmdStop:
		e.state = StateIdle
		e.reply("OK:STOPPED")

	case cmd == CmdStatus:
		e.reply(fmt.Sprintf("STATUS:%s,INT_TIME:%d", e.state, e.intTime))

	case strings.HasPrefix(cmd, CmdSetIntTime):
		e.handleSetIntTime(cmd[len(CmdSetIntTime):])

	default:
		e.reply("ERROR:UNKNOWN_CMD:" + cmd)
	}
}

func (e *Engine) handleSetIntTime(arg string) {
	if e.state == StateRunning {
		e.reply("ERROR:MUST_STOP_FIRST")
		return
	}

	us, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		e.reply("ERROR:INVALID_PARAM")
		return
	}

	if err := e.SetIntegrationTime(uint32(us)); err != nil {
		e.reply(fmt.Sprintf("ERROR:RANGE_%d-%d", e.minIntTime, e.maxIntTime))
		return
	}
	e.reply(fmt.Sprintf("OK:INT_TIME_SET:%d", us))
}

// SetIntegrationTime validates us against the configured bounds and, when
// accepted, reprograms the timing hardware atomically (stop, program,
// restart) before storing the new value. It returns ErrBusy while acquiring
// and ErrInvalidParam when out of range; in both cases nothing changes.
func (e *Engine) SetIntegrationTime(us uint32) error {
	if e.state == StateRunning {
		return fmt.Errorf("%w: stop acquisition before SET_INT_TIME", ErrBusy)
	}
	if us < e.minIntTime || us > e.maxIntTime {
		return fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidParam, us, e.minIntTime, e.maxIntTime)
	}

	e.timer.Stop()
	e.timer.Program(us, shPulseMicros)
	e.timer.Restart()

	e.intTime = us
	return nil
}

func (e *Engine) reply(s string) {
	e.transport.WriteString(s + "\n")
}
