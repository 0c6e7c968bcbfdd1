// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import (
	"fmt"
	"strconv"
	"strings"
)

// ReplyKind identifies one of the instrument's reply lines.
type ReplyKind int

// Reply kinds
const (
	ReplyReady ReplyKind = iota
	ReplyStarted
	ReplyStopped
	ReplyStatus
	ReplyIntTimeSet
	ReplyMustStopFirst
	ReplyRange
	ReplyInvalidParam
	ReplyCmdTooLong
	ReplyUnknownCmd
)

// String returns the kind's name.
func (k ReplyKind) String() string {
	switch k {
	case ReplyReady:
		return "READY"
	case ReplyStarted:
		return "STARTED"
	case ReplyStopped:
		return "STOPPED"
	case ReplyStatus:
		return "STATUS"
	case ReplyIntTimeSet:
		return "INT_TIME_SET"
	case ReplyMustStopFirst:
		return "MUST_STOP_FIRST"
	case ReplyRange:
		return "RANGE"
	case ReplyInvalidParam:
		return "INVALID_PARAM"
	case ReplyCmdTooLong:
		return "CMD_TOO_LONG"
	case ReplyUnknownCmd:
		return "UNKNOWN_CMD"
	default:
		return "UNRECOGNIZED"
	}
}

// Reply is one parsed instrument reply line. Fields beyond Kind are filled
// per kind: State and IntegrationTime for STATUS, Value for INT_TIME_SET,
// Min/Max for RANGE, Text for UNKNOWN_CMD (the echoed command). Raw always
// holds the original line.
type Reply struct {
	Kind            ReplyKind
	State           AcqState
	IntegrationTime uint32
	Value           uint32
	Min             uint32
	Max             uint32
	Text            string
	Raw             string
}

// IsError reports whether the reply signals a rejected or failed command.
func (r Reply) IsError() bool {
	switch r.Kind {
	case ReplyMustStopFirst, ReplyRange, ReplyInvalidParam, ReplyCmdTooLong, ReplyUnknownCmd:
		return true
	}
	return false
}

// ParseReply parses one reply line (terminator already stripped; a stray
// trailing CR is tolerated). Lines outside the reply grammar return an error.
func ParseReply(line string) (Reply, error) {
	raw := strings.TrimRight(line, "\r\n")
	r := Reply{Raw: raw}

	switch {
	case raw == ReadyBanner:
		r.Kind = ReplyReady

	case raw == "OK:STARTED":
		r.Kind = ReplyStarted

	case raw == "OK:STOPPED":
		r.Kind = ReplyStopped

	case strings.HasPrefix(raw, "STATUS:"):
		rest := raw[len("STATUS:"):]
		stateStr, timeStr, ok := strings.Cut(rest, ",INT_TIME:")
		if !ok {
			return r, fmt.Errorf("malformed STATUS reply: %q", raw)
		}
		switch stateStr {
		case "IDLE":
			r.State = StateIdle
		case "RUNNING":
			r.State = StateRunning
		default:
			return r, fmt.Errorf("unknown state %q in STATUS reply", stateStr)
		}
		us, err := strconv.ParseUint(timeStr, 10, 32)
		if err != nil {
			return r, fmt.Errorf("bad INT_TIME in STATUS reply %q: %w", raw, err)
		}
		r.Kind = ReplyStatus
		r.IntegrationTime = uint32(us)

	case strings.HasPrefix(raw, "OK:INT_TIME_SET:"):
		us, err := strconv.ParseUint(raw[len("OK:INT_TIME_SET:"):], 10, 32)
		if err != nil {
			return r, fmt.Errorf("bad value in INT_TIME_SET reply %q: %w", raw, err)
		}
		r.Kind = ReplyIntTimeSet
		r.Value = uint32(us)

	case raw == "ERROR:MUST_STOP_FIRST":
		r.Kind = ReplyMustStopFirst

	case strings.HasPrefix(raw, "ERROR:RANGE_"):
		minStr, maxStr, ok := strings.Cut(raw[len("ERROR:RANGE_"):], "-")
		if !ok {
			return r, fmt.Errorf("malformed RANGE reply: %q", raw)
		}
		min, err := strconv.ParseUint(minStr, 10, 32)
		if err != nil {
			return r, fmt.Errorf("bad lower bound in RANGE reply %q: %w", raw, err)
		}
		max, err := strconv.ParseUint(maxStr, 10, 32)
		if err != nil {
			return r, fmt.Errorf("bad upper bound in RANGE reply %q: %w", raw, err)
		}
		r.Kind = ReplyRange
		r.Min = uint32(min)
		r.Max = uint32(max)

	case raw == "ERROR:INVALID_PARAM":
		r.Kind = ReplyInvalidParam

	case raw == "ERROR:CMD_TOO_LONG":
		r.Kind = ReplyCmdTooLong

	case strings.HasPrefix(raw, "ERROR:UNKNOWN_CMD:"):
		r.Kind = ReplyUnknownCmd
		r.Text = raw[len("ERROR:UNKNOWN_CMD:"):]

	default:
		return r, fmt.Errorf("unrecognized reply: %q", raw)
	}

	return r, nil
}
