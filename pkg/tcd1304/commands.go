// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

import "fmt"

// Command builder functions produce wire-ready command lines for the host
// side of the link. Every command is a single newline-terminated ASCII line;
// the instrument answers each with exactly one reply line (see ParseReply).

// StartCommand builds the START command. The instrument begins transmitting
// frames and replies OK:STARTED; issuing it while already running is
// harmless.
func StartCommand() []byte {
	return []byte(CmdStart + "\n")
}

// StopCommand builds the STOP command. Frame transmission stops but the
// sensor's own clocking continues, so integration behavior is undisturbed
// across stop/start cycles. The instrument replies OK:STOPPED.
func StopCommand() []byte {
	return []byte(CmdStop + "\n")
}

// StatusCommand builds the STATUS query. The instrument replies
// STATUS:<IDLE|RUNNING>,INT_TIME:<µs> without changing state.
func StatusCommand() []byte {
	return []byte(CmdStatus + "\n")
}

// SetIntTimeCommand builds SET_INT_TIME:<µs>. The instrument accepts it only
// while idle and only within its configured bounds; see ReplyMustStopFirst,
// ReplyRange, and ReplyInvalidParam for the failure replies.
func SetIntTimeCommand(us uint32) []byte {
	return []byte(fmt.Sprintf("%s%d\n", CmdSetIntTime, us))
}
