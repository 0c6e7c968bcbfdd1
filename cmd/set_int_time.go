// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"fmt"
	"strconv"

	"github.com/Littrow/czerny/pkg/tcd1304"
	"github.com/spf13/cobra"
)

var setIntTimeCmd = &cobra.Command{
	Use:   "set-int-time <microseconds>",
	Short: "Set the integration time",
	Long: `Send SET_INT_TIME and wait for the instrument to acknowledge.

The instrument only accepts a new integration time while idle; stop
acquisition first. Values outside the instrument's bounds are rejected with
the valid range in the reply.

Exit codes:
  0 - Integration time set
  1 - Timeout or command rejected
  2 - Connection error`,
	Args: cobra.ExactArgs(1),
	RunE: runSetIntTime,
}

func init() {
	rootCmd.AddCommand(setIntTimeCmd)
	registerTimeoutFlag(setIntTimeCmd)
}

func runSetIntTime(cmd *cobra.Command, args []string) error {
	us, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid integration time %q: expected microseconds as a positive integer", args[0])
	}

	return runDeviceCommand(
		fmt.Sprintf("Set Integration Time (%dµs)", us),
		tcd1304.SetIntTimeCommand(uint32(us)),
		tcd1304.ReplyIntTimeSet,
	)
}
