// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"github.com/Littrow/czerny/pkg/tcd1304"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop frame acquisition",
	Long: `Send STOP and wait for the instrument to acknowledge.

Frame transmission stops but the sensor keeps clocking, so integration
behavior is undisturbed across stop/start cycles. Issuing STOP while already
idle is harmless and acknowledged the same way.

Exit codes:
  0 - Acquisition stopped
  1 - Timeout or command rejected
  2 - Connection error`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
	registerTimeoutFlag(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	return runDeviceCommand("Stop Acquisition", tcd1304.StopCommand(), tcd1304.ReplyStopped)
}
