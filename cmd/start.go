// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"github.com/Littrow/czerny/pkg/tcd1304"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start frame acquisition",
	Long: `Send START and wait for the instrument to acknowledge.

The instrument begins streaming frames immediately after OK:STARTED. Issuing
START while already running is harmless and acknowledged the same way.

Exit codes:
  0 - Acquisition started
  1 - Timeout or command rejected
  2 - Connection error`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	registerTimeoutFlag(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	return runDeviceCommand("Start Acquisition", tcd1304.StartCommand(), tcd1304.ReplyStarted)
}
