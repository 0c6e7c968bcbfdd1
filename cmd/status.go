// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"github.com/Littrow/czerny/pkg/tcd1304"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query acquisition state and integration time",
	Long: `Send STATUS and print the instrument's current state.

The reply carries the acquisition state (IDLE or RUNNING) and the configured
integration time in microseconds. STATUS never changes instrument state, so
it is safe to issue at any time.

Exit codes:
  0 - Status received
  1 - Timeout or command rejected
  2 - Connection error`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	registerTimeoutFlag(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return runDeviceCommand("Status Query", tcd1304.StatusCommand(), tcd1304.ReplyStatus)
}
