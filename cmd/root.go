// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// TCP connection flag
	tcpAddr string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "czerny",
	Short: "TCD1304 Spectrometer Console",
	Long: `Czerny - A CLI tool for controlling and monitoring TCD1304 linear CCD instruments.

Provides commands for acquisition control, live frame monitoring, capture and
replay of spectra, and a software device simulator for bench-free development.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  TCP:       --tcp 192.168.7.2:7402
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the CZERNY_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "0.3.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// TCP connection flag
	rootCmd.PersistentFlags().StringVarP(&tcpAddr, "tcp", "t", "", "TCP address (host:port, e.g. a running simulator)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
