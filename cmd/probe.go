// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Littrow/czerny/pkg/tcd1304"
	"github.com/spf13/cobra"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid frame on the connection until timeout.

This command connects to a serial port, TCP socket, or WebSocket and waits
for a complete frame that passes checksum validation. Stray bytes are
ignored while hunting for the start marker.

The instrument only streams frames while acquiring; run 'czerny start'
first, or probe a connection known to be live.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runProbe(cmd *cobra.Command, args []string) error {
	// Open connection (serial, TCP, or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Czerny - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	decoder := tcd1304.NewDecoder()
	buf := make([]byte, 256)

	// Channel for frame reception
	frameChan := make(chan *tcd1304.Frame, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		invalidBytes := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					// A complete candidate failed validation
					invalidBytes += tcd1304.FrameSize
					continue
				}
				if frame != nil {
					// Got a valid frame! Reply text and line noise consumed
					// while hunting count as skipped bytes too.
					invalidBytes += len(decoder.TakeText())
					if invalidBytes > 0 {
						fmt.Printf("(skipped %d invalid bytes before sync)\n", invalidBytes)
					}
					frameChan <- frame
					return
				}
			}
		}
	}()

	// Wait for frame or timeout
	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Counter: %d\n", frame.Counter)
		fmt.Printf("  Dark level: %.1f\n", frame.DarkLevel())
		fmt.Printf("  Checksum: 0x%04X\n", frame.Checksum)
		fmt.Printf("  %s\n", tcd1304.FormatFrame(frame))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(probeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", probeTimeout)
		os.Exit(1)
	}

	return nil
}
