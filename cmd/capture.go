// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Littrow/czerny/pkg/capture"
	"github.com/Littrow/czerny/pkg/tcd1304"
	"github.com/spf13/cobra"
)

var (
	captureCount    int
	captureDuration time.Duration
)

var captureCmd = &cobra.Command{
	Use:   "capture <file>",
	Short: "Record frames to a capture file",
	Long: `Start acquisition and record every valid frame to a CBOR capture file.

The capture stops when --count frames have been recorded, when --duration
has elapsed, or on Ctrl+C, whichever comes first. With no limit the capture
runs until interrupted. A best-effort STOP is sent on the way out.

Each record carries the frame counter, pixel data, and a receive timestamp,
so counter gaps and timing survive into offline analysis. Use 'czerny
replay' to inspect a capture.`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().IntVar(&captureCount, "count", 0, "Stop after this many frames (0 = no limit)")
	captureCmd.Flags().DurationVar(&captureDuration, "duration", 0, "Stop after this long, e.g. 30s or 5m (0 = no limit)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	outPath := args[0]

	// Open connection (serial, TCP, or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", outPath, err)
	}
	defer f.Close()

	writer, err := capture.NewWriter(f, connInfo)
	if err != nil {
		return fmt.Errorf("failed to write capture header: %v", err)
	}

	fmt.Printf("Czerny - Capture\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Output: %s\n", outPath)
	switch {
	case captureCount > 0 && captureDuration > 0:
		fmt.Printf("Limit: %d frames or %v\n", captureCount, captureDuration)
	case captureCount > 0:
		fmt.Printf("Limit: %d frames\n", captureCount)
	case captureDuration > 0:
		fmt.Printf("Limit: %v\n", captureDuration)
	default:
		fmt.Printf("Limit: until interrupted (Ctrl+C)\n")
	}
	fmt.Println()

	// Start acquisition; an already-running instrument acknowledges the same
	// way, so this is safe regardless of current state
	if _, err := conn.Write(tcd1304.StartCommand()); err != nil {
		return fmt.Errorf("failed to send START: %v", err)
	}

	decoder := tcd1304.NewDecoder()
	stats := tcd1304.NewStatistics()

	// Channel for non-blocking connection reads
	connBuf := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				readErr <- err
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			connBuf <- data
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	var timeLimit <-chan time.Time
	if captureDuration > 0 {
		timer := time.NewTimer(captureDuration)
		defer timer.Stop()
		timeLimit = timer.C
	}

	start := time.Now()
	reason := ""

capLoop:
	for {
		select {
		case data := <-connBuf:
			stats.AddBytes(len(data))
			for _, b := range data {
				frame, decodeErr := decoder.DecodeByte(b)
				if decodeErr != nil {
					stats.Update(nil, decodeErr)
					continue
				}
				if frame == nil {
					continue
				}
				stats.Update(frame, nil)
				if err := writer.WriteFrame(frame, ""); err != nil {
					return fmt.Errorf("failed to write record: %v", err)
				}
				if captureCount > 0 && writer.Count() >= captureCount {
					reason = "frame limit reached"
					break capLoop
				}
			}

		case <-heartbeat.C:
			fmt.Printf("[%s] Captured %d frames\n", time.Now().Format("15:04:05.000"), writer.Count())

		case <-timeLimit:
			reason = "duration reached"
			break capLoop

		case <-sigChan:
			reason = "interrupted"
			break capLoop

		case err := <-readErr:
			return fmt.Errorf("read error: %v", err)
		}
	}

	// Best effort; the file is already complete without the acknowledgement
	conn.Write(tcd1304.StopCommand())

	fmt.Printf("\n--- Capture Results ---\n")
	fmt.Printf("Stopped: %s\n", reason)
	fmt.Printf("Frames captured: %d\n", writer.Count())
	fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Output: %s\n\n", outPath)
	fmt.Print(stats.String())

	return nil
}
