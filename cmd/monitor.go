// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Littrow/czerny/pkg/tcd1304"
	"github.com/spf13/cobra"
)

var monitorStatsInterval int

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display live frame summaries and instrument replies",
	Long: `Continuously decode the instrument stream in human-readable form.

Each frame is printed as a one-line summary (counter, signal range, dark
level, checksum), with reply text interleaved as it arrives on the same
channel. Decode errors are highlighted immediately and periodic statistics
summaries are printed at a configurable interval.

Decode errors before the first valid frame are treated as line noise and
only counted; after the first frame they indicate real corruption.

Supports serial, TCP, and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// Open connection (serial, TCP, or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Czerny - Live Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", monitorStatsInterval)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := tcd1304.NewDecoder()
	stats := tcd1304.NewStatistics()
	var lb lineBuffer

	// Sync tracking - ignore decode errors until the first valid frame
	synchronized := false
	invalidBytesBeforeSync := 0

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking connection reads
	connBuf := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if err == ErrConnectionClosed || errors.Is(err, io.EOF) {
					readErr <- err
					return
				}
				// Brief pause before retry on transient errors (e.g., serial)
				log.Printf("Read error: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			connBuf <- data
		}
	}()

	for {
		select {
		case data := <-connBuf:
			stats.AddBytes(len(data))

			// Process bytes
			for _, b := range data {
				frame, decodeErr := decoder.DecodeByte(b)

				// Handle decode errors
				if decodeErr != nil {
					if synchronized {
						// We're synced, this is a real error
						stats.Update(nil, decodeErr)
						fmt.Printf("[%s] DECODE ERROR: %v\n", time.Now().Format("15:04:05.000"), decodeErr)
					} else {
						// Not synced yet, just count the failed candidate
						invalidBytesBeforeSync += tcd1304.FrameSize
					}
				} else if frame != nil {
					// Successfully decoded a frame
					if !synchronized {
						// First frame! We're now synchronized
						synchronized = true
						if invalidBytesBeforeSync > 0 {
							fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", invalidBytesBeforeSync)
						} else {
							fmt.Printf("[SYNC] Synchronized\n\n")
						}
					}

					stats.Update(frame, nil)
					fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), tcd1304.FormatFrame(frame))
				}
			}

			// Reply lines ride the same stream as frames
			for _, line := range lb.Lines(decoder.TakeText()) {
				reply, parseErr := tcd1304.ParseReply(line)
				if parseErr != nil {
					fmt.Printf("[%s] TEXT: %s\n", time.Now().Format("15:04:05.000"), line)
					continue
				}
				fmt.Printf("[%s] REPLY: %s (%s)\n", time.Now().Format("15:04:05.000"), tcd1304.FormatReply(reply), reply.Raw)
			}

		case err := <-readErr:
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if err == ErrConnectionClosed || errors.Is(err, io.EOF) {
				log.Printf("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %v", err)

		case <-statsTicker.C:
			// Print statistics
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
