// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Littrow/czerny/pkg/tcd1304"
	"github.com/spf13/cobra"
)

var commandTimeout int

// registerTimeoutFlag adds the shared --timeout flag to a control verb. Only
// one verb runs per invocation, so the verbs can share the backing variable.
func registerTimeoutFlag(cmd *cobra.Command) {
	cmd.Flags().IntVar(&commandTimeout, "timeout", 10, "Timeout in seconds to wait for the reply")
}

// lineBuffer accumulates decoder text output and yields complete lines.
// Reply lines can arrive split across reads, so a partial tail is held back
// until its terminator shows up.
type lineBuffer struct {
	pending []byte
}

// Lines appends p and returns all complete lines with CR/LF stripped.
// Blank lines are dropped.
func (lb *lineBuffer) Lines(p []byte) []string {
	lb.pending = append(lb.pending, p...)
	var lines []string
	for {
		nl := bytes.IndexByte(lb.pending, '\n')
		if nl < 0 {
			return lines
		}
		line := strings.TrimRight(string(lb.pending[:nl]), "\r")
		lb.pending = lb.pending[nl+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}
}

// runDeviceCommand opens the connection, sends one command line, and waits
// for the instrument's answer. Frames arriving in-band are decoded and
// discarded; reply lines are parsed and matched against the wanted kinds.
// Any error reply also resolves the wait, since the instrument answers each
// command with exactly one line.
//
// Exit codes:
//
//	0 - Matching reply received
//	1 - Timeout, or the instrument rejected the command
//	2 - Connection error
func runDeviceCommand(title string, command []byte, wanted ...tcd1304.ReplyKind) error {
	// Open connection (serial, TCP, or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Czerny - %s\n", title)
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n\n", commandTimeout)

	// Channel for the resolving reply
	replyChan := make(chan tcd1304.Reply, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		decoder := tcd1304.NewDecoder()
		var lb lineBuffer
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				// Frames and frame decode errors are just in-band traffic
				// here; only the text channel matters.
				decoder.DecodeByte(buf[i])
			}

			for _, line := range lb.Lines(decoder.TakeText()) {
				reply, parseErr := tcd1304.ParseReply(line)
				if parseErr != nil {
					// Garbled or foreign line; keep waiting.
					continue
				}
				if reply.IsError() || matchesKind(reply.Kind, wanted) {
					replyChan <- reply
					return
				}
				// Unrelated reply (banner, stale status); keep waiting.
			}
		}
	}()

	if _, err := conn.Write(command); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(2)
	}

	// Wait for reply or timeout
	select {
	case reply := <-replyChan:
		if reply.IsError() {
			fmt.Fprintf(os.Stderr, "REJECTED: %s\n", tcd1304.FormatReply(reply))
			fmt.Fprintf(os.Stderr, "  Reply: %s\n", reply.Raw)
			os.Exit(1)
		}
		fmt.Printf("SUCCESS: %s\n", tcd1304.FormatReply(reply))
		fmt.Printf("  Reply: %s\n", reply.Raw)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(commandTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No reply received within %d seconds\n", commandTimeout)
		os.Exit(1)
	}

	return nil
}

func matchesKind(kind tcd1304.ReplyKind, wanted []tcd1304.ReplyKind) bool {
	for _, w := range wanted {
		if kind == w {
			return true
		}
	}
	return false
}
