// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Littrow/czerny/pkg/tcd1304"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive dashboard for a TCD1304 instrument",
	Long: `Monitor and control an instrument via an interactive terminal UI.

Features:
  - Acquisition state and integration time at a glance
  - Live statistics (frame rate, decode errors, counter gaps)
  - Pixel sparkline of the last frame
  - Event log of replies and decode errors
  - Automatic reconnection on connection loss

Keys:
  s  start acquisition       i  edit integration time
  x  stop acquisition        r  reset statistics
  q  quit

Supports serial, TCP, and WebSocket connections.`,
	RunE: runTui,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
	stopRead chan struct{}
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

func runTui(cmd *cobra.Command, args []string) error {
	// Open initial connection (serial, TCP, or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	// Create connection manager
	cm := &connectionManager{
		conn:     conn,
		connInfo: connInfo,
		done:     make(chan struct{}),
		stopRead: make(chan struct{}),
	}

	// Create TUI model with connection manager
	m := initialDashboardModel(cm, connInfo)

	// Create TUI program with alt screen
	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.p = p

	// Start reader goroutines
	go cm.readerLoop()

	// Prime the dashboard with the instrument's current state
	sendStatusRequest(cm.getConn())

	// Run TUI
	if _, err := p.Run(); err != nil {
		close(cm.done) // Signal goroutines to stop
		cm.getConn().Close()
		return fmt.Errorf("TUI error: %v", err)
	}

	close(cm.done) // Signal goroutines to stop
	cm.getConn().Close()
	return nil
}

// readerLoop handles reading from connection with automatic reconnection
func (cm *connectionManager) readerLoop() {
	for {
		select {
		case <-cm.done:
			return
		default:
		}

		// Start reading from current connection
		connLost := cm.readFromConnection()

		if connLost {
			// Notify TUI about connection loss
			cm.p.Send(connectionLostMsg{})

			// Attempt to reconnect
			if !cm.reconnect() {
				return // Shutdown requested during reconnect
			}
		}
	}
}

// readFromConnection decodes the stream until the connection fails.
// Returns true if connection was lost, false if shutdown requested
func (cm *connectionManager) readFromConnection() bool {
	decoder := tcd1304.NewDecoder()
	var lb lineBuffer
	synchronized := false
	invalidBytesBeforeSync := 0

	// Buffered channel for batching updates
	batchChan := make(chan dashboardDataMsg, 100)
	syncChan := make(chan dashboardSyncMsg, 1)
	readerDone := make(chan struct{})

	// enqueue drops on a full channel; the dashboard prefers staying
	// responsive over seeing every frame
	enqueue := func(msg dashboardDataMsg) {
		select {
		case batchChan <- msg:
		default:
		}
	}

	// Reader goroutine - decodes the stream and sends to batch channel
	go func() {
		defer close(readerDone)
		buf := make([]byte, 256)
		for {
			select {
			case <-cm.done:
				return
			case <-cm.stopRead:
				return
			default:
			}

			conn := cm.getConn()
			if conn == nil {
				return
			}

			n, err := conn.Read(buf)
			if err != nil {
				// Check if we're shutting down
				select {
				case <-cm.done:
					return
				default:
					// A closed WebSocket or a TCP EOF means the connection
					// is permanently gone
					if err == ErrConnectionClosed || errors.Is(err, io.EOF) {
						return
					}
					// Brief pause before retry on transient errors (e.g., serial)
					time.Sleep(10 * time.Millisecond)
					continue
				}
			}

			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])

				if decodeErr != nil {
					if synchronized {
						enqueue(dashboardDataMsg{decodeErr: decodeErr})
					} else {
						invalidBytesBeforeSync += tcd1304.FrameSize
					}
				} else if frame != nil {
					if !synchronized {
						synchronized = true
						select {
						case syncChan <- dashboardSyncMsg{invalidBytes: invalidBytesBeforeSync}:
						default:
						}
					}
					enqueue(dashboardDataMsg{frame: frame})
				}
			}

			// Reply lines ride the same stream as frames
			for _, line := range lb.Lines(decoder.TakeText()) {
				reply, parseErr := tcd1304.ParseReply(line)
				if parseErr != nil {
					if synchronized {
						enqueue(dashboardDataMsg{text: line})
					} else {
						// Line noise while hunting for the first frame
						invalidBytesBeforeSync += len(line) + 1
					}
					continue
				}
				r := reply
				enqueue(dashboardDataMsg{reply: &r})
			}
		}
	}()

	// Batch sender goroutine - sends batched updates to TUI at fixed rate
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-cm.done:
				return
			case <-readerDone:
				return
			case <-ticker.C:
				var batch dashboardBatchMsg

				// Check for sync message
				select {
				case sync := <-syncChan:
					batch.syncMsg = &sync
				default:
				}

				// Drain all available messages from batch channel
			drainLoop:
				for {
					select {
					case msg := <-batchChan:
						batch.messages = append(batch.messages, msg)
					default:
						break drainLoop
					}
				}

				// Send batch if we have anything
				if batch.syncMsg != nil || len(batch.messages) > 0 {
					cm.p.Send(batch)
				}
			}
		}
	}()

	// Wait for reader to finish (connection lost or shutdown)
	<-readerDone

	// Check if we're shutting down
	select {
	case <-cm.done:
		return false
	default:
		return true // Connection lost
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	// Close old connection
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		// Attempt to reconnect
		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)

			// Notify TUI about reconnection
			cm.p.Send(reconnectedMsg{connInfo: connInfo})

			// Re-learn the instrument's state
			sendStatusRequest(conn)

			return true
		}

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// sendStatusRequest asks the instrument for its state; the reply flows back
// through the normal read path
func sendStatusRequest(conn Connection) {
	if conn == nil {
		return
	}
	conn.Write(tcd1304.StatusCommand())
}
