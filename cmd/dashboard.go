// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Littrow/czerny/pkg/tcd1304"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// eventLogEntry is one line in the dashboard's event log
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for informational entries
}

// dashboardModel is the Bubble Tea model for the instrument dashboard
type dashboardModel struct {
	// Connection manager (for sending commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Instrument state mirrored from replies
	stateKnown bool
	devState   tcd1304.AcqState
	intTime    uint32 // 0 until a reply reports it

	// Monitoring
	stats         *tcd1304.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	lastFrame     *tcd1304.Frame
	lastFrameTime time.Time

	// Control
	intInput       textinput.Model
	editingIntTime bool

	// UI state
	width          int
	height         int
	synchronized   bool
	invalidBytes   int
	connectionLost bool
	quitting       bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type dashboardTickMsg time.Time

// dashboardDataMsg carries one decoder event: exactly one of the fields is
// set. Frames and decode errors come from the binary stream, replies and
// stray text from the interleaved ASCII channel.
type dashboardDataMsg struct {
	frame     *tcd1304.Frame
	decodeErr error
	reply     *tcd1304.Reply
	text      string
}

type dashboardSyncMsg struct {
	invalidBytes int
}

type dashboardBatchMsg struct {
	messages []dashboardDataMsg
	syncMsg  *dashboardSyncMsg
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialDashboardModel(connMgr *connectionManager, connInfo string) dashboardModel {
	// Initialize text input for the integration time
	ti := textinput.New()
	ti.Placeholder = "20"
	ti.CharLimit = 8
	ti.Width = 10

	return dashboardModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		stats:         tcd1304.NewStatistics(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		intInput:      ti,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m dashboardModel) Init() tea.Cmd {
	return dashboardTickCmd()
}

func dashboardTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return dashboardTickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case dashboardTickMsg:
		m.stats.CalculateRates()
		return m, dashboardTickCmd()

	case dashboardBatchMsg:
		if msg.syncMsg != nil {
			m.applySync(*msg.syncMsg)
		}
		for _, data := range msg.messages {
			m.applyData(data)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.synchronized = false
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry(fmt.Sprintf("Reconnected: %s", msg.connInfo), false)
	}

	return m, nil
}

func (m dashboardModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Route keys to the integration time input while editing
	if m.editingIntTime {
		switch msg.String() {
		case "enter":
			value := strings.TrimSpace(m.intInput.Value())
			us, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				m.addLogEntry(fmt.Sprintf("Invalid integration time %q", value), true)
			} else {
				m.sendCommand(tcd1304.SetIntTimeCommand(uint32(us)), fmt.Sprintf("SET_INT_TIME:%d", us))
			}
			m.intInput.Blur()
			m.intInput.SetValue("")
			m.editingIntTime = false
			return m, nil

		case "esc":
			m.intInput.Blur()
			m.intInput.SetValue("")
			m.editingIntTime = false
			return m, nil

		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		default:
			var cmd tea.Cmd
			m.intInput, cmd = m.intInput.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "s":
		m.sendCommand(tcd1304.StartCommand(), "START")

	case "x":
		m.sendCommand(tcd1304.StopCommand(), "STOP")

	case "i":
		m.editingIntTime = true
		if m.intTime > 0 {
			m.intInput.Placeholder = strconv.FormatUint(uint64(m.intTime), 10)
		}
		m.intInput.Focus()

	case "r":
		m.stats.Reset()
		m.addLogEntry("Statistics reset", false)
	}

	return m, nil
}

//////////////////////////////////////////////////////////////
// Command Sending
//////////////////////////////////////////////////////////////

// sendCommand writes one command line to the current connection
func (m *dashboardModel) sendCommand(command []byte, label string) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return
	}

	conn := m.connMgr.getConn()
	if conn == nil {
		m.addLogEntry("Cannot send command: not connected", true)
		return
	}

	if _, err := conn.Write(command); err != nil {
		m.addLogEntry(fmt.Sprintf("Write failed: %v", err), true)
		return
	}
	m.addLogEntry(fmt.Sprintf("Sent %s", label), false)
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *dashboardModel) applySync(msg dashboardSyncMsg) {
	m.synchronized = true
	m.invalidBytes = msg.invalidBytes
	if msg.invalidBytes > 0 {
		m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
	} else {
		m.addLogEntry("Synchronized", false)
	}
}

func (m *dashboardModel) applyData(data dashboardDataMsg) {
	switch {
	case data.decodeErr != nil:
		m.stats.Update(nil, data.decodeErr)
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", data.decodeErr), true)

	case data.frame != nil:
		// Frames arrive at readout rate; they update the display but are
		// not logged individually
		m.stats.Update(data.frame, nil)
		m.lastFrame = data.frame
		m.lastFrameTime = time.Now()
		// Frames only flow while acquiring
		m.stateKnown = true
		m.devState = tcd1304.StateRunning

	case data.reply != nil:
		m.applyReply(*data.reply)

	case data.text != "":
		m.addLogEntry(fmt.Sprintf("TEXT: %s", data.text), false)
	}
}

func (m *dashboardModel) applyReply(r tcd1304.Reply) {
	switch r.Kind {
	case tcd1304.ReplyReady:
		// Banner after instrument reset; acquisition always starts idle
		m.stateKnown = true
		m.devState = tcd1304.StateIdle

	case tcd1304.ReplyStarted:
		m.stateKnown = true
		m.devState = tcd1304.StateRunning

	case tcd1304.ReplyStopped:
		m.stateKnown = true
		m.devState = tcd1304.StateIdle

	case tcd1304.ReplyStatus:
		m.stateKnown = true
		m.devState = r.State
		m.intTime = r.IntegrationTime

	case tcd1304.ReplyIntTimeSet:
		m.intTime = r.Value
	}

	if r.IsError() {
		m.addLogEntry(fmt.Sprintf("REJECTED: %s", tcd1304.FormatReply(r)), true)
	} else {
		m.addLogEntry(tcd1304.FormatReply(r), false)
	}
}

func (m *dashboardModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("CZERNY - TCD1304 CONSOLE"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit", connStatus)))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for first frame..."))
		s.WriteString(headerStyle.Render("  (press 's' to start acquisition)"))
		s.WriteString("\n\n")
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
		s.WriteString("\n\n")
	}

	// Instrument and statistics boxes side by side
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(m.renderInstrumentPanel(statsLabelStyle, statsValueStyle, headerStyle)),
		" ",
		boxStyle.Render(m.renderStatsPanel(statsLabelStyle, statsValueStyle, errorStyle)),
	))
	s.WriteString("\n\n")

	// Last frame sparkline
	if m.lastFrame != nil {
		frameContent := strings.Builder{}
		frameContent.WriteString(headerStyle.Render(tcd1304.FormatFrame(m.lastFrame)))
		frameContent.WriteString("\n")
		sparkWidth := m.width - 8
		if sparkWidth < 16 {
			sparkWidth = 16
		}
		frameContent.WriteString(statsValueStyle.Render(sparkline(m.lastFrame.SignalPixels(), sparkWidth)))
		s.WriteString(boxStyle.Render(frameContent.String()))
		s.WriteString("\n\n")
	}

	// Integration time input
	if m.editingIntTime {
		s.WriteString(focusedBoxStyle.Render(fmt.Sprintf("%s %s  %s",
			statsLabelStyle.Render("Integration time (µs):"),
			m.intInput.View(),
			headerStyle.Render("enter=apply esc=cancel"))))
	} else {
		s.WriteString(boxStyle.Render(fmt.Sprintf("%s %s",
			statsLabelStyle.Render("Integration time (µs):"),
			headerStyle.Render("press 'i' to edit"))))
	}
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))
	s.WriteString("\n")

	// Help footer
	s.WriteString(headerStyle.Render("s=start x=stop i=int-time r=reset-stats q=quit"))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m dashboardModel) renderInstrumentPanel(statsLabelStyle, statsValueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder

	stateStr := "UNKNOWN"
	if m.stateKnown {
		stateStr = m.devState.String()
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("State:"), statsValueStyle.Render(stateStr)))

	intTimeStr := "unknown"
	if m.intTime > 0 {
		intTimeStr = fmt.Sprintf("%dµs", m.intTime)
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Int. time:"), statsValueStyle.Render(intTimeStr)))

	if m.lastFrame != nil {
		age := time.Since(m.lastFrameTime).Round(100 * time.Millisecond)
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Last frame:"),
			statsValueStyle.Render(fmt.Sprintf("#%d (%s ago)", m.lastFrame.Counter, age))))
		s.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Dark level:"),
			statsValueStyle.Render(fmt.Sprintf("%.1f", m.lastFrame.DarkLevel()))))
	} else {
		s.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Last frame:"), headerStyle.Render("(none yet)")))
	}

	return s.String()
}

func (m dashboardModel) renderStatsPanel(statsLabelStyle, statsValueStyle, errorStyle lipgloss.Style) string {
	m.stats.CalculateRates()
	totalErrors := m.stats.ChecksumErrors + m.stats.MarkerErrors + m.stats.PixelCountErrors
	var validPercent, errorPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalFrames)
	}

	var s strings.Builder
	s.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
	))

	s.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Errors:"), func() string {
		if totalErrors > 0 {
			return errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent))
		}
		return statsValueStyle.Render("0")
	}()))
	if m.stats.CounterGaps > 0 {
		s.WriteString(fmt.Sprintf("   %s %s",
			statsLabelStyle.Render("Gaps:"),
			errorStyle.Render(fmt.Sprintf("%d (%d missed)", m.stats.CounterGaps, m.stats.MissedFrames))))
	}
	s.WriteString("\n")

	s.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.ErrorRate))
		}(),
	))

	return s.String()
}

func (m dashboardModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	// Calculate how many log entries we can show
	logHeight := m.height - 24 // Reserve space for header, panels, and footer
	if logHeight < 4 {
		logHeight = 4
	}

	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyleLocal.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	return s.String()
}

// sparkChars maps normalized intensity onto eighth-block runes
var sparkChars = []rune(" ▁▂▃▄▅▆▇█")

// sparkline renders pixel values as a fixed-width bar chart. Pixels are
// averaged into one bucket per output column and each bucket is scaled
// against the full ADC range, so a dark field renders as blanks and a
// saturated peak as a full block.
func sparkline(pixels []uint16, width int) string {
	if width <= 0 || len(pixels) == 0 {
		return ""
	}
	if width > len(pixels) {
		width = len(pixels)
	}

	out := make([]rune, width)
	for i := 0; i < width; i++ {
		lo := i * len(pixels) / width
		hi := (i + 1) * len(pixels) / width
		if hi <= lo {
			hi = lo + 1
		}

		var sum uint64
		for _, px := range pixels[lo:hi] {
			sum += uint64(px)
		}
		mean := float64(sum) / float64(hi-lo)

		idx := int(mean * float64(len(sparkChars)-1) / float64(tcd1304.ADCMax))
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		out[i] = sparkChars[idx]
	}
	return string(out)
}
