// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package simulator

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Littrow/czerny/pkg/tcd1304"
)

// ============================================================
// Test Harness
// ============================================================

func testConfig() *Config {
	cfg := defaultConfig()
	cfg.Frame.Noise = 0
	return cfg
}

// simClient drives a simulated device from the host side of the wire,
// running every received byte through the stream decoder.
type simClient struct {
	t      *testing.T
	conn   net.Conn
	dec    *tcd1304.Decoder
	text   bytes.Buffer
	lines  []string
	frames []*tcd1304.Frame
	errs   []error
}

func startSession(t *testing.T, cfg *Config) *simClient {
	t.Helper()

	srv := NewServer(cfg)
	client, device := net.Pipe()

	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		srv.ServeConn(device)
	}()

	t.Cleanup(func() {
		client.Close()
		srv.Close()
		select {
		case <-sessionDone:
		case <-time.After(2 * time.Second):
			t.Error("session did not end after connection close")
		}
	})

	return &simClient{t: t, conn: client, dec: tcd1304.NewDecoder()}
}

func (c *simClient) send(cmd []byte) {
	c.t.Helper()
	if _, err := c.conn.Write(cmd); err != nil {
		c.t.Fatalf("write command: %v", err)
	}
}

// readMore pulls one read's worth of bytes through the decoder, sorting
// the results into line, frame, and error queues.
func (c *simClient) readMore() {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 4096)
	n, err := c.conn.Read(buf)

	for _, b := range buf[:n] {
		f, derr := c.dec.DecodeByte(b)
		if derr != nil {
			c.errs = append(c.errs, derr)
		}
		if f != nil {
			c.frames = append(c.frames, f)
		}
	}
	if text := c.dec.TakeText(); len(text) > 0 {
		c.text.Write(text)
	}
	for {
		s := c.text.String()
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			break
		}
		c.lines = append(c.lines, strings.TrimRight(s[:i], "\r"))
		c.text.Next(i + 1)
	}

	if err != nil && !isTimeoutErr(err) {
		c.t.Fatalf("read: %v", err)
	}
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// awaitLine reads until the wanted reply line arrives. Frames decoded
// along the way stay queued for later assertions.
func (c *simClient) awaitLine(want string) {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		for len(c.lines) > 0 {
			line := c.lines[0]
			c.lines = c.lines[1:]
			if line == want {
				return
			}
		}
		if time.Now().After(deadline) {
			c.t.Fatalf("timed out waiting for line %q", want)
		}
		c.readMore()
	}
}

func (c *simClient) awaitFrame() *tcd1304.Frame {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if len(c.frames) > 0 {
			f := c.frames[0]
			c.frames = c.frames[1:]
			return f
		}
		if time.Now().After(deadline) {
			c.t.Fatal("timed out waiting for a frame")
		}
		c.readMore()
	}
}

func (c *simClient) awaitDecodeError() error {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if len(c.errs) > 0 {
			err := c.errs[0]
			c.errs = c.errs[1:]
			return err
		}
		if time.Now().After(deadline) {
			c.t.Fatal("timed out waiting for a decode error")
		}
		c.readMore()
	}
}

// ============================================================
// Session Behavior
// ============================================================

func TestServeConn_Banner(t *testing.T) {
	c := startSession(t, testConfig())
	c.awaitLine(tcd1304.ReadyBanner)
}

func TestServeConn_StartStreamsValidFrames(t *testing.T) {
	c := startSession(t, testConfig())
	c.awaitLine(tcd1304.ReadyBanner)

	c.send(tcd1304.StartCommand())
	c.awaitLine("OK:STARTED")

	f0 := c.awaitFrame()
	// Default field: baseline 64 with a 2600-count line at pixel 1200.
	if f0.Pixels[1200] != 2664 {
		t.Errorf("expected peak pixel at 2664 counts, got %d", f0.Pixels[1200])
	}
	if dark := f0.DarkLevel(); dark != 64 {
		t.Errorf("expected dark level 64, got %.1f", dark)
	}

	f1 := c.awaitFrame()
	if f1.Counter != f0.Counter+1 {
		t.Errorf("expected consecutive counters while streaming, got %d after %d",
			f1.Counter, f0.Counter)
	}

	c.send(tcd1304.StopCommand())
	c.awaitLine("OK:STOPPED")
}

func TestServeConn_StatusAndSetIntTime(t *testing.T) {
	c := startSession(t, testConfig())
	c.awaitLine(tcd1304.ReadyBanner)

	c.send(tcd1304.StatusCommand())
	c.awaitLine("STATUS:IDLE,INT_TIME:20")

	c.send(tcd1304.SetIntTimeCommand(5000))
	c.awaitLine("OK:INT_TIME_SET:5000")

	c.send(tcd1304.StatusCommand())
	c.awaitLine("STATUS:IDLE,INT_TIME:5000")

	c.send(tcd1304.StartCommand())
	c.awaitLine("OK:STARTED")

	c.send(tcd1304.SetIntTimeCommand(100))
	c.awaitLine("ERROR:MUST_STOP_FIRST")

	c.send(tcd1304.StopCommand())
	c.awaitLine("OK:STOPPED")
}

func TestServeConn_RangeReply(t *testing.T) {
	c := startSession(t, testConfig())
	c.awaitLine(tcd1304.ReadyBanner)

	c.send(tcd1304.SetIntTimeCommand(5))
	c.awaitLine("ERROR:RANGE_10-10000000")
}

// ============================================================
// Fault Injection
// ============================================================

func TestServeConn_CorruptCRCFault(t *testing.T) {
	cfg := testConfig()
	cfg.Faults.CorruptCRCEveryN = 2

	c := startSession(t, cfg)
	c.awaitLine(tcd1304.ReadyBanner)
	c.send(tcd1304.StartCommand())
	c.awaitLine("OK:STARTED")

	f0 := c.awaitFrame()

	err := c.awaitDecodeError()
	if !errors.Is(err, tcd1304.ErrChecksum) {
		t.Errorf("expected checksum failure from corrupted frame, got %v", err)
	}

	// The stream recovers on the frame after the corrupted one.
	f2 := c.awaitFrame()
	if f2.Counter != f0.Counter+2 {
		t.Errorf("expected counter %d after the corrupted frame, got %d",
			f0.Counter+2, f2.Counter)
	}
}

func TestServeConn_DropFault(t *testing.T) {
	cfg := testConfig()
	cfg.Faults.DropEveryN = 2

	c := startSession(t, cfg)
	c.awaitLine(tcd1304.ReadyBanner)
	c.send(tcd1304.StartCommand())
	c.awaitLine("OK:STARTED")

	// Every second frame is swallowed, so the counter shows the gaps.
	f0 := c.awaitFrame()
	for i, off := range []uint16{2, 4} {
		f := c.awaitFrame()
		if f.Counter != f0.Counter+off {
			t.Errorf("frame %d: expected counter %d, got %d", i+1, f0.Counter+off, f.Counter)
		}
	}
}

func TestServeConn_CounterAdvancesWhileIdle(t *testing.T) {
	c := startSession(t, testConfig())
	c.awaitLine(tcd1304.ReadyBanner)

	c.send(tcd1304.StartCommand())
	c.awaitLine("OK:STARTED")
	last := c.awaitFrame().Counter

	c.send(tcd1304.StopCommand())
	c.awaitLine("OK:STOPPED")

	// Drain whatever was already in flight when the stop landed. The
	// timed-out reads double as the idle span: the sensor keeps clocking
	// readouts the whole time, none of them transmitted.
	idleUntil := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(idleUntil) {
		c.readMore()
		for len(c.frames) > 0 {
			last = c.frames[0].Counter
			c.frames = c.frames[1:]
		}
	}

	c.send(tcd1304.StartCommand())
	c.awaitLine("OK:STARTED")

	f := c.awaitFrame()
	if f.Counter == last+1 {
		t.Errorf("no counter gap across the idle span: counter went %d -> %d", last, f.Counter)
	}
	if f.Counter <= last {
		t.Errorf("counter went backwards across the idle span: %d -> %d", last, f.Counter)
	}
}

// ============================================================
// Server Lifecycle
// ============================================================

func TestServer_CloseEndsSession(t *testing.T) {
	srv := NewServer(testConfig())
	client, device := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(device)
	}()

	c := &simClient{t: t, conn: client, dec: tcd1304.NewDecoder()}
	c.awaitLine(tcd1304.ReadyBanner)

	if err := srv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("expected session to end on server close")
	}
}

func TestServer_ListenAndServe(t *testing.T) {
	cfg := testConfig()
	cfg.Listen = "127.0.0.1:0"

	srv := NewServer(cfg)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve() }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	c := &simClient{t: t, conn: conn, dec: tcd1304.NewDecoder()}
	c.awaitLine(tcd1304.ReadyBanner)
	c.send(tcd1304.StartCommand())
	c.awaitLine("OK:STARTED")

	f := c.awaitFrame()
	if err := tcd1304.ValidateFrame(f.Encode()); err != nil {
		t.Errorf("frame failed validation: %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Serve did not return after Close")
	}
}
