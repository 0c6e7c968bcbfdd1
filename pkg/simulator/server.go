// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package simulator

import (
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Littrow/czerny/pkg/tcd1304"
)

// readoutPeriod is the time one full readout takes to shift out of the
// sensor at the nominal 0.5 MHz data rate. Frames can never be produced
// faster than this, whatever the integration time says.
const readoutPeriod = 7400 * time.Microsecond

// Server hosts simulated devices, one independent instrument per TCP
// connection.
type Server struct {
	cfg      *Config
	listener net.Listener
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a simulator server for the given configuration.
func NewServer(cfg *Config) *Server {
	return &Server{
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Listen binds the configured address without accepting yet, so callers
// can learn the bound address before serving (ports may be ephemeral).
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound listen address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts device sessions until Close. Listen must have been
// called first.
func (s *Server) Serve() error {
	log.Printf("Simulated TCD1304 listening on %s", s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
			}
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			log.Printf("Failed to accept connection: %v", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

// ListenAndServe binds the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Close shuts the server down: the listener stops accepting and every
// running session is told to end.
func (s *Server) Close() error {
	select {
	case <-s.stopChan:
		// Already closed.
		return nil
	default:
		close(s.stopChan)
	}

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}

// ServeConn runs one simulated device over conn until the peer
// disconnects or the server shuts down. The first bytes on the wire are
// the ready banner, exactly as the firmware behaves after reset.
func (s *Server) ServeConn(conn net.Conn) {
	defer conn.Close()

	log.Printf("Device session started: %s", conn.RemoteAddr())
	newSession(s.cfg, conn).run(s.stopChan)
	log.Printf("Device session ended: %s", conn.RemoteAddr())
}

// connLink adapts a net.Conn to the device link contract: Send hands the
// buffer to a writer goroutine, and SendComplete fires once the write
// finishes, the same handshake the firmware gets from its DMA engine.
// Configured faults are applied here, at the wire boundary.
type connLink struct {
	conn    net.Conn
	sendCh  chan []byte
	dev     *tcd1304.Device
	faults  FaultsConfig
	nframes int
}

func (l *connLink) Send(p []byte) bool {
	isFrame := len(p) == tcd1304.FrameSize
	if isFrame {
		l.nframes++
		if n := l.faults.DropEveryN; n > 0 && l.nframes%n == 0 {
			// Swallow the frame. A nil buffer still completes the send,
			// otherwise the transport would stay busy forever.
			return l.enqueue(nil)
		}
	}

	buf := make([]byte, len(p))
	copy(buf, p)
	if isFrame {
		if n := l.faults.CorruptCRCEveryN; n > 0 && l.nframes%n == 0 {
			buf[len(buf)-1] ^= 0xFF
		}
	}
	return l.enqueue(buf)
}

func (l *connLink) enqueue(buf []byte) bool {
	select {
	case l.sendCh <- buf:
		return true
	default:
		return false
	}
}

// writeLoop drains queued buffers onto the connection. Write errors are
// swallowed: the reader side notices the dead peer and ends the session.
func (l *connLink) writeLoop(done <-chan struct{}) {
	for {
		select {
		case buf := <-l.sendCh:
			if buf != nil {
				l.conn.Write(buf)
			}
			l.dev.SendComplete()
		case <-done:
			return
		}
	}
}

// session is one simulated instrument: a device core, a readout
// generator, and the connection plumbing between them.
type session struct {
	conn  net.Conn
	dev   *tcd1304.Device
	synth *Synth
	link  *connLink
}

func newSession(cfg *Config, conn net.Conn) *session {
	link := &connLink{
		conn:   conn,
		sendCh: make(chan []byte, 1),
		faults: cfg.Faults,
	}
	dev := tcd1304.NewDevice(link,
		tcd1304.WithEngineOptions(
			tcd1304.WithIntegrationBounds(cfg.Limits.MinIntegrationTime, cfg.Limits.MaxIntegrationTime),
			tcd1304.WithIntegrationTime(cfg.Frame.IntegrationTime),
		),
	)
	link.dev = dev

	return &session{
		conn:  conn,
		dev:   dev,
		synth: NewSynth(cfg.Frame, cfg.Seed),
		link:  link,
	}
}

// run drives the device loop. The engine and builder are only ever
// touched from this goroutine; the reader and writer goroutines stay on
// their own side of the transport rings.
func (sess *session) run(stop <-chan struct{}) {
	done := make(chan struct{})
	defer close(done)

	connClosed := make(chan struct{})
	go func() {
		defer close(connClosed)
		buf := make([]byte, 256)
		for {
			n, err := sess.conn.Read(buf)
			if n > 0 {
				sess.dev.HandleRX(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	go sess.link.writeLoop(done)

	sess.dev.Init()

	next := time.Now().Add(sess.framePeriod())
	for {
		select {
		case <-stop:
			return
		case <-connClosed:
			return
		default:
		}

		sess.dev.Process()

		// The sensor clocks readouts continuously; the device core decides
		// whether each resulting frame is transmitted. The counter therefore
		// keeps advancing while idle, and a receiver sees the gap on restart.
		if now := time.Now(); now.After(next) {
			sess.dev.SamplesReady(sess.synth.Readout(sess.dev.Engine().IntegrationTime()))
			next = now.Add(sess.framePeriod())
		}

		time.Sleep(200 * time.Microsecond)
	}
}

// framePeriod is the simulated frame cadence: the current integration
// time, floored at one sensor readout.
func (sess *session) framePeriod() time.Duration {
	p := time.Duration(sess.dev.Engine().IntegrationTime()) * time.Microsecond
	if p < readoutPeriod {
		return readoutPeriod
	}
	return p
}
