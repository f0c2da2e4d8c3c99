package cosim

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// StreamServer listens for one live co-simulation data connection at
// a time and emits each NUL-terminated message it receives, the Go
// equivalent of TcpReceiverWorker's accept-then-split-on-'\x00' loop.
type StreamServer struct {
	log      *logrus.Logger
	messages chan string
	errs     chan error

	mu       sync.Mutex
	listener net.Listener
}

// NewStreamServer returns an unstarted StreamServer.
func NewStreamServer(log *logrus.Logger) *StreamServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StreamServer{log: log, messages: make(chan string, 256), errs: make(chan error, 4)}
}

// Messages returns the channel of NUL-delimited messages received
// from the streaming peer.
func (s *StreamServer) Messages() <-chan string { return s.messages }

// Errors returns the channel of non-fatal connection errors.
func (s *StreamServer) Errors() <-chan error { return s.errs }

// Start binds host:port and accepts connections in the background
// until ctx is cancelled or Stop is called. Only one connection is
// serviced at a time, matching the original single-backlog worker.
func (s *StreamServer) Start(ctx context.Context, host string, port int) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.WithField("addr", ln.Addr().String()).Info("cosim: listening for streamed simulation data")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	go s.acceptLoop(ln)
	return nil
}

func (s *StreamServer) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.serveConn(conn)
	}
}

// serveConn handles one connection to completion before accepting the
// next, mirroring the original's "with conn:" single-connection model.
func (s *StreamServer) serveConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		msg, err := reader.ReadString(0x00)
		if err != nil {
			if len(msg) > 0 {
				s.emit(msg)
			}
			return
		}
		msg = msg[:len(msg)-1] // drop the trailing NUL delimiter
		if msg != "" {
			s.emit(msg)
		}
	}
}

func (s *StreamServer) emit(msg string) {
	select {
	case s.messages <- msg:
	default:
		s.log.Warn("cosim: stream message buffer full, dropping message")
	}
}

// Stop closes the listener, ending the accept loop.
func (s *StreamServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound address, or nil if not started.
func (s *StreamServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
