// Package hwlink manages the connection to physical hardware over a
// line-oriented serial protocol: EVT:<name> and DATA:<name>:<number>
// lines inbound become simulation events/variable writes, and
// CMD:<name>:<value> lines are sent out on request.
package hwlink

import (
	"bufio"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ConnState is the Link's own connection lifecycle state, independent
// of the simulation engine's state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	ReconnectWait
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case ReconnectWait:
		return "ReconnectWait"
	default:
		return "Unknown"
	}
}

// StatusEvent reports a connection state change.
type StatusEvent struct {
	Connected bool
	Message   string
}

// Link owns one serial connection's lifecycle: connect, read/write
// loop, unexpected-disconnect detection, and periodic reconnection —
// generalized from the original HardwareLinkManager/SerialWorker pair
// into a single goroutine-driven Go type.
type Link struct {
	dial            Dialer
	reconnectPeriod time.Duration
	log             *logrus.Logger

	incoming chan Incoming
	status   chan StatusEvent
	rawSent  chan string
	rawRecv  chan string

	mu               sync.Mutex
	state            ConnState
	port             Port
	lastPort         string
	lastBaud         int
	userDisconnected bool
	cancel           context.CancelFunc
	cmdCh            chan string

	reconnectStop chan struct{}
	reconnectDone chan struct{}
}

// LinkOption configures a Link at construction.
type LinkOption func(*Link)

// WithReconnectPeriod overrides the default 3s reconnection poll
// interval.
func WithReconnectPeriod(d time.Duration) LinkOption {
	return func(l *Link) { l.reconnectPeriod = d }
}

// WithDialer overrides the default OpenSerialPort, for tests.
func WithDialer(d Dialer) LinkOption {
	return func(l *Link) { l.dial = d }
}

// WithLinkLogger overrides the default logrus.StandardLogger().
func WithLinkLogger(log *logrus.Logger) LinkOption {
	return func(l *Link) { l.log = log }
}

// NewLink constructs an unconnected Link.
func NewLink(opts ...LinkOption) *Link {
	l := &Link{
		dial:            OpenSerialPort,
		reconnectPeriod: 3 * time.Second,
		log:             logrus.StandardLogger(),
		incoming:        make(chan Incoming, 256),
		status:          make(chan StatusEvent, 16),
		rawSent:         make(chan string, 256),
		rawRecv:         make(chan string, 256),
		state:           Disconnected,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Incoming returns the channel of parsed EVT/DATA lines.
func (l *Link) Incoming() <-chan Incoming { return l.incoming }

// Status returns the channel of connection state changes.
func (l *Link) Status() <-chan StatusEvent { return l.status }

// RawSent returns every line written to the port, for a UI monitor.
func (l *Link) RawSent() <-chan string { return l.rawSent }

// RawReceived returns every raw line read from the port, before
// parsing, for a UI monitor.
func (l *Link) RawReceived() <-chan string { return l.rawRecv }

// State returns the current connection state.
func (l *Link) State() ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connect opens portName at baud and starts the read/write loop in
// the background. It returns AlreadyActiveError if a connection is
// already established or being established.
func (l *Link) Connect(portName string, baud int) error {
	l.mu.Lock()
	if l.state == Connecting || l.state == Connected {
		l.mu.Unlock()
		return &AlreadyActiveError{}
	}
	l.userDisconnected = false
	l.lastPort = portName
	l.lastBaud = baud
	l.state = Connecting
	l.stopReconnectLocked()
	l.mu.Unlock()

	return l.startWorker(portName, baud)
}

func (l *Link) startWorker(portName string, baud int) error {
	port, err := l.dial(portName, baud)
	if err != nil {
		l.mu.Lock()
		l.state = Disconnected
		l.mu.Unlock()
		l.publishStatus(false, err.Error())
		l.maybeStartReconnect()
		return &OpenError{Port: portName, Cause: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmdCh := make(chan string, 64)

	l.mu.Lock()
	l.port = port
	l.cmdCh = cmdCh
	l.cancel = cancel
	l.state = Connected
	l.mu.Unlock()

	l.publishStatus(true, "connected to "+portName)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.readLoop(ctx, port) })
	g.Go(func() error { return l.writeLoop(ctx, port, cmdCh) })

	go func() {
		_ = g.Wait()
		l.onWorkerFinished(portName)
	}()
	return nil
}

// readLoop scans port for lines until Scan reports an error: either
// the port's own read timeout (readTimeout in serial.go, for the real
// go.bug.st/serial transport) unblocked a stalled Read so the ctx
// check below could run, or Disconnect/onWorkerFinished closed the
// port out from under it directly. The ctx check between lines lets a
// cancellation that lands between two already-buffered lines
// short-circuit promptly instead of parsing everything still
// buffered.
func (l *Link) readLoop(ctx context.Context, port Port) error {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l.rawRecv <- line
		if in, ok := ParseLine(line); ok {
			l.incoming <- in
		} else {
			l.log.WithField("line", line).Debug("hwlink: unparsed line ignored")
		}
	}
	return scanner.Err()
}

func (l *Link) writeLoop(ctx context.Context, port Port, cmdCh <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-cmdCh:
			if !ok {
				return nil
			}
			if _, err := port.Write([]byte(cmd)); err != nil {
				return err
			}
			l.rawSent <- strings.TrimSpace(cmd)
		}
	}
}

func (l *Link) onWorkerFinished(portName string) {
	l.mu.Lock()
	wasConnected := l.state == Connected
	l.state = Disconnected
	if l.port != nil {
		_ = l.port.Close()
		l.port = nil
	}
	userInitiated := l.userDisconnected
	l.mu.Unlock()

	if wasConnected {
		l.publishStatus(false, "disconnected from "+portName)
	}
	if !userInitiated {
		l.log.WithField("port", portName).Warn("hwlink: link lost unexpectedly, starting reconnection attempts")
		l.maybeStartReconnect()
	}
}

// Disconnect stops the read/write loop and suppresses automatic
// reconnection, mirroring disconnect_from_port's
// _user_initiated_disconnect flag. It closes the port directly rather
// than relying solely on the read timeout, so a readLoop parked in a
// blocking Read unblocks immediately instead of waiting out the
// timeout window.
func (l *Link) Disconnect() {
	l.mu.Lock()
	l.userDisconnected = true
	l.stopReconnectLocked()
	cancel := l.cancel
	cmdCh := l.cmdCh
	port := l.port
	l.port = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if port != nil {
		_ = port.Close()
	}
	if cmdCh != nil {
		close(cmdCh)
	}
}

// SendCommand writes a CMD:<name>:<value> line if currently connected.
func (l *Link) SendCommand(name string, value float64) error {
	l.mu.Lock()
	connected := l.state == Connected
	cmdCh := l.cmdCh
	l.mu.Unlock()

	if !connected || cmdCh == nil {
		return &NotConnectedError{}
	}
	cmdCh <- FormatCommand(name, value)
	return nil
}

func (l *Link) publishStatus(connected bool, message string) {
	select {
	case l.status <- StatusEvent{Connected: connected, Message: message}:
	default:
		l.log.Warn("hwlink: status channel full, dropping status event")
	}
}

// maybeStartReconnect launches the reconnect poller unless one is
// already running, the link was user-disconnected, or there is no
// remembered port to retry.
func (l *Link) maybeStartReconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.userDisconnected || l.lastPort == "" || l.reconnectStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	l.reconnectStop = stop
	l.reconnectDone = done
	port, baud := l.lastPort, l.lastBaud

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.reconnectPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if l.attemptReconnect(port, baud) {
					return
				}
			}
		}
	}()
}

// attemptReconnect checks the remembered port is present in the
// system's port list before redialing, matching _attempt_reconnect's
// "only redial once the OS shows the port again" behavior.
func (l *Link) attemptReconnect(portName string, baud int) bool {
	l.mu.Lock()
	if l.userDisconnected || l.state == Connected {
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()

	names, err := ListPorts()
	if err != nil {
		l.log.WithError(err).Debug("hwlink: failed to list ports during reconnect poll")
		return false
	}
	present := false
	for _, n := range names {
		if n == portName {
			present = true
			break
		}
	}
	if !present {
		return false
	}

	l.log.WithField("port", portName).Info("hwlink: port is available again, reconnecting")
	if err := l.Connect(portName, baud); err != nil {
		l.log.WithError(err).Warn("hwlink: reconnect attempt failed")
		return false
	}
	return true
}

func (l *Link) stopReconnectLocked() {
	if l.reconnectStop != nil {
		close(l.reconnectStop)
		l.reconnectStop = nil
		l.reconnectDone = nil
	}
}

// Close tears down the link unconditionally, for process shutdown.
func (l *Link) Close() {
	l.Disconnect()
}
