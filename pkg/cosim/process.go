package cosim

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
)

// ProcessLine is one line of output captured from the child
// co-simulation process, tagged by stream.
type ProcessLine struct {
	Stderr bool
	Text   string
}

// ChildProcess manages the external co-simulation engine process
// (the Go-native replacement for the original's in-process MATLAB
// Engine binding): start it, stream its stdout/stderr, and wait for
// exit.
type ChildProcess struct {
	log *logrus.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	lines  chan ProcessLine
	exited chan error
}

// NewChildProcess returns an unstarted ChildProcess.
func NewChildProcess(log *logrus.Logger) *ChildProcess {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChildProcess{log: log, lines: make(chan ProcessLine, 256), exited: make(chan error, 1)}
}

// Lines returns the channel of captured stdout/stderr lines.
func (p *ChildProcess) Lines() <-chan ProcessLine { return p.lines }

// Exited returns a channel that receives exactly once, with the
// process's exit error (nil on a clean exit), when it terminates.
func (p *ChildProcess) Exited() <-chan error { return p.exited }

// Start launches name with args, capturing stdout/stderr line by
// line. Starting a second process while one is already running
// returns ProcessStartError.
func (p *ChildProcess) Start(ctx context.Context, name string, args ...string) error {
	p.mu.Lock()
	if p.cmd != nil {
		p.mu.Unlock()
		return &ProcessStartError{Cause: context.Canceled}
	}
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		p.mu.Unlock()
		return &ProcessStartError{Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		p.mu.Unlock()
		return &ProcessStartError{Cause: err}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		p.mu.Unlock()
		return &ProcessStartError{Cause: err}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		p.mu.Unlock()
		return &ProcessStartError{Cause: err}
	}

	p.cmd = cmd
	p.cancel = cancel
	p.stdin = stdin
	p.mu.Unlock()

	go p.pump(stdout, false)
	go p.pump(stderr, true)
	go p.waitAndReport()
	return nil
}

func (p *ChildProcess) pump(r io.Reader, stderr bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.lines <- ProcessLine{Stderr: stderr, Text: scanner.Text()}
	}
}

func (p *ChildProcess) waitAndReport() {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	err := cmd.Wait()
	if err != nil {
		p.log.WithError(err).Warn("cosim: child process exited with error")
	}
	p.exited <- err

	p.mu.Lock()
	p.cmd = nil
	p.cancel = nil
	if p.stdin != nil {
		_ = p.stdin.Close()
		p.stdin = nil
	}
	p.mu.Unlock()
}

// Send writes payload plus a newline to the running process's stdin,
// the minimal request half of the command/response round trip the
// dispatcher (dispatcher.go) drives a queued Command through.
// NotRunningError is returned if no process is currently active.
func (p *ChildProcess) Send(payload string) error {
	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return &NotRunningError{}
	}
	_, err := stdin.Write([]byte(payload + "\n"))
	return err
}

// Stop terminates the process (SIGKILL via context cancellation) if
// one is running.
func (p *ChildProcess) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Running reports whether a process is currently active.
func (p *ChildProcess) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}
