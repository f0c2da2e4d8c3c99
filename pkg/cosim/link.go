// Package cosim manages a co-simulation session: launching an external
// simulation engine process, streaming its live output over a
// loopback TCP connection, dispatching prioritized commands to it,
// and tracking session health with bounded auto-recovery.
package cosim

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// State is the co-simulation session's own lifecycle state,
// generalizing the original's SimulationState enum.
type State int

const (
	Idle State = iota
	Loading
	Running
	Paused
	Busy
	Stopping
	Completed
	Error
	Reconnecting
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Loading:
		return "Loading"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Busy:
		return "Busy"
	case Stopping:
		return "Stopping"
	case Completed:
		return "Completed"
	case Error:
		return "Error"
	case Reconnecting:
		return "Reconnecting"
	case ShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// StateChange reports a session state transition.
type StateChange struct {
	State   State
	Message string
}

// Config mirrors the original SimulationConfig's run parameters,
// trimmed to what a generic external engine process needs on its
// command line rather than MATLAB-specific solver settings.
type Config struct {
	StopTime         float64
	StepSize         float64
	LimitDataPoints  bool
	MaxDataPoints    int
	StreamHost       string
	StreamPort       int
}

// DefaultConfig mirrors create_default_simulation_config's values.
func DefaultConfig() Config {
	return Config{
		StopTime:        10,
		StepSize:        0.1,
		LimitDataPoints: true,
		MaxDataPoints:   5000,
		StreamHost:      "127.0.0.1",
		StreamPort:      30000,
	}
}

// Link owns one co-simulation session end to end: child process,
// streaming server, command dispatch, and health monitoring.
type Link struct {
	log  *logrus.Logger
	proc *ChildProcess
	tcp  *StreamServer
	cmds *PriorityQueue
	perf *PerformanceMonitor

	healthPeriod    time.Duration
	recoveryMinGap  time.Duration
	maxRecoveries   int

	mu             sync.Mutex
	state          State
	modelPath      string
	config         Config
	enginePath     string
	engineArgs     []string
	consecutiveErr int
	lastRecovery   time.Time
	recoveries     int
	runGroup       *errgroup.Group

	stateCh chan StateChange
	dataCh  chan DataPoint

	startedAt time.Time

	dispatchMu   sync.Mutex
	dispatchCtx  context.Context
	dispatchStop context.CancelFunc
	dispatchDone chan struct{}

	diagMu       sync.Mutex
	latencies    []time.Duration
	successCount int
	failureCount int
	lastProbeOK  bool
	currentKind  *CommandKind

	outcomeCh chan CommandOutcome
}

// LinkOption configures a Link at construction.
type LinkOption func(*Link)

// WithHealthPeriod overrides the default 10s health-probe interval.
func WithHealthPeriod(d time.Duration) LinkOption { return func(l *Link) { l.healthPeriod = d } }

// WithRecoveryPolicy overrides the default bounded-auto-recovery
// policy (at most maxAttempts recoveries, each at least minGap apart).
func WithRecoveryPolicy(maxAttempts int, minGap time.Duration) LinkOption {
	return func(l *Link) {
		l.maxRecoveries = maxAttempts
		l.recoveryMinGap = minGap
	}
}

// NewLink constructs an Idle Link.
func NewLink(log *logrus.Logger, opts ...LinkOption) *Link {
	if log == nil {
		log = logrus.StandardLogger()
	}
	l := &Link{
		log:            log,
		proc:           NewChildProcess(log),
		tcp:            NewStreamServer(log),
		cmds:           NewPriorityQueue(),
		perf:           NewPerformanceMonitor(),
		healthPeriod:   10 * time.Second,
		recoveryMinGap: 30 * time.Second,
		maxRecoveries:  3,
		state:          Idle,
		stateCh:        make(chan StateChange, 16),
		dataCh:         make(chan DataPoint, 256),
		startedAt:      time.Now(),
		outcomeCh:      make(chan CommandOutcome, 64),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.startDispatcher()
	return l
}

// StateChanges returns the channel of session state transitions.
func (l *Link) StateChanges() <-chan StateChange { return l.stateCh }

// DataUpdates returns the channel of parsed live data points.
func (l *Link) DataUpdates() <-chan DataPoint { return l.dataCh }

// State returns the current session state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) setState(s State, message string) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	select {
	case l.stateCh <- StateChange{State: s, Message: message}:
	default:
		l.log.Warn("cosim: state channel full, dropping state change")
	}
}

// LoadModel validates modelPath exists, then runs the
// ModelGeneration -> Instantiate -> SetupStreaming command chain
// against enginePath (the external co-simulation engine binary) and
// args, landing the session in Idle on success or Error on failure.
func (l *Link) LoadModel(ctx context.Context, modelPath string, cfg Config, enginePath string, args ...string) error {
	if _, err := os.Stat(modelPath); err != nil {
		return &ModelNotFoundError{Path: modelPath}
	}

	l.mu.Lock()
	l.modelPath = modelPath
	l.config = cfg
	l.enginePath = enginePath
	l.engineArgs = args
	l.mu.Unlock()

	l.setState(Loading, "loading model "+modelPath)

	if err := l.runModelGenerationChain(ctx, enginePath, args...); err != nil {
		l.setState(Error, err.Error())
		return err
	}

	l.setState(Idle, "model '"+modelPath+"' loaded successfully")
	return nil
}

// runModelGenerationChain performs the three-step bring-up sequence a
// co-simulation session requires before it can run: generate/launch
// the engine process (ModelGeneration), wait for it to report ready
// (Instantiate), then open the streaming listener it will connect
// back to (SetupStreaming). Each step only runs if the previous one
// succeeded; the chain is a named, independently testable unit per
// the open question on co-sim bring-up ordering.
func (l *Link) runModelGenerationChain(ctx context.Context, enginePath string, args ...string) error {
	if err := l.stepModelGeneration(ctx, enginePath, args...); err != nil {
		return err
	}
	if err := l.stepInstantiate(ctx); err != nil {
		return err
	}
	return l.stepSetupStreaming(ctx)
}

func (l *Link) stepModelGeneration(ctx context.Context, enginePath string, args ...string) error {
	if err := l.proc.Start(ctx, enginePath, args...); err != nil {
		return err
	}
	return nil
}

// stepInstantiate waits for the engine process's first output line as
// a readiness signal, or for it to exit early with an error.
func (l *Link) stepInstantiate(ctx context.Context) error {
	select {
	case <-l.proc.Lines():
		return nil
	case err := <-l.proc.Exited():
		if err != nil {
			return &ProcessStartError{Cause: err}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return &NotReadyError{CurrentState: Loading}
	}
}

func (l *Link) stepSetupStreaming(ctx context.Context) error {
	l.mu.Lock()
	cfg := l.config
	l.mu.Unlock()
	return l.tcp.Start(ctx, cfg.StreamHost, cfg.StreamPort)
}

// StartSimulation transitions Idle -> Running, queues the start
// command, and begins health monitoring. It is rejected unless
// LoadModel has left the engine process running.
func (l *Link) StartSimulation(ctx context.Context) error {
	if l.State() != Idle || !l.proc.Running() {
		return &InvalidStateTransitionError{Operation: "start", From: l.State()}
	}
	l.perf.Start()
	l.cmds.Push(Command{Priority: High, Name: "start"})
	l.setState(Running, "simulation running")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { l.healthLoop(gctx); return nil })
	g.Go(func() error { l.streamPump(); return nil })
	l.mu.Lock()
	l.runGroup = g
	l.mu.Unlock()
	return nil
}

// Pause transitions Running -> Paused.
func (l *Link) Pause() error {
	if l.State() != Running {
		return &InvalidStateTransitionError{Operation: "pause", From: l.State()}
	}
	l.cmds.Push(Command{Priority: Normal, Name: "pause"})
	l.setState(Paused, "simulation paused")
	return nil
}

// Resume transitions Paused -> Running.
func (l *Link) Resume() error {
	if l.State() != Paused {
		return &InvalidStateTransitionError{Operation: "resume", From: l.State()}
	}
	l.cmds.Push(Command{Priority: Normal, Name: "resume"})
	l.setState(Running, "simulation resumed")
	return nil
}

// Stop transitions Running/Paused -> Stopping -> Completed, and tears
// down the streaming listener and child process.
func (l *Link) Stop() error {
	s := l.State()
	if s != Running && s != Paused {
		return &InvalidStateTransitionError{Operation: "stop", From: s}
	}
	l.cmds.Push(Command{Priority: Critical, Name: "stop"})
	l.setState(Stopping, "stopping simulation")

	l.tcp.Stop()
	l.proc.Stop()

	l.setState(Completed, "simulation stopped")
	return nil
}

// streamPump parses each NUL-delimited message from the streaming
// server as a component name (the minimal live-state signal the
// original's _on_tcp_data_received forwarded) and republishes it as a
// DataPoint.
func (l *Link) streamPump() {
	tick := 0
	for msg := range l.tcp.Messages() {
		tick++
		l.perf.Observe(float64(tick))
		select {
		case l.dataCh <- DataPoint{ActiveState: msg, Tick: tick, ObservedAt: time.Now()}:
		default:
			l.log.Warn("cosim: data channel full, dropping data point")
		}
	}
}

// healthLoop probes the child process every healthPeriod; three
// consecutive failed probes triggers bounded auto-recovery.
func (l *Link) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(l.healthPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s := l.State(); s != Running && s != Paused && s != Busy {
				return
			}
			if l.proc.Running() {
				l.mu.Lock()
				l.consecutiveErr = 0
				l.mu.Unlock()
				continue
			}
			l.mu.Lock()
			l.consecutiveErr++
			strikes := l.consecutiveErr
			l.mu.Unlock()
			if strikes >= 3 {
				l.attemptRecovery(ctx)
			}
		}
	}
}

// attemptRecovery relaunches the engine process, bounded to
// maxRecoveries attempts at least recoveryMinGap apart.
func (l *Link) attemptRecovery(ctx context.Context) {
	l.mu.Lock()
	if l.recoveries >= l.maxRecoveries || time.Since(l.lastRecovery) < l.recoveryMinGap {
		l.mu.Unlock()
		return
	}
	l.recoveries++
	l.lastRecovery = time.Now()
	modelPath, cfg, enginePath, engineArgs := l.modelPath, l.config, l.enginePath, l.engineArgs
	l.mu.Unlock()

	l.setState(Reconnecting, "attempting co-simulation recovery")
	if err := l.LoadModel(ctx, modelPath, cfg, enginePath, engineArgs...); err != nil {
		l.setState(Error, "recovery failed: "+err.Error())
		return
	}
	l.setState(Running, "co-simulation recovered")
}

// SendCommand enqueues cmd for the dispatcher (dispatcher.go), which
// drains the highest-priority lane first and FIFO within a lane. If
// the link is currently in the Error state the command is failed
// immediately with EngineUnavailableError rather than enqueued.
func (l *Link) SendCommand(cmd Command) error {
	if l.State() == Error {
		return &EngineUnavailableError{}
	}
	l.cmds.Push(cmd)
	return nil
}

// Outcomes returns the channel of CommandCompleted/CommandFailed
// results, one per queued Command that finishes (successfully, or
// after its retries are exhausted).
func (l *Link) Outcomes() <-chan CommandOutcome { return l.outcomeCh }

// Metrics returns the current performance snapshot.
func (l *Link) Metrics() Metrics { return l.perf.Snapshot() }

// Shutdown cancels the dispatcher (the command worker) and waits up to
// 5s for it to stop, closes the TCP listener, and terminates the
// co-simulation engine process, mirroring
// MatlabSimulationManager.shutdown's stop-server/signal-worker/
// bounded-join sequence. The accept loop is not waited for, and the
// health loop is not cancelled directly: it returns at its next tick,
// once the state is no longer Running, Paused or Busy.
func (l *Link) Shutdown() {
	l.setState(ShuttingDown, "shutting down co-simulation link")

	l.dispatchMu.Lock()
	stop := l.dispatchStop
	done := l.dispatchDone
	l.dispatchMu.Unlock()
	if stop != nil {
		stop()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			l.log.Warn("cosim: dispatcher did not stop gracefully within 5s")
		}
	}

	l.tcp.Stop()
	l.proc.Stop()
}
