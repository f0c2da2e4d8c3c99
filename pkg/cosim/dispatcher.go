package cosim

import (
	"context"
	"errors"
	"time"
)

// defaultCommandTimeout/defaultMaxRetries/retryDelay are the fallback
// execution-contract parameters applied to a Command that does not
// set its own TimeoutMs/MaxRetries.
const (
	defaultCommandTimeout = 2 * time.Second
	defaultMaxRetries     = 2
	retryDelay            = time.Second
	dispatchPollInterval  = 20 * time.Millisecond
	latencyWindow         = 20
)

// CommandOutcome is published once a queued Command finishes, whether
// it completed successfully, failed outright, or exhausted its
// retries after repeated timeouts. It unifies the completed/failed
// cases into one shape distinguished by Success.
type CommandOutcome struct {
	Success  bool
	Message  string
	Data     string
	Kind     CommandKind
	Metadata map[string]interface{}
}

// startDispatcher launches the single worker that drains the priority
// queue: it dequeues the highest-priority item, marks the link Busy,
// executes, then returns to the prior state. It runs for the Link's
// whole lifetime, stopped only by Shutdown.
func (l *Link) startDispatcher() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.dispatchMu.Lock()
	l.dispatchCtx = ctx
	l.dispatchStop = cancel
	l.dispatchDone = done
	l.dispatchMu.Unlock()

	go func() {
		defer close(done)
		l.dispatchLoop(ctx)
	}()
}

func (l *Link) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(dispatchPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				cmd, ok := l.cmds.Pop()
				if !ok {
					break
				}
				l.executeQueuedCommand(ctx, cmd)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// executeQueuedCommand runs one dequeued Command to completion: marks
// the link Busy for the duration, applies the command's timeout,
// retries on timeout up to MaxRetries with a 1s delay (re-enqueued at
// the same priority), and otherwise publishes a final CommandOutcome.
func (l *Link) executeQueuedCommand(ctx context.Context, cmd Command) {
	if l.State() == Error {
		l.publishOutcome(CommandOutcome{
			Success:  false,
			Message:  (&EngineUnavailableError{}).Error(),
			Kind:     cmd.Kind,
			Metadata: l.stampMetadata(cmd.Metadata),
		})
		return
	}

	prevState := l.State()
	l.setBusy(cmd.Kind)

	timeout := time.Duration(cmd.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	start := time.Now()
	data, err := l.runCommand(cctx, cmd)
	cancel()
	l.clearBusy(prevState)
	l.recordLatency(time.Since(start))

	if err != nil {
		var timeoutErr *CommandTimeoutError
		if errors.As(err, &timeoutErr) {
			maxRetries := cmd.MaxRetries
			if maxRetries <= 0 {
				maxRetries = defaultMaxRetries
			}
			if cmd.RetryCount < maxRetries {
				retry := cmd
				retry.RetryCount++
				go func() {
					select {
					case <-time.After(retryDelay):
					case <-ctx.Done():
						return
					}
					l.cmds.Push(retry)
				}()
				return
			}
		}
		l.recordFailure()
		l.publishOutcome(CommandOutcome{
			Success:  false,
			Message:  err.Error(),
			Kind:     cmd.Kind,
			Metadata: l.stampMetadata(cmd.Metadata),
		})
		return
	}

	l.recordSuccess()
	l.publishOutcome(CommandOutcome{
		Success:  true,
		Message:  "command completed",
		Data:     data,
		Kind:     cmd.Kind,
		Metadata: l.stampMetadata(cmd.Metadata),
	})
}

// runCommand sends cmd.Payload to the co-simulation engine process's
// stdin and waits for its next output line as the response, bounded
// by ctx. This is the generic request/response round trip a Simulation
// /General/Test/Validation-kind command drives; ModelGeneration bring
// -up itself goes through the dedicated runModelGenerationChain, not
// this path.
func (l *Link) runCommand(ctx context.Context, cmd Command) (string, error) {
	if err := l.proc.Send(cmd.Payload); err != nil {
		return "", err
	}
	select {
	case line := <-l.proc.Lines():
		return line.Text, nil
	case err := <-l.proc.Exited():
		if err != nil {
			return "", err
		}
		return "", errors.New("cosim: process exited before responding")
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", &CommandTimeoutError{Kind: cmd.Kind}
		}
		return "", ctx.Err()
	}
}

func (l *Link) setBusy(kind CommandKind) {
	l.mu.Lock()
	l.state = Busy
	l.mu.Unlock()
	l.diagMu.Lock()
	k := kind
	l.currentKind = &k
	l.diagMu.Unlock()
}

func (l *Link) clearBusy(prevState State) {
	l.mu.Lock()
	if l.state == Busy {
		l.state = prevState
	}
	l.mu.Unlock()
	l.diagMu.Lock()
	l.currentKind = nil
	l.diagMu.Unlock()
}

func (l *Link) recordLatency(d time.Duration) {
	l.diagMu.Lock()
	defer l.diagMu.Unlock()
	l.latencies = append(l.latencies, d)
	if len(l.latencies) > latencyWindow {
		l.latencies = l.latencies[len(l.latencies)-latencyWindow:]
	}
}

func (l *Link) recordSuccess() {
	l.diagMu.Lock()
	l.successCount++
	l.lastProbeOK = true
	l.diagMu.Unlock()
}

func (l *Link) recordFailure() {
	l.diagMu.Lock()
	l.failureCount++
	l.lastProbeOK = false
	l.diagMu.Unlock()
}

func (l *Link) publishOutcome(o CommandOutcome) {
	select {
	case l.outcomeCh <- o:
	default:
		l.log.Warn("cosim: outcome channel full, dropping command outcome")
	}
}

// stampMetadata returns md (allocated if nil) with the fixed envelope
// every CommandCompleted carries: execution timestamp, engine state at
// completion, and queue depth.
func (l *Link) stampMetadata(md map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(md)+3)
	for k, v := range md {
		out[k] = v
	}
	out["completed_at"] = time.Now()
	out["link_state"] = l.State().String()
	out["queue_depth"] = l.cmds.Len()
	return out
}

// Diagnostics is the link's read-only operational view: uptime,
// whether the most recently finished command succeeded (LastProbeOK;
// the health loop's liveness checks do not update it), a rolling
// window of recent command latencies, success rate, queue depth, and
// the in-flight command kind (nil when idle).
type Diagnostics struct {
	Uptime         time.Duration
	LastProbeOK    bool
	RecentLatencies []time.Duration
	SuccessRate    float64
	QueueDepth     int
	CurrentKind    *CommandKind
	LinkState      string
}

// Diagnostics returns a snapshot of the link's current health and
// command-processing statistics.
func (l *Link) Diagnostics() Diagnostics {
	l.diagMu.Lock()
	latencies := make([]time.Duration, len(l.latencies))
	copy(latencies, l.latencies)
	successes, failures := l.successCount, l.failureCount
	lastOK := l.lastProbeOK
	var kind *CommandKind
	if l.currentKind != nil {
		k := *l.currentKind
		kind = &k
	}
	l.diagMu.Unlock()

	total := successes + failures
	rate := 1.0
	if total > 0 {
		rate = float64(successes) / float64(total)
	}

	return Diagnostics{
		Uptime:          time.Since(l.startedAt),
		LastProbeOK:     lastOK,
		RecentLatencies: latencies,
		SuccessRate:     rate,
		QueueDepth:      l.cmds.Len(),
		CurrentKind:     kind,
		LinkState:       l.State().String(),
	}
}
