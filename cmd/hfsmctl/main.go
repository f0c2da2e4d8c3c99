// Command hfsmctl runs a hierarchical state machine IR file to
// completion (or forever), optionally bridging it to a serial hardware
// link and/or a co-simulation engine process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fsmforge/hfsmcore/pkg/cosim"
	"github.com/fsmforge/hfsmcore/pkg/fsm"
	"github.com/fsmforge/hfsmcore/pkg/hwlink"
)

// hfsmRuntime wires one running engine to its optional peripherals: a
// hardware serial link and/or a co-simulation engine process.
type hfsmRuntime struct {
	engine *fsm.Engine
	hw     *hwlink.Link
	sim    *cosim.Link

	ctx    context.Context
	cancel context.CancelFunc

	tickEvery time.Duration
	maxTicks  uint64
}

func newHfsmRuntime(engine *fsm.Engine, tickEvery time.Duration, maxTicks uint64) *hfsmRuntime {
	ctx, cancel := context.WithCancel(context.Background())
	return &hfsmRuntime{
		engine:    engine,
		ctx:       ctx,
		cancel:    cancel,
		tickEvery: tickEvery,
		maxTicks:  maxTicks,
	}
}

// Start begins the tick loop and, if wired, the hardware/co-sim event
// forwarders. It returns once the engine halts, the context is
// canceled, or maxTicks is reached.
func (r *hfsmRuntime) Start() error {
	log.Println("hfsmctl: starting engine at state", r.engine.GetCurrentStateName())

	events := r.engine.Subscribe(64)
	go r.logEvents(events)

	if r.hw != nil {
		go r.forwardHardwareEvents()
	}
	if r.sim != nil {
		go r.forwardSimData()
	}

	ticker := time.NewTicker(r.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Println("hfsmctl: stopping, context canceled")
			return nil
		case <-ticker.C:
			if err := r.engine.Step(nil); err != nil {
				if _, halted := err.(*fsm.HaltedError); halted {
					log.Println("hfsmctl: engine halted")
					return nil
				}
				return fmt.Errorf("hfsmctl: step: %w", err)
			}
			if r.engine.IsPausedAtBreakpoint() {
				log.Println("hfsmctl: paused at breakpoint, resuming")
				if err := r.engine.ContinueFromBreakpoint(); err != nil {
					return fmt.Errorf("hfsmctl: resume from breakpoint: %w", err)
				}
			}
			if r.engine.IsHalted() {
				log.Println("hfsmctl: engine halted")
				return nil
			}
			if r.maxTicks > 0 {
				snap := r.engine.Snapshot()
				if snap.Tick >= r.maxTicks {
					log.Printf("hfsmctl: reached max ticks (%d)", r.maxTicks)
					return nil
				}
			}
		}
	}
}

func (r *hfsmRuntime) logEvents(events <-chan fsm.Event) {
	for ev := range events {
		switch e := ev.(type) {
		case fsm.TransitionTaken:
			log.Printf("hfsmctl: transition %s -> %s (tick %d)", e.Source, e.Target, e.Tick)
		case fsm.LogLines:
			for _, line := range e.Lines {
				log.Printf("hfsmctl: [tick %d] %s", e.Tick, line)
			}
		case fsm.EngineHalted:
			log.Printf("hfsmctl: halted (%s)", e.Reason)
		}
	}
}

// forwardHardwareEvents injects incoming hardware events into the
// engine's pending-event queue by component name.
func (r *hfsmRuntime) forwardHardwareEvents() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case in, ok := <-r.hw.Incoming():
			if !ok {
				return
			}
			if in.Kind == hwlink.IncomingEvent {
				if err := r.engine.InjectEvent(in.Component); err != nil {
					log.Printf("hfsmctl: dropping hardware event %q: %v", in.Component, err)
				}
			}
		}
	}
}

// forwardSimData injects co-simulation data points the same way, by
// component name, letting the engine's own guards decide relevance.
func (r *hfsmRuntime) forwardSimData() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case dp, ok := <-r.sim.DataUpdates():
			if !ok {
				return
			}
			if err := r.engine.InjectEvent(dp.ActiveState); err != nil {
				log.Printf("hfsmctl: dropping co-sim data point: %v", err)
			}
		}
	}
}

func (r *hfsmRuntime) Stop() {
	r.cancel()
	if r.hw != nil {
		r.hw.Close()
	}
	if r.sim != nil {
		if r.sim.State() == cosim.Running || r.sim.State() == cosim.Paused {
			_ = r.sim.Stop()
		}
		r.sim.Shutdown()
	}
}

func loadModel(path string) (*fsm.FsmModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ir file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return fsm.DecodeModelYAML(data)
	default:
		return fsm.DecodeModelJSON(data)
	}
}

func parseOverrides(raw string) (map[string]fsm.Value, error) {
	if raw == "" {
		return nil, nil
	}
	overrides := make(map[string]fsm.Value)
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed override %q, want name=value", pair)
		}
		name, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			overrides[name] = fsm.FloatValue(f)
			continue
		}
		if b, err := strconv.ParseBool(value); err == nil {
			overrides[name] = fsm.BoolValue(b)
			continue
		}
		overrides[name] = fsm.StrValue(value)
	}
	return overrides, nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	irPath := flag.String("ir", "", "path to a JSON or YAML state machine IR file (required)")
	tickEvery := flag.Duration("tick", 200*time.Millisecond, "interval between simulation ticks")
	maxTicks := flag.Uint64("max-ticks", 0, "stop after this many ticks (0 = run until halted)")
	haltOnError := flag.Bool("halt-on-action-error", true, "halt the engine on an action error instead of logging and continuing (guard errors never halt)")
	overridesFlag := flag.String("vars", "", "comma-separated name=value initial variable overrides")
	serialPort := flag.String("serial-port", "", "optional serial device to bridge as a hardware link, e.g. /dev/ttyUSB0")
	serialBaud := flag.Int("serial-baud", 115200, "baud rate for -serial-port")
	cosimModel := flag.String("cosim-model", "", "optional co-simulation model file to load and bridge as a simulation link")
	cosimEngine := flag.String("cosim-engine", "", "co-simulation engine binary to launch (required with -cosim-model)")
	cosimArgs := flag.String("cosim-engine-args", "", "comma-separated arguments passed to -cosim-engine")
	printSnapshot := flag.Bool("print-snapshot", false, "print a final JSON status snapshot before exiting")
	flag.Parse()

	fmt.Println("hfsmctl - hierarchical state machine runner")
	fmt.Println("============================================")

	if *irPath == "" {
		log.Fatalf("hfsmctl: -ir is required")
	}

	model, err := loadModel(*irPath)
	if err != nil {
		log.Fatalf("hfsmctl: %v", err)
	}

	overrides, err := parseOverrides(*overridesFlag)
	if err != nil {
		log.Fatalf("hfsmctl: %v", err)
	}

	engineLog := logrus.StandardLogger()
	opts := []fsm.Option{
		fsm.WithHaltOnActionError(*haltOnError),
		fsm.WithLogger(engineLog),
	}
	if overrides != nil {
		opts = append(opts, fsm.WithVariableOverrides(overrides))
	}

	engine, err := fsm.NewEngine(model, opts...)
	if err != nil {
		log.Fatalf("hfsmctl: invalid model: %v", err)
	}

	runtime := newHfsmRuntime(engine, *tickEvery, *maxTicks)

	if *serialPort != "" {
		runtime.hw = hwlink.NewLink(hwlink.WithLinkLogger(engineLog))
		if err := runtime.hw.Connect(*serialPort, *serialBaud); err != nil {
			log.Fatalf("hfsmctl: connecting to %s: %v", *serialPort, err)
		}
	}

	if *cosimModel != "" {
		if *cosimEngine == "" {
			log.Fatalf("hfsmctl: -cosim-engine is required with -cosim-model")
		}
		var engineArgs []string
		if *cosimArgs != "" {
			engineArgs = strings.Split(*cosimArgs, ",")
		}
		runtime.sim = cosim.NewLink(engineLog)
		if err := runtime.sim.LoadModel(runtime.ctx, *cosimModel, cosim.DefaultConfig(), *cosimEngine, engineArgs...); err != nil {
			log.Fatalf("hfsmctl: loading co-simulation model %s: %v", *cosimModel, err)
		}
		if err := runtime.sim.StartSimulation(runtime.ctx); err != nil {
			log.Fatalf("hfsmctl: starting co-simulation: %v", err)
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("hfsmctl: shutting down")
		runtime.Stop()
		os.Exit(0)
	}()

	if err := runtime.Start(); err != nil {
		log.Fatalf("hfsmctl: %v", err)
	}

	if *printSnapshot {
		snap := engine.Snapshot()
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			log.Fatalf("hfsmctl: marshaling snapshot: %v", err)
		}
		fmt.Println(string(out))
	}
}
