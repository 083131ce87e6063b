package dev

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sitewatch-dev/sitewatch/internal/build"
	"github.com/sitewatch-dev/sitewatch/internal/config"
	"github.com/sitewatch-dev/sitewatch/internal/event"
	"github.com/sitewatch-dev/sitewatch/internal/metrics"
)

// State is the orchestrator's position in the dev loop.
type State int

const (
	// Idle means no build is running and no server is up. The loop sits
	// here after a failed build, waiting for the next change.
	Idle State = iota

	// Building means a pipeline run is in flight.
	Building

	// Serving means the last build succeeded and the server is running.
	Serving
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case Serving:
		return "serving"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// BuildRunner runs the build pipeline. Satisfied by *build.Pipeline.
type BuildRunner interface {
	Run(ctx context.Context) build.Result
	RunStyle(ctx context.Context) error
}

// Spawner starts and stops the site server process. The default spawns
// the compiled server binary in its own process group.
type Spawner interface {
	Start() error
	Stop()
}

// Orchestrator drives the dev loop: build, serve, rebuild on change.
//
// A source or style change arriving mid-build cancels the run and
// starts over, so the served site never lags more than one build behind
// the newest change. A failed build drops back to Idle with the old
// server still running (or down if it never started); the next change
// tries again.
type Orchestrator struct {
	cfg      *config.Config
	bus      *event.Bus
	pipeline BuildRunner
	reload   *ReloadServer
	spawner  Spawner
	metrics  *metrics.Metrics
	logf     func(format string, args ...any)

	mu    sync.Mutex
	state State
}

// Options configures an Orchestrator.
type Options struct {
	// Pipeline overrides the default build pipeline.
	Pipeline BuildRunner

	// Reload receives browser reload pushes. Nil disables pushes.
	Reload *ReloadServer

	// Spawner overrides the default server process spawner.
	Spawner Spawner

	// Metrics overrides the process-wide metrics.
	Metrics *metrics.Metrics

	// Logf receives diagnostic output. Nil discards it.
	Logf func(format string, args ...any)
}

// NewOrchestrator creates an orchestrator for cfg, consuming change
// messages from bus.
func NewOrchestrator(cfg *config.Config, bus *event.Bus, opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		bus:      bus,
		pipeline: opts.Pipeline,
		reload:   opts.Reload,
		spawner:  opts.Spawner,
		metrics:  opts.Metrics,
		logf:     opts.Logf,
		state:    Idle,
	}
	if o.metrics == nil {
		o.metrics = metrics.Default()
	}
	if o.logf == nil {
		o.logf = func(string, ...any) {}
	}
	if o.spawner == nil {
		o.spawner = &binarySpawner{cfg: cfg, logf: o.logf}
	}
	return o
}

// State returns the current loop state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run executes the loop until shutdown or context cancellation. The
// first iteration builds unconditionally; afterwards builds are driven
// by change messages.
func (o *Orchestrator) Run(ctx context.Context) error {
	ch, unsub := o.bus.Subscribe()
	defer unsub()
	defer o.stopServer()

	dirtySrc := true
	dirtyStyle := false

	for {
		if dirtySrc {
			dirtySrc, dirtyStyle = false, false
			shutdown := o.buildAndServe(ctx, ch, &dirtySrc, &dirtyStyle)
			if shutdown || ctx.Err() != nil {
				return nil
			}
			continue
		}
		if dirtyStyle {
			dirtyStyle = false
			o.rebuildStyle(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			switch m := msg.(type) {
			case event.ShutDown:
				return nil
			case event.SrcChanged:
				dirtySrc = true
			case event.StyleChanged:
				dirtyStyle = true
			case event.Reload:
				o.pushReload(m.Reason)
			}
		}
	}
}

// buildAndServe runs one pipeline run, restarting the server on
// success. Changes arriving mid-build cancel the run and mark the loop
// dirty so it starts over.
func (o *Orchestrator) buildAndServe(ctx context.Context, ch <-chan event.Message, dirtySrc, dirtyStyle *bool) (shutdown bool) {
	o.setState(Building)
	o.logf("build: starting")

	buildCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan build.Result, 1)
	go func() {
		resultCh <- o.pipeline.Run(buildCtx)
	}()

	for {
		select {
		case <-ctx.Done():
			cancel()
			<-resultCh
			o.setState(Idle)
			return false

		case msg, ok := <-ch:
			if !ok {
				cancel()
				<-resultCh
				o.setState(Idle)
				return true
			}
			switch m := msg.(type) {
			case event.ShutDown:
				cancel()
				<-resultCh
				o.setState(Idle)
				return true
			case event.SrcChanged:
				*dirtySrc = true
				cancel()
			case event.StyleChanged:
				// The run in flight compiles a stale style entry, so it
				// is superseded just like a source change.
				*dirtySrc = true
				cancel()
			case event.Reload:
				o.pushReload(m.Reason)
			}

		case result := <-resultCh:
			switch result.Outcome {
			case build.Success:
				o.logf("build: done in %s", result.Duration.Round(time.Millisecond))
				if err := o.restartServer(); err != nil {
					o.logf("server: start failed: %v", err)
					o.notifyError(err.Error())
					o.setState(Idle)
					return false
				}
				o.setState(Serving)
				o.clearError()
				// Published rather than pushed directly so every bus
				// subscriber observes build reloads; the loop's own
				// subscription performs the browser push.
				o.bus.Publish(event.Reload{Reason: "rebuild"})
			case build.Cancelled:
				o.logf("build: cancelled")
				o.setState(Idle)
			case build.Failed:
				o.logf("build: %s stage failed: %v", result.Stage, result.Err)
				o.notifyError(fmt.Sprintf("%s: %v", result.Stage, result.Err))
				o.setState(Idle)
			}
			return false
		}
	}
}

// rebuildStyle reruns only the style stage and pushes a CSS-only
// reload, leaving the server untouched.
func (o *Orchestrator) rebuildStyle(ctx context.Context) {
	if err := o.pipeline.RunStyle(ctx); err != nil {
		o.logf("style: %v", err)
		o.notifyError(err.Error())
		return
	}
	o.clearError()
	if o.reload != nil {
		o.reload.NotifyCSS("")
	}
	o.metrics.RecordReload("style")
}

func (o *Orchestrator) restartServer() error {
	o.spawner.Stop()
	return o.spawner.Start()
}

func (o *Orchestrator) stopServer() {
	o.spawner.Stop()
}

func (o *Orchestrator) pushReload(reason string) {
	if o.reload == nil {
		return
	}
	o.reload.NotifyReload()
	o.metrics.RecordReload(reason)
	o.logf("reload: %s (%d browsers)", reason, o.reload.ClientCount())
}

func (o *Orchestrator) notifyError(msg string) {
	if o.reload != nil {
		o.reload.NotifyError(msg)
	}
}

func (o *Orchestrator) clearError() {
	if o.reload != nil {
		o.reload.ClearError()
	}
}

// binarySpawner runs the compiled server binary.
type binarySpawner struct {
	cfg  *config.Config
	logf func(format string, args ...any)

	mu   sync.Mutex
	proc *serverProcess
}

func (s *binarySpawner) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env := append(os.Environ(), s.cfg.ServerEnv(true)...)
	proc, err := startServerProcess(s.cfg.ServerBinPath(), s.cfg.Dir(), env)
	if err != nil {
		return err
	}
	s.proc = proc
	s.logf("server: started %s", s.cfg.ServerBinPath())
	return nil
}

func (s *binarySpawner) Stop() {
	s.mu.Lock()
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()

	if proc != nil {
		proc.stop()
		s.logf("server: stopped")
	}
}
