// Package analyser runs the fixed-rate inspection loop: each tick updates the
// fabric velocity, publishes the movement and, whenever the fabric has
// advanced by one camera field of view, requests a capture.
package analyser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/fabric.inspect/internal/monitoring"
	"github.com/banshee-data/fabric.inspect/internal/timeutil"
	"github.com/banshee-data/fabric.inspect/internal/trigger"
	"github.com/banshee-data/fabric.inspect/internal/workpool"
)

var (
	// ErrAlreadyStarted is returned by Start unless the analyser is Idle.
	ErrAlreadyStarted = errors.New("analyser already started")
	// ErrNotRunning is returned by Stop on an analyser that never started.
	ErrNotRunning = errors.New("analyser not running")
)

// State is the analyser lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Tracker is the velocity source driven once per tick.
type Tracker interface {
	Start() error
	Stop() error
	Update() error
	Velocity() float64
	Displacement() float64
	SamplingRateHz() float64
}

// Coordinator takes captures. Start opens the cameras.
type Coordinator interface {
	Start() error
	Dispatch(ctx context.Context) error
}

// Publisher forwards movement updates.
type Publisher interface {
	SendFabricMovement(ctx context.Context, velocity, displacement float64) error
}

// Config holds the loop and pool settings.
type Config struct {
	VerticalFOV    float64
	PublishWorkers int
	CaptureWorkers int
	PublishQueue   int
	CaptureQueue   int
	// ShutdownGrace is how long Stop waits for queued work. Zero abandons it.
	ShutdownGrace time.Duration
}

// Analyser owns the loop goroutine and both worker pools.
type Analyser struct {
	cfg         Config
	tracker     Tracker
	coordinator Coordinator
	publisher   Publisher
	clock       timeutil.Clock
	period      time.Duration

	publish *workpool.Pool
	capture *workpool.Pool

	mu      sync.Mutex
	state   State
	running atomic.Bool
	done    chan struct{}

	frame   atomic.Int64
	ticks   atomic.Int64
	skipped atomic.Int64
}

// New builds an analyser and its pools. A nil clock uses the wall clock.
func New(cfg Config, tracker Tracker, coordinator Coordinator, publisher Publisher, clock timeutil.Clock) (*Analyser, error) {
	if tracker == nil || coordinator == nil || publisher == nil {
		return nil, errors.New("analyser: tracker, coordinator and publisher are required")
	}
	rate := tracker.SamplingRateHz()
	if rate <= 0 {
		return nil, fmt.Errorf("analyser: sampling rate must be positive, got %v", rate)
	}
	if cfg.VerticalFOV <= 0 {
		return nil, fmt.Errorf("analyser: vertical_fov must be positive, got %v", cfg.VerticalFOV)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Analyser{
		cfg:         cfg,
		tracker:     tracker,
		coordinator: coordinator,
		publisher:   publisher,
		clock:       clock,
		period:      time.Duration(float64(time.Second) / rate),
		publish:     workpool.New("publish", cfg.PublishWorkers, cfg.PublishQueue),
		capture:     workpool.New("capture", cfg.CaptureWorkers, cfg.CaptureQueue),
	}, nil
}

// Start moves Idle to Running, starts the sensor and cameras and launches the
// loop. A camera that fails to open is logged; the loop still runs.
func (a *Analyser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Idle {
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, a.state)
	}
	if err := a.tracker.Start(); err != nil {
		return fmt.Errorf("failed to start sensor: %w", err)
	}
	if err := a.coordinator.Start(); err != nil {
		monitoring.Logf("analyser: continuing without cameras: %v", err)
	}

	a.state = Running
	a.running.Store(true)
	a.done = make(chan struct{})
	go a.loop(a.done)
	monitoring.Logf("analyser: running at %.1f Hz, vertical fov %.3f", a.tracker.SamplingRateHz(), a.cfg.VerticalFOV)
	return nil
}

// Run starts the analyser and stops it when ctx is done or ttl elapses.
// A zero ttl runs until ctx is done.
func (a *Analyser) Run(ctx context.Context, ttl time.Duration) error {
	if err := a.Start(); err != nil {
		return err
	}
	var expired <-chan time.Time
	if ttl > 0 {
		expired = a.clock.After(ttl)
	}
	select {
	case <-ctx.Done():
		monitoring.Logf("analyser: stopping: %v", ctx.Err())
	case <-expired:
		monitoring.Logf("analyser: ttl of %s reached", ttl)
	}
	return a.Stop()
}

func (a *Analyser) loop(done chan struct{}) {
	defer close(done)
	for a.running.Load() {
		start := a.clock.Now()
		a.tick()
		if wait := a.period - a.clock.Since(start); wait > 0 {
			a.clock.Sleep(wait)
		}
	}
}

func (a *Analyser) tick() {
	a.ticks.Add(1)
	if err := a.tracker.Update(); err != nil {
		a.skipped.Add(1)
		monitoring.Logf("analyser: skipping tick: %v", err)
		return
	}
	velocity, displacement := a.tracker.Velocity(), a.tracker.Displacement()

	err := a.publish.Submit(func(ctx context.Context) {
		if err := a.publisher.SendFabricMovement(ctx, velocity, displacement); err != nil {
			monitoring.Logf("analyser: failed to publish movement: %v", err)
		}
	})
	if err != nil {
		monitoring.Debugf("analyser: publish not queued: %v", err)
	}

	next, fire := trigger.Decide(displacement, a.cfg.VerticalFOV, a.frame.Load())
	if !fire {
		return
	}
	a.frame.Store(next)
	monitoring.Debugf("analyser: frame %d at displacement %.4f", next, displacement)
	if err := a.capture.Submit(func(ctx context.Context) {
		_ = a.coordinator.Dispatch(ctx)
	}); err != nil {
		monitoring.Debugf("analyser: capture not queued: %v", err)
	}
}

// Stop ends the loop, stops the sensor and shuts both pools down. Stopping an
// analyser that never started returns ErrNotRunning; later calls are no-ops.
func (a *Analyser) Stop() error {
	a.mu.Lock()
	switch a.state {
	case Idle:
		a.mu.Unlock()
		return ErrNotRunning
	case Stopping, Stopped:
		a.mu.Unlock()
		return nil
	}
	a.state = Stopping
	done := a.done
	a.mu.Unlock()

	a.running.Store(false)
	if err := a.tracker.Stop(); err != nil {
		monitoring.Logf("analyser: failed to stop sensor: %v", err)
	}
	<-done

	var wg sync.WaitGroup
	for _, p := range []*workpool.Pool{a.publish, a.capture} {
		wg.Add(1)
		go func(p *workpool.Pool) {
			defer wg.Done()
			p.Shutdown(a.cfg.ShutdownGrace)
			st := p.Stats()
			monitoring.Logf("analyser: %s pool closed: %d completed, %d dropped, %d abandoned",
				p.Name(), st.Completed, st.Dropped, st.Abandoned)
		}(p)
	}
	wg.Wait()

	a.mu.Lock()
	a.state = Stopped
	a.mu.Unlock()
	monitoring.Logf("analyser: stopped after %d ticks at frame %d", a.ticks.Load(), a.frame.Load())
	return nil
}

// State returns the lifecycle state.
func (a *Analyser) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Frame returns the index of the last frame a capture was requested for.
func (a *Analyser) Frame() int64 { return a.frame.Load() }

// Ticks returns the number of loop iterations, including skipped ones.
func (a *Analyser) Ticks() int64 { return a.ticks.Load() }

// Skipped returns the number of ticks skipped on a sensor error.
func (a *Analyser) Skipped() int64 { return a.skipped.Load() }

// PoolStats returns the publish and capture pool counters.
func (a *Analyser) PoolStats() (publish, capture workpool.Stats) {
	return a.publish.Stats(), a.capture.Stats()
}
