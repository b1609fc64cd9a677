// Package velocity turns raw surface-speed samples into a smoothed velocity
// and a cumulative displacement, and fans each update out to observers.
package velocity

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/fabric.inspect/internal/monitoring"
	"github.com/banshee-data/fabric.inspect/internal/units"
)

// DefaultWindow is the number of samples in the moving average.
const DefaultWindow = 5

// Sensor is the surface-speed sensor collaborator.
type Sensor interface {
	Start() error
	Stop() error
	// Velocity returns one instantaneous reading in the device's own units.
	Velocity() (float64, error)
}

// Observer is notified after every update with the smoothed velocity
// (length/sec) and the total displacement. Receive runs on the sampling
// goroutine and must return quickly.
type Observer interface {
	Receive(velocity, displacement float64)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(velocity, displacement float64)

func (f ObserverFunc) Receive(velocity, displacement float64) { f(velocity, displacement) }

// Config holds the tracker's per-instance parameters.
type Config struct {
	SamplingRateHz float64
	// Window defaults to DefaultWindow when zero.
	Window int
	// Units is the sensor's reporting unit (see package units); empty means
	// length per second.
	Units string
}

// Tracker filters and integrates velocity samples. It has a single writer:
// Update and the accessors are called from the sampling goroutine only.
type Tracker struct {
	sensor Sensor
	rate   float64
	window int
	units  string
	factor float64

	samples   []float64
	history   []float64
	velocity  float64
	total     float64
	seen      int64
	observers []Observer
}

// NewTracker validates cfg and returns a tracker reading from s.
func NewTracker(s Sensor, cfg Config) (*Tracker, error) {
	if cfg.SamplingRateHz <= 0 {
		return nil, fmt.Errorf("sampling rate must be positive, got %g", cfg.SamplingRateHz)
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Window < 0 {
		return nil, fmt.Errorf("window must be positive, got %d", cfg.Window)
	}
	if cfg.Units == "" {
		cfg.Units = units.MPS
	}
	factor, err := units.PerSecondFactor(cfg.Units)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		sensor:  s,
		rate:    cfg.SamplingRateHz,
		window:  cfg.Window,
		units:   cfg.Units,
		factor:  factor,
		samples: make([]float64, 0, cfg.Window+1),
		history: make([]float64, 0, cfg.Window+1),
	}, nil
}

// RegisterObserver adds obs to the notification list. Observers are called in
// registration order.
func (t *Tracker) RegisterObserver(obs Observer) {
	t.observers = append(t.observers, obs)
}

// Start starts the underlying sensor.
func (t *Tracker) Start() error {
	return t.sensor.Start()
}

// Stop stops the underlying sensor. Accumulated state is kept.
func (t *Tracker) Stop() error {
	return t.sensor.Stop()
}

// Update reads one sample, refreshes the moving average, integrates one
// sampling period of displacement and notifies observers. A failed sensor
// read leaves the tracker untouched.
func (t *Tracker) Update() error {
	raw, err := t.sensor.Velocity()
	if err != nil {
		return fmt.Errorf("failed to read velocity: %w", err)
	}
	if raw < 0 {
		monitoring.Warnf("negative velocity detected: %g %s", raw, t.units)
	}
	instant := raw * t.factor

	t.samples = appendBounded(t.samples, instant, t.window)
	t.velocity = stat.Mean(t.samples, nil)
	t.total += t.velocity / t.rate
	t.history = appendBounded(t.history, t.total, t.window)
	t.seen++

	monitoring.Debugf("total displacement: %g; moving average velocity: %g; instant velocity: %g",
		t.total, t.velocity, instant)

	for _, obs := range t.observers {
		obs.Receive(t.velocity, t.total)
	}
	return nil
}

// appendBounded appends v and drops the oldest entries beyond limit.
func appendBounded(buf []float64, v float64, limit int) []float64 {
	buf = append(buf, v)
	if over := len(buf) - limit; over > 0 {
		buf = append(buf[:0], buf[over:]...)
	}
	return buf
}

// Velocity returns the current moving-average velocity in length/sec.
func (t *Tracker) Velocity() float64 { return t.velocity }

// Displacement returns the total displacement since construction.
func (t *Tracker) Displacement() float64 { return t.total }

// DisplacementHistory returns a copy of the last Window totals, oldest first.
func (t *Tracker) DisplacementHistory() []float64 {
	return append([]float64(nil), t.history...)
}

// Window returns a copy of the samples currently averaged, oldest first.
func (t *Tracker) Window() []float64 {
	return append([]float64(nil), t.samples...)
}

// Samples returns how many samples have been processed.
func (t *Tracker) Samples() int64 { return t.seen }

// SamplingRateHz returns the configured sampling rate.
func (t *Tracker) SamplingRateHz() float64 { return t.rate }
