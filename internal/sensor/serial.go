package sensor

import (
	"bufio"
	"math"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/fabric.inspect/internal/monitoring"
)

// SerialSensor reads velocity lines from a serial device. A reader goroutine
// keeps the most recent parsable reading; Velocity returns it without
// touching the port, so a sampling tick never waits on serial I/O.
type SerialSensor struct {
	path string
	opts PortOptions
	open PortOpener

	mu       sync.Mutex
	port     SerialPorter
	done     chan struct{}
	stopping atomic.Bool

	latest  atomic.Uint64
	hasRead atomic.Bool
	lines   atomic.Int64
}

// NewSerialSensor creates a sensor for the device at path. The port is not
// opened until Start.
func NewSerialSensor(path string, opts PortOptions) *SerialSensor {
	return &SerialSensor{path: path, opts: opts, open: OpenSerialPort}
}

// WithOpener replaces the function used to open the port.
func (s *SerialSensor) WithOpener(open PortOpener) *SerialSensor {
	s.open = open
	return s
}

// Start opens the port and begins monitoring it. Starting a running sensor is
// a no-op.
func (s *SerialSensor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return nil
	}

	port, err := s.open(s.path, s.opts)
	if err != nil {
		return err
	}
	s.port = port
	s.done = make(chan struct{})
	s.stopping.Store(false)
	go s.monitor(port, s.done)

	monitoring.Logf("velocity sensor started on %s (%s)", s.path, s.opts)
	return nil
}

// monitor scans lines until the port is closed or fails.
func (s *SerialSensor) monitor(port SerialPorter, done chan struct{}) {
	defer close(done)

	scan := bufio.NewScanner(port)
	for scan.Scan() {
		if v, err := ParseReading(scan.Text()); err != nil {
			monitoring.Debugf("skipping sensor line %q: %v", scan.Text(), err)
		} else {
			s.latest.Store(math.Float64bits(v))
			s.hasRead.Store(true)
		}
		s.lines.Add(1)
	}
	if err := scan.Err(); err != nil && !s.stopping.Load() {
		monitoring.Logf("velocity sensor read failed on %s: %v", s.path, err)
	}
}

// Stop closes the port and waits for the reader goroutine to exit.
func (s *SerialSensor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}

	s.stopping.Store(true)
	err := s.port.Close()
	<-s.done
	s.port = nil
	monitoring.Logf("velocity sensor stopped on %s", s.path)
	return err
}

// Velocity returns the latest reading in the device's own units.
func (s *SerialSensor) Velocity() (float64, error) {
	s.mu.Lock()
	running := s.port != nil
	s.mu.Unlock()
	if !running {
		return 0, ErrNotStarted
	}
	if !s.hasRead.Load() {
		return 0, ErrNoReading
	}
	return math.Float64frombits(s.latest.Load()), nil
}

// Lines returns the number of lines scanned since construction.
func (s *SerialSensor) Lines() int64 {
	return s.lines.Load()
}
