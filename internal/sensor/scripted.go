package sensor

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ScriptedSensor replays a fixed list of readings in a loop. It stands in for
// the serial device in dev mode and in tests.
type ScriptedSensor struct {
	mu       sync.Mutex
	readings []float64
	next     int
	reads    int
	started  bool
}

// NewScriptedSensor returns a sensor that cycles through readings.
func NewScriptedSensor(readings ...float64) *ScriptedSensor {
	if len(readings) == 0 {
		readings = []float64{0}
	}
	return &ScriptedSensor{readings: append([]float64(nil), readings...)}
}

// LoadFixtures reads one reading per line from path, in any format accepted
// by ParseReading. Blank lines and lines starting with # are skipped.
func LoadFixtures(path string) (*ScriptedSensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	defer f.Close()

	var readings []float64
	scan := bufio.NewScanner(f)
	for n := 1; scan.Scan(); n++ {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		v, err := ParseReading(line)
		if err != nil {
			return nil, fmt.Errorf("fixtures line %d: %w", n, err)
		}
		readings = append(readings, v)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("fixtures file %s has no readings", path)
	}
	return NewScriptedSensor(readings...), nil
}

func (s *ScriptedSensor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *ScriptedSensor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Velocity returns the next scripted reading.
func (s *ScriptedSensor) Velocity() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0, ErrNotStarted
	}
	v := s.readings[s.next]
	s.next = (s.next + 1) % len(s.readings)
	s.reads++
	return v, nil
}

// Reads returns how many readings have been served.
func (s *ScriptedSensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
