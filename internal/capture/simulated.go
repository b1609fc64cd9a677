package capture

import (
	"errors"
	"sync"
)

var errNoPendingShot = errors.New("no triggered shot to collect")

type exposure struct {
	time     float64
	aperture float64
	iso      int
}

var rigExposure = map[Light]exposure{
	Green: {time: 1.0 / 250, aperture: 4.0, iso: 100},
	Blue:  {time: 1.0 / 500, aperture: 5.6, iso: 200},
}

// SimulatedRig is a Camera producing synthetic stereo frames. Like the real
// rig it refuses a new trigger until the previous shot has been collected.
type SimulatedRig struct {
	Width     int
	Height    int
	Disparity int

	mu      sync.Mutex
	opened  bool
	pending bool
	shots   int
}

// NewSimulatedRig returns a rig producing width x height grayscale frames.
func NewSimulatedRig(width, height int) *SimulatedRig {
	if width < 1 {
		width = 64
	}
	if height < 1 {
		height = 48
	}
	return &SimulatedRig{Width: width, Height: height, Disparity: 3}
}

func (r *SimulatedRig) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = true
	return nil
}

func (r *SimulatedRig) Trigger() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened || r.pending {
		return false
	}
	r.pending = true
	r.shots++
	return true
}

func (r *SimulatedRig) Collect(light Light) (StereoPair, error) {
	r.mu.Lock()
	if !r.pending {
		r.mu.Unlock()
		return StereoPair{}, errNoPendingShot
	}
	r.pending = false
	shot := r.shots
	r.mu.Unlock()

	ex := rigExposure[light]
	return StereoPair{
		Left:  r.frame(shot, 0, ex),
		Right: r.frame(shot, r.Disparity, ex),
	}, nil
}

// Shots returns how many triggers the rig accepted.
func (r *SimulatedRig) Shots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shots
}

// frame draws horizontal stripes that scroll with each shot, offset
// horizontally by shift so the two sides of a pair differ.
func (r *SimulatedRig) frame(shot, shift int, ex exposure) Picture {
	px := make([]byte, r.Width*r.Height)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			stripe := (y + shot) / 4
			v := byte(stripe%2) * 200
			px[y*r.Width+x] = v + byte((x+shift)%32)
		}
	}
	return Picture{
		Pixels:       px,
		Shape:        []int{r.Height, r.Width},
		ExposureTime: ex.time,
		Aperture:     ex.aperture,
		ISO:          ex.iso,
	}
}
