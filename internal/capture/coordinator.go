package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/fabric.inspect/internal/monitoring"
	"github.com/banshee-data/fabric.inspect/internal/timeutil"
)

// Stats counts capture outcomes.
type Stats struct {
	Attempts int64 `json:"attempts"`
	Batches  int64 `json:"batches"`
	Failures int64 `json:"failures"`
}

// Coordinator serializes access to the camera and turns each capture request
// into a two-shot batch. It observes the velocity tracker so every shot carries
// the movement seen when it was triggered.
type Coordinator struct {
	camera Camera
	sender BatchSender
	clock  timeutil.Clock

	// guard covers the hardware sequence from the first trigger to the second.
	guard sync.Mutex

	snapMu       sync.Mutex
	velocity     float64
	displacement float64

	attempts atomic.Int64
	batches  atomic.Int64
	failures atomic.Int64
}

// NewCoordinator builds a coordinator. A nil clock uses the wall clock.
func NewCoordinator(camera Camera, sender BatchSender, clock timeutil.Clock) *Coordinator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Coordinator{camera: camera, sender: sender, clock: clock}
}

// Start opens the camera.
func (c *Coordinator) Start() error {
	if err := c.camera.Open(); err != nil {
		monitoring.Logf("capture: failed to open cameras: %v", err)
		return fmt.Errorf("open cameras: %w", err)
	}
	return nil
}

// Receive records the latest movement values.
func (c *Coordinator) Receive(velocity, displacement float64) {
	c.snapMu.Lock()
	c.velocity = velocity
	c.displacement = displacement
	c.snapMu.Unlock()
}

func (c *Coordinator) snapshot() (float64, float64) {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.velocity, c.displacement
}

// MakeBatch takes a green shot then a blue shot. The guard is released as
// soon as the second trigger returns; the blue frames are collected outside it.
func (c *Coordinator) MakeBatch() (*Batch, error) {
	c.attempts.Add(1)

	c.guard.Lock()
	greenVel, greenDisp := c.snapshot()
	if !c.camera.Trigger() {
		c.guard.Unlock()
		return nil, fmt.Errorf("%s: %w", Green, ErrNotTriggered)
	}
	green, err := c.camera.Collect(Green)
	if err != nil {
		c.guard.Unlock()
		return nil, fmt.Errorf("%s: %w: %w", Green, ErrPicturesNotCollected, err)
	}
	greenAt := c.clock.Now()

	blueVel, blueDisp := c.snapshot()
	triggered := c.camera.Trigger()
	c.guard.Unlock()
	if !triggered {
		return nil, fmt.Errorf("%s: %w", Blue, ErrNotTriggered)
	}
	blue, err := c.camera.Collect(Blue)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", Blue, ErrPicturesNotCollected, err)
	}
	blueAt := c.clock.Now()

	return &Batch{
		ID: uuid.New().String(),
		Shots: [2]Shot{
			{
				Record:       PictureRecord{Light: Green, Left: green.Left, Right: green.Right, CapturedAt: greenAt},
				Velocity:     greenVel,
				Displacement: greenDisp,
			},
			{
				Record:       PictureRecord{Light: Blue, Left: blue.Left, Right: blue.Right, CapturedAt: blueAt},
				Velocity:     blueVel,
				Displacement: blueDisp,
			},
		},
	}, nil
}

// Dispatch makes a batch and forwards it. Capture failures are logged and no
// request is sent. The returned error is informational; callers on the
// capture pool ignore it.
func (c *Coordinator) Dispatch(ctx context.Context) error {
	batch, err := c.MakeBatch()
	if err != nil {
		c.failures.Add(1)
		monitoring.Logf("capture: batch dropped: %v", err)
		if r, ok := c.sender.(FailureReporter); ok {
			r.ReportCaptureFailure(ctx, err)
		}
		return err
	}
	c.batches.Add(1)
	monitoring.Debugf("capture: batch %s ready (displacement %.4f)", batch.ID, batch.Shots[0].Displacement)
	if err := c.sender.SendPicturesBatch(ctx, batch); err != nil {
		monitoring.Logf("capture: failed to send batch %s: %v", batch.ID, err)
		return fmt.Errorf("send batch %s: %w", batch.ID, err)
	}
	return nil
}

// Stats returns capture counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Attempts: c.attempts.Load(),
		Batches:  c.batches.Load(),
		Failures: c.failures.Load(),
	}
}
