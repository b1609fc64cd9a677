package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fabric.inspect/internal/monitoring"
	"github.com/banshee-data/fabric.inspect/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// fakeCamera records concurrency across the calls the guard must serialize:
// every trigger and the green collect.
type fakeCamera struct {
	openErr    error
	refuse     map[int]bool // trigger call numbers (1-based) that return false
	collectErr map[Light]error
	onGreen    func()
	delay      time.Duration

	mu       sync.Mutex
	triggers int
	lights   []Light

	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeCamera) enter() {
	n := f.active.Add(1)
	for {
		old := f.peak.Load()
		if n <= old || f.peak.CompareAndSwap(old, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeCamera) leave() { f.active.Add(-1) }

func (f *fakeCamera) Open() error { return f.openErr }

func (f *fakeCamera) Trigger() bool {
	f.enter()
	defer f.leave()
	f.mu.Lock()
	f.triggers++
	n := f.triggers
	f.mu.Unlock()
	return !f.refuse[n]
}

func (f *fakeCamera) Collect(light Light) (StereoPair, error) {
	if light == Green {
		f.enter()
		defer f.leave()
		if f.onGreen != nil {
			f.onGreen()
		}
	}
	f.mu.Lock()
	f.lights = append(f.lights, light)
	f.mu.Unlock()
	if err := f.collectErr[light]; err != nil {
		return StereoPair{}, err
	}
	pic := Picture{Pixels: []byte{byte(light)}, Shape: []int{1, 1}, ISO: 100}
	return StereoPair{Left: pic, Right: pic}, nil
}

type fakeSender struct {
	mu       sync.Mutex
	batches  []*Batch
	failures []error
	err      error
}

func (s *fakeSender) SendPicturesBatch(_ context.Context, b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return s.err
}

func (s *fakeSender) ReportCaptureFailure(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

func TestDispatch_SendsGreenThenBlue(t *testing.T) {
	cam := &fakeCamera{}
	sender := &fakeSender{}
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	c := NewCoordinator(cam, sender, clock)
	c.Receive(0.5, 25)

	require.NoError(t, c.Dispatch(context.Background()))
	require.Len(t, sender.batches, 1)

	b := sender.batches[0]
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, Green, b.Shots[0].Record.Light)
	assert.Equal(t, Blue, b.Shots[1].Record.Light)
	assert.Equal(t, 0.5, b.Shots[0].Velocity)
	assert.Equal(t, 25.0, b.Shots[0].Displacement)
	assert.Equal(t, clock.Now(), b.Shots[0].Record.CapturedAt)
	assert.Equal(t, Stats{Attempts: 1, Batches: 1}, c.Stats())
}

func TestMakeBatch_SnapshotsPerShot(t *testing.T) {
	cam := &fakeCamera{}
	c := NewCoordinator(cam, &fakeSender{}, nil)
	c.Receive(1, 10)
	cam.onGreen = func() { c.Receive(2, 20) }

	b, err := c.MakeBatch()
	require.NoError(t, err)
	assert.Equal(t, 1.0, b.Shots[0].Velocity)
	assert.Equal(t, 10.0, b.Shots[0].Displacement)
	assert.Equal(t, 2.0, b.Shots[1].Velocity)
	assert.Equal(t, 20.0, b.Shots[1].Displacement)
}

func TestDispatch_FailuresSendNothing(t *testing.T) {
	collectErr := errors.New("usb timeout")
	tests := []struct {
		name    string
		cam     *fakeCamera
		wantErr error
		lights  []Light
	}{
		{
			name:    "first trigger refused",
			cam:     &fakeCamera{refuse: map[int]bool{1: true}},
			wantErr: ErrNotTriggered,
		},
		{
			name:    "green collect fails",
			cam:     &fakeCamera{collectErr: map[Light]error{Green: collectErr}},
			wantErr: ErrPicturesNotCollected,
			lights:  []Light{Green},
		},
		{
			name:    "second trigger refused",
			cam:     &fakeCamera{refuse: map[int]bool{2: true}},
			wantErr: ErrNotTriggered,
			lights:  []Light{Green},
		},
		{
			name:    "blue collect fails",
			cam:     &fakeCamera{collectErr: map[Light]error{Blue: collectErr}},
			wantErr: ErrPicturesNotCollected,
			lights:  []Light{Green, Blue},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			c := NewCoordinator(tt.cam, sender, nil)

			err := c.Dispatch(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, sender.batches)
			assert.Len(t, sender.failures, 1)
			assert.Equal(t, tt.lights, tt.cam.lights)
			assert.Equal(t, int64(1), c.Stats().Failures)
		})
	}
}

func TestDispatch_CollectErrorIsWrapped(t *testing.T) {
	cause := errors.New("usb timeout")
	c := NewCoordinator(&fakeCamera{collectErr: map[Light]error{Blue: cause}}, &fakeSender{}, nil)
	err := c.Dispatch(context.Background())
	assert.ErrorIs(t, err, ErrPicturesNotCollected)
	assert.ErrorIs(t, err, cause)
}

func TestDispatch_SendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("503")}
	c := NewCoordinator(&fakeCamera{}, sender, nil)
	assert.Error(t, c.Dispatch(context.Background()))
	assert.Len(t, sender.batches, 1)
	assert.Empty(t, sender.failures)
}

func TestDispatch_SerializesHardwareAccess(t *testing.T) {
	cam := &fakeCamera{delay: time.Millisecond}
	sender := &fakeSender{}
	c := NewCoordinator(cam, sender, nil)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Dispatch(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), cam.peak.Load())
	assert.Len(t, sender.batches, n)
	assert.Equal(t, 2*n, cam.triggers)
	for _, b := range sender.batches {
		assert.Equal(t, Green, b.Shots[0].Record.Light)
		assert.Equal(t, Blue, b.Shots[1].Record.Light)
	}
}

func TestStart_OpenError(t *testing.T) {
	boom := errors.New("no device")
	c := NewCoordinator(&fakeCamera{openErr: boom}, &fakeSender{}, nil)
	assert.ErrorIs(t, c.Start(), boom)
}

func TestLight_String(t *testing.T) {
	assert.Equal(t, "green_light", Green.String())
	assert.Equal(t, "blue_light", Blue.String())
	assert.Equal(t, "unknown_light", Light(7).String())
}
