// Package capture coordinates the stereo camera rig: two lit shots (green,
// then blue) taken back to back and assembled into a batch for ingestion.
package capture

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotTriggered is returned when the camera refuses a trigger.
	ErrNotTriggered = errors.New("camera did not trigger")
	// ErrPicturesNotCollected is returned when a triggered shot cannot be retrieved.
	ErrPicturesNotCollected = errors.New("pictures not collected")
)

// Light identifies the illumination used for a shot.
type Light int

const (
	Green Light = iota
	Blue
)

func (l Light) String() string {
	switch l {
	case Green:
		return "green_light"
	case Blue:
		return "blue_light"
	default:
		return "unknown_light"
	}
}

// Picture is a single camera frame with its exposure settings.
type Picture struct {
	Pixels       []byte
	Shape        []int
	ExposureTime float64
	Aperture     float64
	ISO          int
}

// StereoPair is the left and right frame of one shot.
type StereoPair struct {
	Left  Picture
	Right Picture
}

// PictureRecord is a collected shot tagged with its light and capture time.
type PictureRecord struct {
	Light      Light
	Left       Picture
	Right      Picture
	CapturedAt time.Time
}

// Shot pairs a record with the fabric movement observed when it was triggered.
type Shot struct {
	Record       PictureRecord
	Velocity     float64
	Displacement float64
}

// Batch holds exactly two shots: green first, blue second.
type Batch struct {
	ID    string
	Shots [2]Shot
}

// Camera is the stereo rig. Trigger fires both sensors; Collect retrieves the
// frames of the last triggered shot.
type Camera interface {
	Open() error
	Trigger() bool
	Collect(light Light) (StereoPair, error)
}

// BatchSender forwards completed batches.
type BatchSender interface {
	SendPicturesBatch(ctx context.Context, b *Batch) error
}

// FailureReporter is optionally implemented by a BatchSender that wants to
// hear about batches that never made it to the sender.
type FailureReporter interface {
	ReportCaptureFailure(ctx context.Context, err error)
}
