package db

import (
	"context"
	"errors"

	"github.com/banshee-data/fabric.inspect/internal/capture"
	"github.com/banshee-data/fabric.inspect/internal/monitoring"
)

// Sender is the ingestion client surface the dispatcher forwards to.
type Sender interface {
	SendPicturesBatch(ctx context.Context, b *capture.Batch) error
	SendFabricMovement(ctx context.Context, velocity, displacement float64) error
}

// RecordingDispatcher forwards to a Sender and journals each outcome. Journal
// errors are logged and never replace the send result. Once the journal is
// closed, sends still go through and are no longer journaled.
type RecordingDispatcher struct {
	next Sender
	db   *DB
}

func NewRecordingDispatcher(next Sender, db *DB) *RecordingDispatcher {
	return &RecordingDispatcher{next: next, db: db}
}

func (d *RecordingDispatcher) SendPicturesBatch(ctx context.Context, b *capture.Batch) error {
	err := d.next.SendPicturesBatch(ctx, b)
	if jerr := d.db.RecordBatch(b, err); jerr != nil {
		logJournalError(jerr)
	}
	return err
}

func (d *RecordingDispatcher) SendFabricMovement(ctx context.Context, velocity, displacement float64) error {
	err := d.next.SendFabricMovement(ctx, velocity, displacement)
	if jerr := d.db.RecordMovement(velocity, displacement, err); jerr != nil {
		logJournalError(jerr)
	}
	return err
}

// ReportCaptureFailure journals a capture that never reached the sender.
func (d *RecordingDispatcher) ReportCaptureFailure(_ context.Context, err error) {
	if jerr := d.db.RecordCaptureFailure(err.Error()); jerr != nil {
		logJournalError(jerr)
	}
}

func logJournalError(err error) {
	if errors.Is(err, ErrClosed) {
		monitoring.Debugf("journal: %v", err)
		return
	}
	monitoring.Logf("journal: %v", err)
}
