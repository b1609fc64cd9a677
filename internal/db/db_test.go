package db

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/fabric.inspect/internal/capture"
	"github.com/banshee-data/fabric.inspect/internal/monitoring"
	"github.com/banshee-data/fabric.inspect/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func openTestDB(t *testing.T) (*DB, *timeutil.MockClock) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	db.WithClock(clock)
	return db, clock
}

func testBatch(id string) *capture.Batch {
	at := time.Unix(1700000100, 0)
	return &capture.Batch{
		ID: id,
		Shots: [2]capture.Shot{
			{Record: capture.PictureRecord{Light: capture.Green, CapturedAt: at}, Velocity: 1, Displacement: 25},
			{Record: capture.PictureRecord{Light: capture.Blue, CapturedAt: at.Add(time.Second)}, Velocity: 1.1, Displacement: 25.02},
		},
	}
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db, _ := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", version, dirty)
	}
	// Re-running is a no-op.
	if err := db.MigrateUp(); err != nil {
		t.Errorf("second MigrateUp: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RecordMovement(1, 2, nil); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, err := db.RecentMovements(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("got %d movements after reopen, want 1", len(got))
	}
	if db.Path() != path {
		t.Errorf("Path = %q", db.Path())
	}
}

func TestRecentMovements(t *testing.T) {
	db, clock := openTestDB(t)

	for i := 1; i <= 3; i++ {
		var sendErr error
		if i == 2 {
			sendErr = errors.New("503")
		}
		if err := db.RecordMovement(float64(i), float64(i)*0.5, sendErr); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Second)
	}

	got, err := db.RecentMovements(2)
	if err != nil {
		t.Fatal(err)
	}
	want := []Movement{
		{RecordedUnix: 1700000002, Velocity: 3, Displacement: 1.5, Status: StatusSent},
		{RecordedUnix: 1700000001, Velocity: 2, Displacement: 1, Status: StatusFailed, Error: "503"},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Movement{}, "ID")); diff != "" {
		t.Errorf("RecentMovements mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchCount(t *testing.T) {
	db, _ := openTestDB(t)

	if err := db.RecordBatch(testBatch("a"), nil); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordBatch(testBatch("b"), errors.New("timeout")); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordCaptureFailure("camera did not trigger"); err != nil {
		t.Fatal(err)
	}

	got, err := db.BatchCount()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(BatchCounts{Sent: 1, Failed: 1, CaptureFailure: 1}, got); diff != "" {
		t.Errorf("BatchCount mismatch (-want +got):\n%s", diff)
	}

	var disp float64
	if err := db.QueryRow(`SELECT blue_displacement FROM batches WHERE batch_id = 'a'`).Scan(&disp); err != nil {
		t.Fatal(err)
	}
	if disp != 25.02 {
		t.Errorf("blue_displacement = %v, want 25.02", disp)
	}
}

func TestBatchCount_Empty(t *testing.T) {
	db, _ := openTestDB(t)
	got, err := db.BatchCount()
	if err != nil {
		t.Fatal(err)
	}
	if got != (BatchCounts{}) {
		t.Errorf("got %+v, want zero counts", got)
	}
}

type stubSender struct {
	err       error
	batches   int
	movements int
}

func (s *stubSender) SendPicturesBatch(context.Context, *capture.Batch) error {
	s.batches++
	return s.err
}

func (s *stubSender) SendFabricMovement(context.Context, float64, float64) error {
	s.movements++
	return s.err
}

func TestRecordingDispatcher(t *testing.T) {
	db, _ := openTestDB(t)
	boom := errors.New("connection refused")
	next := &stubSender{err: boom}
	d := NewRecordingDispatcher(next, db)
	ctx := context.Background()

	if err := d.SendPicturesBatch(ctx, testBatch("x")); !errors.Is(err, boom) {
		t.Errorf("SendPicturesBatch err = %v, want send error passed through", err)
	}
	if err := d.SendFabricMovement(ctx, 1, 2); !errors.Is(err, boom) {
		t.Errorf("SendFabricMovement err = %v", err)
	}
	d.ReportCaptureFailure(ctx, capture.ErrNotTriggered)

	if next.batches != 1 || next.movements != 1 {
		t.Errorf("forwarded %d batches %d movements, want 1 and 1", next.batches, next.movements)
	}
	counts, err := db.BatchCount()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(BatchCounts{Failed: 1, CaptureFailure: 1}, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	moves, err := db.RecentMovements(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(moves) != 1 || moves[0].Status != StatusFailed || moves[0].Error != boom.Error() {
		t.Errorf("unexpected movement journal: %+v", moves)
	}
}

func TestRecordingDispatcher_ImplementsFailureReporter(t *testing.T) {
	var _ capture.FailureReporter = (*RecordingDispatcher)(nil)
	var _ capture.BatchSender = (*RecordingDispatcher)(nil)
}

func TestRecordingDispatcher_AfterCloseForwardsQuietly(t *testing.T) {
	db, _ := openTestDB(t)
	next := &stubSender{}
	d := NewRecordingDispatcher(next, db)
	ctx := context.Background()

	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(nil)

	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.SendPicturesBatch(ctx, testBatch("late")); err != nil {
		t.Errorf("SendPicturesBatch err = %v", err)
	}
	if err := d.SendFabricMovement(ctx, 1, 2); err != nil {
		t.Errorf("SendFabricMovement err = %v", err)
	}
	d.ReportCaptureFailure(ctx, capture.ErrNotTriggered)

	if next.batches != 1 || next.movements != 1 {
		t.Errorf("forwarded %d batches %d movements, want 1 and 1", next.batches, next.movements)
	}
	if len(logged) != 0 {
		t.Errorf("unexpected log output after close: %q", logged)
	}
}

func TestDB_WritesAfterClose(t *testing.T) {
	db, _ := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := db.RecordMovement(1, 1, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("RecordMovement err = %v, want ErrClosed", err)
	}
	if err := db.RecordBatch(testBatch("x"), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("RecordBatch err = %v, want ErrClosed", err)
	}
	if err := db.RecordCaptureFailure("timeout"); !errors.Is(err, ErrClosed) {
		t.Errorf("RecordCaptureFailure err = %v, want ErrClosed", err)
	}
}

func TestAdminRoutes_Backup(t *testing.T) {
	db, _ := openTestDB(t)
	if err := db.RecordMovement(1, 1, nil); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes: %v", err)
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/backup")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	const header = "SQLite format 3\x00"
	if len(data) < len(header) || string(data[:len(header)]) != header {
		t.Errorf("backup is not a sqlite file (%d bytes)", len(data))
	}
}
