package db

import (
	"fmt"

	"github.com/banshee-data/fabric.inspect/internal/capture"
)

// Movement is one journaled movement update.
type Movement struct {
	ID           int64
	RecordedUnix float64
	Velocity     float64
	Displacement float64
	Status       string
	Error        string
}

func statusOf(err error) (status, text string) {
	if err != nil {
		return StatusFailed, err.Error()
	}
	return StatusSent, ""
}

// RecordMovement journals a movement update and the outcome of sending it.
func (db *DB) RecordMovement(velocity, displacement float64, sendErr error) error {
	status, text := statusOf(sendErr)
	err := db.write(func() error {
		_, err := db.Exec(
			`INSERT INTO movements (recorded_unix, velocity, displacement, status, error) VALUES (?, ?, ?, ?, ?)`,
			db.nowUnix(), velocity, displacement, status, nullString(text),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record movement: %w", err)
	}
	return nil
}

// RecordBatch journals a picture batch and the outcome of sending it. Pixel
// data is not stored.
func (db *DB) RecordBatch(b *capture.Batch, sendErr error) error {
	status, text := statusOf(sendErr)
	green, blue := b.Shots[0], b.Shots[1]
	err := db.write(func() error {
		_, err := db.Exec(`
			INSERT OR REPLACE INTO batches (
				batch_id, recorded_unix,
				green_unix, green_velocity, green_displacement,
				blue_unix, blue_velocity, blue_displacement,
				status, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, db.nowUnix(),
			unixSeconds(green.Record.CapturedAt), green.Velocity, green.Displacement,
			unixSeconds(blue.Record.CapturedAt), blue.Velocity, blue.Displacement,
			status, nullString(text),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record batch %s: %w", b.ID, err)
	}
	return nil
}

// RecordCaptureFailure journals a capture that produced no batch.
func (db *DB) RecordCaptureFailure(reason string) error {
	err := db.write(func() error {
		_, err := db.Exec(
			`INSERT INTO capture_failures (recorded_unix, reason) VALUES (?, ?)`,
			db.nowUnix(), reason,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record capture failure: %w", err)
	}
	return nil
}

// RecentMovements returns up to n movements, newest first.
func (db *DB) RecentMovements(n int) ([]Movement, error) {
	rows, err := db.Query(`
		SELECT movement_id, recorded_unix, velocity, displacement, status, COALESCE(error, '')
		FROM movements
		ORDER BY movement_id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.RecordedUnix, &m.Velocity, &m.Displacement, &m.Status, &m.Error); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// BatchCounts is the number of journaled batches by outcome.
type BatchCounts struct {
	Sent           int `json:"sent"`
	Failed         int `json:"failed"`
	CaptureFailure int `json:"capture_failures"`
}

// BatchCount tallies journaled batches and capture failures.
func (db *DB) BatchCount() (BatchCounts, error) {
	var c BatchCounts
	err := db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(*) FROM capture_failures)
		FROM batches`, StatusSent, StatusFailed,
	).Scan(&c.Sent, &c.Failed, &c.CaptureFailure)
	if err != nil {
		return c, fmt.Errorf("failed to count batches: %w", err)
	}
	return c, nil
}
