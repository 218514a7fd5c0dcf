// Package archive persists published frames locally. Network delivery is
// best-effort with no queue, so the archive is what makes a collection run
// recoverable: every frame that passes the gate is recorded here whether or
// not the broker accepted it.
package archive

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tripwire-data/telematics.report/internal/monitoring"
	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

type Archive struct {
	*sql.DB
}

// Open opens (creating if needed) the frame archive at path. Use ":memory:"
// for tests.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS frames (
			timestamp BIGINT,
			session_id TEXT,
			label INTEGER,
			acc_x DOUBLE, acc_y DOUBLE, acc_z DOUBLE, acc_mag DOUBLE,
			gyro_x DOUBLE, gyro_y DOUBLE, gyro_z DOUBLE, gyro_mag DOUBLE,
			rot_vec_x DOUBLE, rot_vec_y DOUBLE, rot_vec_z DOUBLE, rot_vec_w DOUBLE,
			latitude DOUBLE, longitude DOUBLE, speed DOUBLE, altitude DOUBLE
		);
		CREATE INDEX IF NOT EXISTS idx_frames_session ON frames(session_id, timestamp);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	return &Archive{db}, nil
}

// RecordFrame inserts one frame.
func (a *Archive) RecordFrame(f telemetry.Frame) error {
	_, err := a.Exec(`
		INSERT INTO frames (
			timestamp, session_id, label,
			acc_x, acc_y, acc_z, acc_mag,
			gyro_x, gyro_y, gyro_z, gyro_mag,
			rot_vec_x, rot_vec_y, rot_vec_z, rot_vec_w,
			latitude, longitude, speed, altitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Timestamp, f.SessionID, f.Label,
		f.AccX, f.AccY, f.AccZ, f.AccMag,
		f.GyroX, f.GyroY, f.GyroZ, f.GyroMag,
		f.RotVecX, f.RotVecY, f.RotVecZ, f.RotVecW,
		f.Latitude, f.Longitude, f.Speed, f.Altitude,
	)
	return err
}

// Publish records a frame, logging rather than propagating failures so the
// archive can sit on the scheduler's publish path next to the transport.
func (a *Archive) Publish(f telemetry.Frame) {
	if err := a.RecordFrame(f); err != nil {
		monitoring.Logf("archive: failed to record frame: %v", err)
	}
}

// Frames returns the most recent frames, newest first, up to limit.
func (a *Archive) Frames(limit int) ([]telemetry.Frame, error) {
	rows, err := a.Query(`
		SELECT timestamp, session_id, label,
			acc_x, acc_y, acc_z, acc_mag,
			gyro_x, gyro_y, gyro_z, gyro_mag,
			rot_vec_x, rot_vec_y, rot_vec_z, rot_vec_w,
			latitude, longitude, speed, altitude
		FROM frames ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []telemetry.Frame
	for rows.Next() {
		var f telemetry.Frame
		if err := rows.Scan(
			&f.Timestamp, &f.SessionID, &f.Label,
			&f.AccX, &f.AccY, &f.AccZ, &f.AccMag,
			&f.GyroX, &f.GyroY, &f.GyroZ, &f.GyroMag,
			&f.RotVecX, &f.RotVecY, &f.RotVecZ, &f.RotVecW,
			&f.Latitude, &f.Longitude, &f.Speed, &f.Altitude,
		); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// SessionFrames returns every frame of one session in publish order.
func (a *Archive) SessionFrames(sessionID string) ([]telemetry.Frame, error) {
	rows, err := a.Query(`
		SELECT timestamp, session_id, label,
			acc_x, acc_y, acc_z, acc_mag,
			gyro_x, gyro_y, gyro_z, gyro_mag,
			rot_vec_x, rot_vec_y, rot_vec_z, rot_vec_w,
			latitude, longitude, speed, altitude
		FROM frames WHERE session_id = ? ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []telemetry.Frame
	for rows.Next() {
		var f telemetry.Frame
		if err := rows.Scan(
			&f.Timestamp, &f.SessionID, &f.Label,
			&f.AccX, &f.AccY, &f.AccZ, &f.AccMag,
			&f.GyroX, &f.GyroY, &f.GyroZ, &f.GyroMag,
			&f.RotVecX, &f.RotVecY, &f.RotVecZ, &f.RotVecW,
			&f.Latitude, &f.Longitude, &f.Speed, &f.Altitude,
		); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Sessions lists distinct session IDs present in the archive, newest first.
func (a *Archive) Sessions() ([]string, error) {
	rows, err := a.Query(`SELECT session_id FROM frames GROUP BY session_id ORDER BY MAX(timestamp) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
