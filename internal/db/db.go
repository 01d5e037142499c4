// Package db provides sqlite storage for touch sessions: per-cycle
// statistics, calibration events and optionally the raw frames themselves so
// a bench run can be replayed offline through the conditioning pipeline.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the sqlite database at path and ensures
// the baseline schema exists.
func NewDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// sqlite allows one writer; the recorder goroutine is effectively the
	// only writer but the monitor reads concurrently
	if _, err := sqldb.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	if _, err := sqldb.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			matrix_rows       INTEGER NOT NULL,
			matrix_cols       INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS calibration_events (
			event_id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT NOT NULL,
			duration_frames   INTEGER NOT NULL,
			requested_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at      TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS cycle_stats (
			session_id        TEXT NOT NULL,
			cycle             BIGINT NOT NULL,
			vmin              DOUBLE,
			vmax              DOUBLE,
			peak_cell         INTEGER,
			quiet             INTEGER,
			threshold_min     DOUBLE,
			threshold_max     DOUBLE,
			recorded_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_stats_session ON cycle_stats(session_id, cycle);
		CREATE TABLE IF NOT EXISTS raw_frames (
			session_id        TEXT NOT NULL,
			cycle             BIGINT NOT NULL,
			readings          BLOB NOT NULL,
			recorded_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_raw_frames_session ON raw_frames(session_id, cycle);
	`); err != nil {
		return nil, err
	}

	return &DB{DB: sqldb, path: path}, nil
}

// BeginSession records the start of a capture session and returns its ID.
func (db *DB) BeginSession(rows, cols int) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		"INSERT INTO sessions (session_id, matrix_rows, matrix_cols) VALUES (?, ?, ?)",
		id, rows, cols,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Session describes one capture session.
type Session struct {
	ID        string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
}

// Sessions returns the most recent capture sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		"SELECT session_id, started_at, matrix_rows, matrix_cols FROM sessions ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.Rows, &s.Cols); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SessionGeometry returns the matrix dimensions recorded for a session.
func (db *DB) SessionGeometry(sessionID string) (rows, cols int, err error) {
	err = db.QueryRow(
		"SELECT matrix_rows, matrix_cols FROM sessions WHERE session_id = ?",
		sessionID,
	).Scan(&rows, &cols)
	if err != nil {
		return 0, 0, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return rows, cols, nil
}

// RecordCalibrationRequested inserts a calibration event and returns its ID
// so completion can be recorded later.
func (db *DB) RecordCalibrationRequested(sessionID string, durationFrames int) (int64, error) {
	res, err := db.Exec(
		"INSERT INTO calibration_events (session_id, duration_frames) VALUES (?, ?)",
		sessionID, durationFrames,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordCalibrationCompleted marks the most recent open calibration event of
// the session as completed.
func (db *DB) RecordCalibrationCompleted(sessionID string) error {
	_, err := db.Exec(`
		UPDATE calibration_events SET completed_at = CURRENT_TIMESTAMP
		WHERE event_id = (
			SELECT event_id FROM calibration_events
			WHERE session_id = ? AND completed_at IS NULL
			ORDER BY requested_at DESC LIMIT 1
		)`, sessionID)
	return err
}

// CycleStat is one row of per-cycle diagnostics.
type CycleStat struct {
	SessionID    string  `json:"session_id"`
	Cycle        int64   `json:"cycle"`
	VMin         float64 `json:"vmin"`
	VMax         float64 `json:"vmax"`
	PeakCell     int     `json:"peak_cell"`
	Quiet        bool    `json:"quiet"`
	ThresholdMin float64 `json:"threshold_min"`
	ThresholdMax float64 `json:"threshold_max"`
}

// RecordCycleStat stores the diagnostics of one conditioning cycle.
func (db *DB) RecordCycleStat(s CycleStat) error {
	_, err := db.Exec(
		`INSERT INTO cycle_stats (session_id, cycle, vmin, vmax, peak_cell, quiet, threshold_min, threshold_max)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.Cycle, s.VMin, s.VMax, s.PeakCell, s.Quiet, s.ThresholdMin, s.ThresholdMax,
	)
	return err
}

// CycleStats returns up to limit recent cycles of a session, oldest first.
func (db *DB) CycleStats(sessionID string, limit int) ([]CycleStat, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(
		`SELECT session_id, cycle, vmin, vmax, peak_cell, quiet, threshold_min, threshold_max
		 FROM cycle_stats WHERE session_id = ? ORDER BY cycle ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []CycleStat
	for rows.Next() {
		var s CycleStat
		if err := rows.Scan(&s.SessionID, &s.Cycle, &s.VMin, &s.VMax, &s.PeakCell, &s.Quiet, &s.ThresholdMin, &s.ThresholdMax); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// RawFrame is one recorded frame, still in the controller's wire encoding.
type RawFrame struct {
	Cycle    int64
	Readings []byte
}

// RecordRawFrame stores one frame blob for later replay.
func (db *DB) RecordRawFrame(sessionID string, cycle int64, readings []byte) error {
	_, err := db.Exec(
		"INSERT INTO raw_frames (session_id, cycle, readings) VALUES (?, ?, ?)",
		sessionID, cycle, readings,
	)
	return err
}

// RawFrames returns all recorded frames of a session in cycle order.
func (db *DB) RawFrames(sessionID string) ([]RawFrame, error) {
	rows, err := db.Query(
		"SELECT cycle, readings FROM raw_frames WHERE session_id = ? ORDER BY cycle ASC",
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []RawFrame
	for rows.Next() {
		var f RawFrame
		if err := rows.Scan(&f.Cycle, &f.Readings); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}
