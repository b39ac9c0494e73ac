// Package telemetry records command outcomes and sensor samples to a local
// sqlite database so field sessions can be inspected after the fact.
package telemetry

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite handle.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the telemetry database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS commands (
			id TEXT,
			wire TEXT,
			ok BOOLEAN,
			attempts INTEGER,
			elapsed_ms DOUBLE,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS gyro_samples (
			gyro_x DOUBLE, gyro_y DOUBLE, gyro_z DOUBLE,
			angle_x DOUBLE, angle_y DOUBLE, angle_z DOUBLE,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS accel_samples (
			acc_x DOUBLE, acc_y DOUBLE, acc_z DOUBLE,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db}, nil
}

// RecordCommand logs one executed command. Implements the bridge's Recorder;
// id is the command's uuid, so history rows correlate with log lines.
func (s *Store) RecordCommand(id, wire string, ok bool, attempts int, elapsed time.Duration) error {
	_, err := s.Exec(
		"INSERT INTO commands (id, wire, ok, attempts, elapsed_ms) VALUES (?, ?, ?, ?, ?)",
		id, wire, ok, attempts, float64(elapsed.Milliseconds()),
	)
	return err
}

// RecordGyro logs one gyroscope sample.
func (s *Store) RecordGyro(gx, gy, gz, ax, ay, az float64) error {
	_, err := s.Exec(
		"INSERT INTO gyro_samples (gyro_x, gyro_y, gyro_z, angle_x, angle_y, angle_z) VALUES (?, ?, ?, ?, ?, ?)",
		gx, gy, gz, ax, ay, az,
	)
	return err
}

// RecordAccel logs one accelerometer sample.
func (s *Store) RecordAccel(x, y, z float64) error {
	_, err := s.Exec(
		"INSERT INTO accel_samples (acc_x, acc_y, acc_z) VALUES (?, ?, ?)",
		x, y, z,
	)
	return err
}

// CommandRecord is one row of command history.
type CommandRecord struct {
	ID       string  `json:"id"`
	Wire     string  `json:"wire"`
	OK       bool    `json:"ok"`
	Attempts int     `json:"attempts"`
	Elapsed  float64 `json:"elapsed_ms"`
}

// RecentCommands returns up to limit most recent command outcomes.
func (s *Store) RecentCommands(limit int) ([]CommandRecord, error) {
	rows, err := s.Query(
		"SELECT id, wire, ok, attempts, elapsed_ms FROM commands ORDER BY timestamp DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var rec CommandRecord
		if err := rows.Scan(&rec.ID, &rec.Wire, &rec.OK, &rec.Attempts, &rec.Elapsed); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// AttachDebugRoutes attaches the command history endpoint to mux.
func (s *Store) AttachDebugRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial/recent", func(w http.ResponseWriter, r *http.Request) {
		recs, err := s.RecentCommands(100)
		if err != nil {
			http.Error(w, "failed to query command history", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(recs); err != nil {
			http.Error(w, "failed to encode command history", http.StatusInternalServerError)
		}
	})
}
