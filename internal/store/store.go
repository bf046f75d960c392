// Package store is the durable buffer between hardware modules and the API
// client: readings are appended by module ticks, snapshotted and purged by
// the uploader, and otherwise survive process restarts. Grounded on the
// WAL-mode single-writer SQLite wiring of the retrieval pack's sqlite
// package (_examples/Tutu-Engine-tutuengine/internal/infra/sqlite/db.go),
// generalized from that package's model/node_info tables to the single
// sensor_readings table named by the agent's persisted-state contract.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/errs"
)

// Reading is a single buffered sensor sample. CreatedAtMs is the capture
// timestamp recorded by the producing module; clock-offset correction is
// applied later, at upload time, not here.
type Reading struct {
	ID          int64
	SensorID    uint32
	Value       float64
	CreatedAtMs uint64
}

// Store wraps the local SQLite-backed reading queue.
type Store struct {
	db *sql.DB
}

// Open creates or opens dir/readings.db in WAL mode with a single writer
// connection, matching SQLite's single-writer constraint.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.IoInit("store: " + err.Error())
	}
	path := filepath.Join(dir, "readings.db")
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.IoInit("store: " + err.Error())
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.IoInit("store: " + err.Error())
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errs.IoInit("store: " + err.Error())
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sensor_readings (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		value      REAL NOT NULL,
		sensor_id  INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_readings_created_at ON sensor_readings(created_at)`)
	return err
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Append inserts one reading, crash-safe on return (WAL fsync per commit).
func (s *Store) Append(sensorID uint32, value float64, createdAtMs uint64) error {
	_, err := s.db.Exec(
		`INSERT INTO sensor_readings (value, sensor_id, created_at) VALUES (?, ?, ?)`,
		value, sensorID, createdAtMs,
	)
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Snapshot returns every currently buffered reading in insertion (and so
// timestamp) order. It does not remove them; call PurgeUpTo after a
// successful upload of exactly this snapshot.
func (s *Store) Snapshot() ([]Reading, error) {
	rows, err := s.db.Query(`SELECT id, value, sensor_id, created_at FROM sensor_readings ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.ID, &r.Value, &r.SensorID, &r.CreatedAtMs); err != nil {
			return nil, fmt.Errorf("store: snapshot scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PurgeUpTo deletes every reading with id <= lastID. Call this only after a
// 2xx response for the exact snapshot that included lastID, so a reading
// appended concurrently with the upload is never dropped unsent.
func (s *Store) PurgeUpTo(lastID int64) error {
	_, err := s.db.Exec(`DELETE FROM sensor_readings WHERE id <= ?`, lastID)
	if err != nil {
		return fmt.Errorf("store: purge: %w", err)
	}
	return nil
}

// PurgeAll empties the store unconditionally.
func (s *Store) PurgeAll() error {
	_, err := s.db.Exec(`DELETE FROM sensor_readings`)
	if err != nil {
		return fmt.Errorf("store: purge all: %w", err)
	}
	return nil
}
