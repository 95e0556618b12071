// Package telemetry is an ambient, optional concern: an operational
// journal of per-frame dispatch timing plus a debug dashboard. It is
// deliberately NOT a results store — spec.md's scope ends at "run
// inference", and this package never touches detection output. It is
// grounded on the teacher's internal/db package: golang-migrate +
// modernc sqlite for schema management, and a tsweb-gated admin mux for
// the live view.
package telemetry

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/kunsheng-liu/percept-engine/internal/engine"
	"github.com/kunsheng-liu/percept-engine/internal/logging"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal records FrameStats to a local sqlite file for offline
// inspection, independent of the dashboard's in-memory recent window.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite file at path and applies
// any pending migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %q: %w", path, err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("telemetry: load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("telemetry: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("telemetry: new migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("telemetry: migrate up: %w", err)
	}
	return nil
}

// Record inserts one frame's stats as a new row, stamped with now.
func (j *Journal) Record(stats engine.Stats, now time.Time) error {
	_, err := j.db.Exec(
		`INSERT INTO frame_stats
			(id, frame_index, tasks_emitted, tasks_run, tasks_dropped, dispatch_ms, deadline_missed, recorded_at_unix_nanos)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), stats.FrameIndex, stats.TasksEmitted, stats.TasksRun, stats.TasksDropped,
		stats.DispatchMS, boolToInt(stats.DeadlineMissed), now.UnixNano(),
	)
	if err != nil {
		logging.Warnf("telemetry: record frame %d: %v", stats.FrameIndex, err)
	}
	return err
}

// Recent returns the last n recorded frames, most recent last.
func (j *Journal) Recent(n int) ([]engine.Stats, error) {
	rows, err := j.db.Query(
		`SELECT frame_index, tasks_emitted, tasks_run, tasks_dropped, dispatch_ms, deadline_missed
		 FROM frame_stats ORDER BY recorded_at_unix_nanos DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query recent: %w", err)
	}
	defer rows.Close()

	var out []engine.Stats
	for rows.Next() {
		var s engine.Stats
		var missed int
		if err := rows.Scan(&s.FrameIndex, &s.TasksEmitted, &s.TasksRun, &s.TasksDropped, &s.DispatchMS, &missed); err != nil {
			return nil, fmt.Errorf("telemetry: scan recent row: %w", err)
		}
		s.DeadlineMissed = missed != 0
		out = append(out, s)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// Close releases the underlying sqlite connection.
func (j *Journal) Close() error { return j.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
