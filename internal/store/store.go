// Package store is the flight recorder: every shield cycle and every goal
// submission is written to a local sqlite database so an incident can be
// reconstructed after the fact.
package store

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the recorder database at path and brings
// the schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recorder db: %w", err)
	}

	// A single writer keeps sqlite happy under WAL.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CycleRecord is one row of the cycle log.
type CycleRecord struct {
	Cycle          uint64
	Time           time.Time
	TrajectoryID   string
	State          string
	Safe           bool
	LTTCommitted   bool
	DeadlineMissed bool
	PathS          float64
	PathDS         float64
	Elapsed        time.Duration
	Q              []float64
	DQ             []float64
}

// RecordCycle appends one cycle to the log.
func (s *Store) RecordCycle(rec CycleRecord) error {
	q, err := json.Marshal(rec.Q)
	if err != nil {
		return err
	}
	dq, err := json.Marshal(rec.DQ)
	if err != nil {
		return err
	}
	_, err = s.Exec(`
		INSERT INTO cycles (cycle, timestamp, trajectory_id, state, safe,
			ltt_committed, deadline_missed, path_s, path_ds, elapsed_us, q, dq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Cycle, rec.Time.UnixMicro(), rec.TrajectoryID, rec.State, rec.Safe,
		rec.LTTCommitted, rec.DeadlineMissed, rec.PathS, rec.PathDS,
		rec.Elapsed.Microseconds(), string(q), string(dq))
	return err
}

// Cycles returns up to limit most recent cycle records, newest first.
func (s *Store) Cycles(limit int) ([]CycleRecord, error) {
	rows, err := s.Query(`
		SELECT cycle, timestamp, trajectory_id, state, safe,
			ltt_committed, deadline_missed, path_s, path_ds, elapsed_us, q, dq
		FROM cycles ORDER BY cycle DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCycles(rows)
}

// CyclesSince returns the cycle records recorded at or after t, oldest first.
func (s *Store) CyclesSince(t time.Time) ([]CycleRecord, error) {
	rows, err := s.Query(`
		SELECT cycle, timestamp, trajectory_id, state, safe,
			ltt_committed, deadline_missed, path_s, path_ds, elapsed_us, q, dq
		FROM cycles WHERE timestamp >= ? ORDER BY cycle ASC`, t.UnixMicro())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCycles(rows)
}

func scanCycles(rows *sql.Rows) ([]CycleRecord, error) {
	var out []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var ts, elapsedUS int64
		var q, dq string
		if err := rows.Scan(&rec.Cycle, &ts, &rec.TrajectoryID, &rec.State,
			&rec.Safe, &rec.LTTCommitted, &rec.DeadlineMissed,
			&rec.PathS, &rec.PathDS, &elapsedUS, &q, &dq); err != nil {
			return nil, err
		}
		rec.Time = time.UnixMicro(ts)
		rec.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		if err := json.Unmarshal([]byte(q), &rec.Q); err != nil {
			return nil, fmt.Errorf("corrupt q column in cycle %d: %w", rec.Cycle, err)
		}
		if err := json.Unmarshal([]byte(dq), &rec.DQ); err != nil {
			return nil, fmt.Errorf("corrupt dq column in cycle %d: %w", rec.Cycle, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GoalRecord is one goal submission, accepted or not.
type GoalRecord struct {
	ID       string
	Time     time.Time
	Accepted bool
	Q        []float64
	DQ       []float64
	Error    string
}

// RecordGoal appends one goal submission to the log.
func (s *Store) RecordGoal(rec GoalRecord) error {
	q, err := json.Marshal(rec.Q)
	if err != nil {
		return err
	}
	dq, err := json.Marshal(rec.DQ)
	if err != nil {
		return err
	}
	_, err = s.Exec(`
		INSERT INTO goals (goal_id, timestamp, accepted, q, dq, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Time.UnixMicro(), rec.Accepted, string(q), string(dq), rec.Error)
	return err
}

// Goals returns up to limit most recent goal submissions, newest first.
func (s *Store) Goals(limit int) ([]GoalRecord, error) {
	rows, err := s.Query(`
		SELECT goal_id, timestamp, accepted, q, dq, error
		FROM goals ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GoalRecord
	for rows.Next() {
		var rec GoalRecord
		var ts int64
		var q, dq string
		if err := rows.Scan(&rec.ID, &ts, &rec.Accepted, &q, &dq, &rec.Error); err != nil {
			return nil, err
		}
		rec.Time = time.UnixMicro(ts)
		if err := json.Unmarshal([]byte(q), &rec.Q); err != nil {
			return nil, fmt.Errorf("corrupt q column in goal %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(dq), &rec.DQ); err != nil {
			return nil, fmt.Errorf("corrupt dq column in goal %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
