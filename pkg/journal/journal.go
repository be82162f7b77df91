package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/japaniel/lexigraph/pkg/export"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("journal: run not found")

// BeginRun records the start of an export and returns its id.
func BeginRun(db DBExecutor, snapshotPath string, at time.Time) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO runs (id, snapshot, started_at) VALUES (?, ?, ?)`, id, snapshotPath, at.UTC())
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// RecordFailure stores one failed unit of a run.
func RecordFailure(db DBExecutor, runID string, ue *export.UnitError, at time.Time) error {
	if ue == nil {
		return errors.New("record failure: nil unit error")
	}
	msg := ""
	if ue.Err != nil {
		msg = ue.Err.Error()
	}
	_, err := db.Exec(
		`INSERT INTO failures (run_id, sense_id, op, rel_type, target, error, at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, ue.SenseID, ue.Op.String(), ue.RelType, ue.Target, msg, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", ue.SenseID, err)
	}
	return nil
}

// FinishRun stores the end time and counters of a run.
func FinishRun(db DBExecutor, runID string, sum export.Summary, at time.Time) error {
	res, err := db.Exec(
		`UPDATE runs SET finished_at = ?, processed = ?, failed_units = ? WHERE id = ?`,
		at.UTC(), sum.Processed, sum.UnitsFailed, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// FailedSenses returns the distinct, sorted sense ids with a failure in the run.
func FailedSenses(db DBExecutor, runID string) ([]string, error) {
	var id string
	if err := db.QueryRow(`SELECT id FROM runs WHERE id = ?`, runID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
		}
		return nil, fmt.Errorf("lookup run: %w", err)
	}

	rows, err := db.Query(`SELECT DISTINCT sense_id FROM failures WHERE run_id = ? ORDER BY sense_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Run is a recorded export run.
type Run struct {
	ID          string
	Snapshot    string
	StartedAt   time.Time
	FinishedAt  sql.NullTime
	Processed   int
	FailedUnits int
}

// GetRun loads one run.
func GetRun(db DBExecutor, runID string) (Run, error) {
	var r Run
	err := db.QueryRow(
		`SELECT id, snapshot, started_at, finished_at, processed, failed_units FROM runs WHERE id = ?`, runID,
	).Scan(&r.ID, &r.Snapshot, &r.StartedAt, &r.FinishedAt, &r.Processed, &r.FailedUnits)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// Journal persists export runs and their failed units.
type Journal struct {
	DB  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the journal at path.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal: empty path")
	}
	conn, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return &Journal{DB: conn, now: time.Now}, nil
}

func (j *Journal) BeginRun(snapshotPath string) (string, error) {
	return BeginRun(j.DB, snapshotPath, j.now())
}

func (j *Journal) FinishRun(runID string, sum export.Summary) error {
	return FinishRun(j.DB, runID, sum, j.now())
}

func (j *Journal) FailedSenses(runID string) ([]string, error) {
	return FailedSenses(j.DB, runID)
}

// Sink returns an export.FailureSink that records failures under runID.
func (j *Journal) Sink(runID string) export.FailureSink {
	return &runSink{j: j, runID: runID}
}

func (j *Journal) Close() error { return j.DB.Close() }

type runSink struct {
	j     *Journal
	runID string
}

func (s *runSink) RecordFailure(ctx context.Context, ue *export.UnitError) error {
	return RecordFailure(s.j.DB, s.runID, ue, s.j.now())
}
