package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run represents a row in the runs table: one resolution of a root document.
type Run struct {
	ID         int
	RunID      string // correlates the row with the run's log lines
	RootPath   string
	Status     string
	ErrorKind  string
	Error      string
	Documents  int
	StageCount int
	JobCount   int
	DurationMs int64
	Timestamp  string
}

// RecordRun inserts a run and returns its ID. A RunID is generated when r
// has none.
func (d *DB) RecordRun(r Run) (int64, error) {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	res, err := d.conn.Exec(
		`INSERT INTO runs (run_id, root_path, status, error_kind, error, documents, stage_count, job_count, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.RootPath, r.Status, nullString(r.ErrorKind), nullString(r.Error),
		r.Documents, r.StageCount, r.JobCount, r.DurationMs,
	)
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return res.LastInsertId()
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	RootPath string
	Status   string
	Limit    int
}

// ListRuns returns runs newest first.
func (d *DB) ListRuns(f RunFilter) ([]Run, error) {
	var where []string
	var args []any
	if f.RootPath != "" {
		where = append(where, "root_path = ?")
		args = append(args, f.RootPath)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	q := `SELECT id, run_id, root_path, status, error_kind, error, documents, stage_count, job_count, duration_ms, timestamp FROM runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var kind, msg sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.RootPath, &r.Status, &kind, &msg,
			&r.Documents, &r.StageCount, &r.JobCount, &r.DurationMs, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.ErrorKind = kind.String
		r.Error = msg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
