// Package ledger keeps a SQLite history of runs: which groups were produced
// and which evidence artifacts were missing.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// DefaultPath is where the CLI keeps the ledger unless told otherwise.
const DefaultPath = ".hcletter/ledger.db"

// Run statuses.
const (
	StatusRunning  = "running"
	StatusOK       = "ok"
	StatusWarnings = "warnings"
	StatusFailed   = "failed"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// Run is one invocation of the tool.
type Run struct {
	ID         string
	Input      string
	Policy     string
	Status     string
	StartedAt  string
	FinishedAt string
	Groups     int
	Missing    int
}

// MissingArtifact is an evidence file that could not be retrieved.
type MissingArtifact struct {
	Seq      int
	Kind     string
	URL      string
	Attempts int
	Cause    string
}

// Group is the outcome of one group of a run.
type Group struct {
	ID        int64
	Case      string
	CaseIndex int // position of the case in the case file
	Index     int
	Dir       string
	Matches   int
	Status    string
	Err       string
	Missing   []MissingArtifact
}

// Ledger is the SQLite-backed run history. Safe for concurrent use.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path, creating its directory.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; groups record concurrently
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	if _, err := l.db.Exec(schemaV1); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var v int
	err := l.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := l.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("unknown ledger schema version %d", v)
	}
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// StartRun records a new run and returns its id.
func (l *Ledger) StartRun(input, policy string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.Exec(
		"INSERT INTO runs(id, input, policy, status, started_at) VALUES(?, ?, ?, ?, ?)",
		id, input, policy, StatusRunning, nowUTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's final status.
func (l *Ledger) FinishRun(runID, status string) error {
	res, err := l.db.Exec("UPDATE runs SET status = ?, finished_at = ? WHERE id = ?", status, nowUTC(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}
	return nil
}

// RecordGroup stores a group outcome and its missing artifacts atomically.
func (l *Ledger) RecordGroup(runID string, g Group) (int64, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(
		`INSERT INTO group_outcomes(run_id, case_name, case_index, group_index, dir, matches, missing, status, error, recorded_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, g.Case, g.CaseIndex, g.Index, g.Dir, g.Matches, len(g.Missing), g.Status,
		sql.NullString{String: g.Err, Valid: g.Err != ""}, nowUTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("group id: %w", err)
	}
	for _, m := range g.Missing {
		if _, err := tx.Exec(
			"INSERT INTO missing_artifacts(group_id, match_seq, kind, url, attempts, cause) VALUES(?, ?, ?, ?, ?, ?)",
			id, m.Seq, m.Kind, m.URL, m.Attempts, m.Cause,
		); err != nil {
			return 0, fmt.Errorf("insert missing artifact: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit group: %w", err)
	}
	return id, nil
}

// Runs lists the most recent runs, newest first. limit <= 0 means all.
func (l *Ledger) Runs(limit int) ([]Run, error) {
	q := `SELECT r.id, r.input, r.policy, r.status, r.started_at, r.finished_at,
	             COUNT(g.id), COALESCE(SUM(g.missing), 0)
	      FROM runs r LEFT JOIN group_outcomes g ON g.run_id = r.id
	      GROUP BY r.id
	      ORDER BY r.started_at DESC, r.rowid DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.Input, &r.Policy, &r.Status, &r.StartedAt, &finished, &r.Groups, &r.Missing); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.FinishedAt = nullStr(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Groups returns the groups of a run with their missing artifacts, in case file order.
func (l *Ledger) Groups(runID string) ([]Group, error) {
	rows, err := l.db.Query(
		`SELECT id, case_name, case_index, group_index, dir, matches, status, error
		 FROM group_outcomes WHERE run_id = ? ORDER BY case_index, group_index, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	var out []Group
	for rows.Next() {
		var g Group
		var errStr sql.NullString
		if err := rows.Scan(&g.ID, &g.Case, &g.CaseIndex, &g.Index, &g.Dir, &g.Matches, &g.Status, &errStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.Err = nullStr(errStr)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		missing, err := l.missing(out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Missing = missing
	}
	return out, nil
}

func (l *Ledger) missing(groupID int64) ([]MissingArtifact, error) {
	rows, err := l.db.Query(
		`SELECT match_seq, kind, url, attempts, cause FROM missing_artifacts
		 WHERE group_id = ? ORDER BY match_seq, rowid`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list missing artifacts: %w", err)
	}
	defer rows.Close()
	var out []MissingArtifact
	for rows.Next() {
		var m MissingArtifact
		if err := rows.Scan(&m.Seq, &m.Kind, &m.URL, &m.Attempts, &m.Cause); err != nil {
			return nil, fmt.Errorf("scan missing artifact: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
