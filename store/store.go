// Package store keeps a local journal of program executions in SQLite:
// which programs ran, with what result, and the serialized artifact of
// each successful run.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound indicates the requested run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// Status is the terminal state of a recorded run.
type Status string

const (
	StatusOk     Status = "ok"
	StatusFailed Status = "failed"
)

// Run is one journal entry.
type Run struct {
	ID          string
	ProgramPath string
	Entrypoint  string
	Status      Status
	Error       string // empty for successful runs
	Artifact    []byte // CBOR-encoded wire.RunArtifact; nil for failures
	CreatedAt   time.Time
}

// Journal records executions in a SQLite database.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the journal at dbPath.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		program_path TEXT NOT NULL,
		entrypoint TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		artifact BLOB,
		created_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record inserts a run entry and returns its generated id.
func (j *Journal) Record(run Run) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := uuid.NewString()
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := j.db.Exec(
		`INSERT INTO runs (id, program_path, entrypoint, status, error, artifact, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, run.ProgramPath, run.Entrypoint, string(run.Status), run.Error, run.Artifact, createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	return id, nil
}

// Get fetches one run by id.
func (j *Journal) Get(id string) (*Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	row := j.db.QueryRow(
		`SELECT id, program_path, entrypoint, status, error, artifact, created_at
		 FROM runs WHERE id = ?`, id)

	var run Run
	var status string
	err := row.Scan(&run.ID, &run.ProgramPath, &run.Entrypoint, &status, &run.Error, &run.Artifact, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", id, err)
	}
	run.Status = Status(status)
	return &run, nil
}

// List returns the most recent runs, newest first, up to limit.
func (j *Journal) List(limit int) ([]Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, program_path, entrypoint, status, error, artifact, created_at
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var status string
		if err := rows.Scan(&run.ID, &run.ProgramPath, &run.Entrypoint, &status, &run.Error, &run.Artifact, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Status = Status(status)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
