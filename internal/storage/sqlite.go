// Package storage caches authoritative run records locally so finished
// runs stay visible when the server is unreachable.
package storage

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quarrylabs/quarry/internal/models"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMP,
		completed_at TIMESTAMP,
		error TEXT,
		table_count INTEGER NOT NULL DEFAULT 0,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		seen_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seen ON runs(seen_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun upserts a run record. Called after any authoritative refetch.
func (s *Storage) SaveRun(run *models.Run) error {
	var prompt, completion, total int
	if run.Tokens != nil {
		prompt, completion, total = run.Tokens.Prompt, run.Tokens.Completion, run.Tokens.Total
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, name, source, status, created_at, completed_at, error,
		                   table_count, prompt_tokens, completion_tokens, total_tokens, seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   source = excluded.source,
		   status = excluded.status,
		   completed_at = excluded.completed_at,
		   error = excluded.error,
		   table_count = excluded.table_count,
		   prompt_tokens = excluded.prompt_tokens,
		   completion_tokens = excluded.completion_tokens,
		   total_tokens = excluded.total_tokens,
		   seen_at = excluded.seen_at`,
		run.ID, run.Name, run.Source, run.Status, run.CreatedAt, run.CompletedAt,
		run.Error, run.TableCount, prompt, completion, total, time.Now().UTC(),
	)
	return err
}

func (s *Storage) GetRun(id string) (*models.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, name, source, status, created_at, completed_at, error,
		        table_count, prompt_tokens, completion_tokens, total_tokens
		 FROM runs WHERE id = ?`, id,
	)
	return scanRun(row)
}

func (s *Storage) ListRuns(limit int) ([]*models.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, name, source, status, created_at, completed_at, error,
		        table_count, prompt_tokens, completion_tokens, total_tokens
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Storage) DeleteRun(id string) error {
	_, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var source, errText sql.NullString
	var createdAt, completedAt sql.NullTime
	var prompt, completion, total int

	err := row.Scan(
		&run.ID, &run.Name, &source, &run.Status, &createdAt, &completedAt,
		&errText, &run.TableCount, &prompt, &completion, &total,
	)
	if err != nil {
		return nil, err
	}

	if source.Valid {
		run.Source = source.String
	}
	if errText.Valid {
		run.Error = errText.String
	}
	if createdAt.Valid {
		run.CreatedAt = createdAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if total > 0 || prompt > 0 || completion > 0 {
		run.Tokens = &models.TokenUsage{Prompt: prompt, Completion: completion, Total: total}
	}

	return &run, nil
}
