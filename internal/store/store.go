package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavelanni/omrscore/internal/model"
	"github.com/pavelanni/omrscore/internal/omr"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		mode TEXT NOT NULL,
		num_questions INTEGER NOT NULL,
		sheet_name TEXT NOT NULL DEFAULT '',
		key_source TEXT NOT NULL DEFAULT 'none',
		provider TEXT NOT NULL DEFAULT '',
		total INTEGER NOT NULL DEFAULT 0,
		correct INTEGER NOT NULL DEFAULT 0,
		incorrect INTEGER NOT NULL DEFAULT 0,
		na INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS run_answers (
		run_id TEXT NOT NULL,
		question INTEGER NOT NULL,
		student TEXT NOT NULL,
		answer_key TEXT NOT NULL DEFAULT '',
		result TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, question),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun stores a run and its per-question answers.
func (s *Store) SaveRun(r model.Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var sum omr.Summary
	if r.Summary != nil {
		sum = *r.Summary
	}
	_, err = tx.Exec(
		`INSERT INTO runs (id, created_at, mode, num_questions, sheet_name, key_source, provider, total, correct, incorrect, na)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt, r.Mode, r.NumQuestions, r.SheetName, r.KeySource, r.Provider,
		sum.Total, sum.Correct, sum.Incorrect, sum.NA,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	results := make(map[int]omr.Result, len(r.Breakdown))
	for _, e := range r.Breakdown {
		results[e.Question] = e.Result
	}
	for q := 1; q <= r.NumQuestions; q++ {
		var key omr.Answer
		if r.Mode == model.ModeScored {
			key = r.CorrectAnswers.Get(q)
		}
		_, err := tx.Exec(
			`INSERT INTO run_answers (run_id, question, student, answer_key, result) VALUES (?, ?, ?, ?, ?)`,
			r.ID, q, r.StudentAnswers.Get(q), key, results[q],
		)
		if err != nil {
			return fmt.Errorf("insert answer %d: %w", q, err)
		}
	}

	return tx.Commit()
}

// GetRun returns a run with its answers and breakdown.
func (s *Store) GetRun(id string) (model.Run, error) {
	var r model.Run
	var sum omr.Summary
	err := s.db.QueryRow(
		`SELECT id, created_at, mode, num_questions, sheet_name, key_source, provider, total, correct, incorrect, na
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.CreatedAt, &r.Mode, &r.NumQuestions, &r.SheetName, &r.KeySource, &r.Provider,
		&sum.Total, &sum.Correct, &sum.Incorrect, &sum.NA)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}

	rows, err := s.db.Query(
		`SELECT question, student, answer_key, result FROM run_answers WHERE run_id = ? ORDER BY question`, id,
	)
	if err != nil {
		return r, err
	}
	defer rows.Close()

	r.StudentAnswers = make(omr.Sheet, r.NumQuestions)
	scored := r.Mode == model.ModeScored
	if scored {
		r.Summary = &sum
		r.CorrectAnswers = make(omr.Sheet, r.NumQuestions)
	}
	for rows.Next() {
		var e omr.BreakdownEntry
		if err := rows.Scan(&e.Question, &e.Student, &e.Key, &e.Result); err != nil {
			return r, err
		}
		r.StudentAnswers[e.Question] = e.Student
		if scored {
			r.CorrectAnswers[e.Question] = e.Key
			r.Breakdown = append(r.Breakdown, e)
		}
	}
	return r, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
// A limit of zero or less returns all runs.
func (s *Store) ListRuns(limit int) ([]model.RunSummary, error) {
	query := `SELECT id, created_at, mode, num_questions, sheet_name, key_source, total, correct, incorrect, na
		FROM runs ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.RunSummary
	for rows.Next() {
		var rs model.RunSummary
		var sum omr.Summary
		if err := rows.Scan(&rs.ID, &rs.CreatedAt, &rs.Mode, &rs.NumQuestions, &rs.SheetName, &rs.KeySource,
			&sum.Total, &sum.Correct, &sum.Incorrect, &sum.NA); err != nil {
			return nil, err
		}
		if rs.Mode == model.ModeScored {
			rs.Summary = &sum
		}
		runs = append(runs, rs)
	}
	return runs, rows.Err()
}

// RunCount returns the number of stored runs.
func (s *Store) RunCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}
