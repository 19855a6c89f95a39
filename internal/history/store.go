// Package history persists finished runs in SQLite: passing code as
// solutions and everything else as failures, keyed by artifact file name.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Solution is a run whose tests passed.
type Solution struct {
	ID        int64
	RunID     string
	FileName  string
	Language  string
	Mode      string
	Prompt    string
	Code      string
	Tests     string
	TestPlan  string
	Attempts  int
	CreatedAt time.Time
}

// Failure is a run that stopped without passing.
type Failure struct {
	ID             int64
	RunID          string
	FileName       string
	Language       string
	Mode           string
	Prompt         string
	Code           string
	Tests          string
	TestPlan       string
	TestOutput     string
	TerminalReason string
	FailureDetail  string
	Attempts       int
	CreatedAt      time.Time
}

// Store manages the SQLite database of run history
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewStore creates a new Store instance and initializes the database
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath, now: time.Now}
	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// execWithRetry executes a statement, backing off on "database is locked".
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveSuccess records a passing run and sets sol.ID.
func (s *Store) SaveSuccess(ctx context.Context, sol *Solution) error {
	if sol.CreatedAt.IsZero() {
		sol.CreatedAt = s.now().UTC()
	}

	query := `INSERT INTO code_solutions
		(run_id, file_name, language, mode, prompt, code_content, test_content, test_plan, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		sol.RunID,
		sol.FileName,
		sol.Language,
		sol.Mode,
		sol.Prompt,
		sol.Code,
		sol.Tests,
		sol.TestPlan,
		sol.Attempts,
		sol.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert code solution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	sol.ID = id
	return nil
}

// SaveFailure records a run that did not pass and sets f.ID.
func (s *Store) SaveFailure(ctx context.Context, f *Failure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}

	query := `INSERT INTO code_failures
		(run_id, file_name, language, mode, prompt, code_content, test_content, test_plan, test_output, terminal_reason, failure_detail, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		f.RunID,
		f.FileName,
		f.Language,
		f.Mode,
		f.Prompt,
		f.Code,
		f.Tests,
		f.TestPlan,
		f.TestOutput,
		f.TerminalReason,
		f.FailureDetail,
		f.Attempts,
		f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert code failure: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	f.ID = id
	return nil
}

// GetLatestSuccess returns the most recent solution for fileName, or nil
// when there is none.
func (s *Store) GetLatestSuccess(ctx context.Context, fileName string) (*Solution, error) {
	query := `SELECT id, run_id, file_name, language, mode, prompt, code_content, test_content, test_plan, attempts, created_at
		FROM code_solutions
		WHERE file_name = ?
		ORDER BY id DESC
		LIMIT 1`

	sol := &Solution{}
	var tests sql.NullString
	err := s.db.QueryRowContext(ctx, query, fileName).Scan(
		&sol.ID,
		&sol.RunID,
		&sol.FileName,
		&sol.Language,
		&sol.Mode,
		&sol.Prompt,
		&sol.Code,
		&tests,
		&sol.TestPlan,
		&sol.Attempts,
		&sol.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest solution: %w", err)
	}
	if tests.Valid {
		sol.Tests = tests.String
	}
	return sol, nil
}

// GetFailures returns failures for fileName, most recent first. A limit of
// zero or less returns all of them.
func (s *Store) GetFailures(ctx context.Context, fileName string, limit int) ([]*Failure, error) {
	query := `SELECT id, run_id, file_name, language, mode, prompt, code_content, test_content, test_plan, test_output, terminal_reason, failure_detail, attempts, created_at
		FROM code_failures
		WHERE file_name = ?
		ORDER BY id DESC`
	args := []interface{}{fileName}
	if limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var failures []*Failure
	for rows.Next() {
		f := &Failure{}
		var tests, detail sql.NullString
		err := rows.Scan(
			&f.ID,
			&f.RunID,
			&f.FileName,
			&f.Language,
			&f.Mode,
			&f.Prompt,
			&f.Code,
			&tests,
			&f.TestPlan,
			&f.TestOutput,
			&f.TerminalReason,
			&detail,
			&f.Attempts,
			&f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		if tests.Valid {
			f.Tests = tests.String
		}
		if detail.Valid {
			f.FailureDetail = detail.String
		}
		failures = append(failures, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure rows: %w", err)
	}

	return failures, nil
}

// CleanupOld removes solutions and failures older than keepDays and returns
// how many rows were deleted. keepDays <= 0 keeps everything.
func (s *Store) CleanupOld(ctx context.Context, keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().UTC().AddDate(0, 0, -keepDays)

	var total int64
	for _, table := range []string{"code_solutions", "code_failures"} {
		result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		deleted, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("get rows affected: %w", err)
		}
		total += deleted
	}

	return total, nil
}
