package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/etlrun/internal/exchange"
)

// queryTimeout bounds every single statement or transaction.
const queryTimeout = 5 * time.Second

// pragmas is appended to every DSN; modernc.org/sqlite applies them on
// each new connection.
const pragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// History records runs and their task instances.
type History interface {
	SaveRun(ctx context.Context, run RunRecord) error
	FinishRun(ctx context.Context, runID string, status RunStatus, runErr string, finishedAt time.Time) error
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	SaveTaskInstance(ctx context.Context, task TaskRecord) error
	ListTaskInstances(ctx context.Context, runID string) ([]TaskRecord, error)
}

// SQLiteStore implements exchange.Store and History using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ exchange.Store = (*SQLiteStore)(nil)
	_ History        = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&%s", dbPath, pragmas)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Two connections let a fan-out wave read while another task writes
	db.SetMaxOpenConns(2)

	return open(ctx, db)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Each call gets its own named database so stores never share state.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", uuid.NewString(), pragmas)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	// Shared-cache memory databases lock per table; one connection avoids
	// SQLITE_LOCKED between concurrent writers
	db.SetMaxOpenConns(1)

	return open(ctx, db)
}

func open(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
