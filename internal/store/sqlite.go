package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Exports ---

func (s *SQLiteStore) RecordExport(ctx context.Context, rec *ExportRecord) error {
	if rec.ID == "" {
		rec.ID = newULID()
	}
	if rec.TriggeredAt.IsZero() {
		rec.TriggeredAt = time.Now().UTC()
	}

	groupJSON, err := json.Marshal(rec.GroupIDs)
	if err != nil {
		groupJSON = []byte("[]")
	}
	statusJSON, err := json.Marshal(rec.Statuses)
	if err != nil {
		statusJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exports (id, filename, url, row_count, group_ids, statuses, triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, rec.URL, rec.RowCount,
		string(groupJSON), string(statusJSON), rec.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LastExport(ctx context.Context) (*ExportRecord, error) {
	rec := &ExportRecord{}
	var groupJSON, statusJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, url, row_count, group_ids, statuses, triggered_at
		FROM exports ORDER BY triggered_at DESC, id DESC LIMIT 1`,
	).Scan(&rec.ID, &rec.Filename, &rec.URL, &rec.RowCount, &groupJSON, &statusJSON, &rec.TriggeredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last export: %w", err)
	}

	_ = json.Unmarshal([]byte(groupJSON), &rec.GroupIDs)
	_ = json.Unmarshal([]byte(statusJSON), &rec.Statuses)
	return rec, nil
}

func (s *SQLiteStore) ListExports(ctx context.Context, limit int) ([]*ExportRecord, error) {
	query := `SELECT id, filename, url, row_count, group_ids, statuses, triggered_at
		FROM exports ORDER BY triggered_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*ExportRecord
	for rows.Next() {
		rec := &ExportRecord{}
		var groupJSON, statusJSON string
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.URL, &rec.RowCount, &groupJSON, &statusJSON, &rec.TriggeredAt); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		_ = json.Unmarshal([]byte(groupJSON), &rec.GroupIDs)
		_ = json.Unmarshal([]byte(statusJSON), &rec.Statuses)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// --- Refreshes ---

func (s *SQLiteStore) RecordRefresh(ctx context.Context, rec *RefreshRecord) error {
	if rec.ID == "" {
		rec.ID = newULID()
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	ok := 0
	if rec.OK {
		ok = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refreshes (id, at, ticket_count, ok, error) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.At, rec.TicketCount, ok, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("record refresh: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LastRefresh(ctx context.Context) (*RefreshRecord, error) {
	rec := &RefreshRecord{}
	var ok int

	err := s.db.QueryRowContext(ctx,
		`SELECT id, at, ticket_count, ok, error FROM refreshes ORDER BY at DESC, id DESC LIMIT 1`,
	).Scan(&rec.ID, &rec.At, &rec.TicketCount, &ok, &rec.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last refresh: %w", err)
	}

	rec.OK = ok != 0
	return rec, nil
}
