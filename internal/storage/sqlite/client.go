package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docuflow/backend/pkg/logger"
)

var (
	// ErrDuplicate reports a violated (tenant, hash) uniqueness
	// constraint; the authoritative dedup signal.
	ErrDuplicate = errors.New("sqlite: duplicate record")
	ErrNotFound  = errors.New("sqlite: record not found")
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err = db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employees (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER,
		employee_id TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (tenant_id) REFERENCES tenants(id)
	);
	CREATE INDEX IF NOT EXISTS idx_employees_employee_id ON employees(employee_id);
	CREATE INDEX IF NOT EXISTS idx_employees_tenant ON employees(tenant_id);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		file_extension TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		content_ref TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		sha256_hash TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'UNASSIGNED',
		source TEXT NOT NULL DEFAULT 'BATCH_ARCHIVE',
		metadata TEXT NOT NULL DEFAULT '{}',
		employee_id INTEGER,
		document_type TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		period_year INTEGER,
		period_month INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (tenant_id) REFERENCES tenants(id),
		FOREIGN KEY (employee_id) REFERENCES employees(id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(sha256_hash);
	CREATE INDEX IF NOT EXISTS idx_documents_employee ON documents(employee_id);

	CREATE TABLE IF NOT EXISTS processed_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		sha256_hash TEXT NOT NULL,
		original_path TEXT NOT NULL,
		document_id TEXT,
		processed_at INTEGER NOT NULL,
		UNIQUE (tenant_id, sha256_hash),
		FOREIGN KEY (tenant_id) REFERENCES tenants(id),
		FOREIGN KEY (document_id) REFERENCES documents(id)
	);
	CREATE INDEX IF NOT EXISTS idx_processed_path ON processed_files(original_path);

	CREATE TABLE IF NOT EXISTS scan_jobs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		total_files INTEGER NOT NULL DEFAULT 0,
		processed_files INTEGER NOT NULL DEFAULT 0,
		skipped_files INTEGER NOT NULL DEFAULT 0,
		error_files INTEGER NOT NULL DEFAULT 0,
		current_file TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_scan_jobs_started ON scan_jobs(started_at);

	CREATE TABLE IF NOT EXISTS matching_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER,
		name TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 0,
		algorithm TEXT NOT NULL DEFAULT 'NONE',
		pattern TEXT NOT NULL DEFAULT '',
		case_sensitive INTEGER NOT NULL DEFAULT 0,
		assign_type TEXT NOT NULL DEFAULT '',
		assign_employee_id INTEGER,
		assign_status TEXT NOT NULL DEFAULT '',
		assign_tags TEXT NOT NULL DEFAULT '[]',
		match_count INTEGER NOT NULL DEFAULT 0,
		last_matched_at INTEGER,
		FOREIGN KEY (tenant_id) REFERENCES tenants(id),
		FOREIGN KEY (assign_employee_id) REFERENCES employees(id)
	);
	CREATE INDEX IF NOT EXISTS idx_rules_tenant ON matching_rules(tenant_id);

	CREATE TABLE IF NOT EXISTS review_tasks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 2,
		status TEXT NOT NULL DEFAULT 'OPEN',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id)
	);
	CREATE INDEX IF NOT EXISTS idx_review_tasks_document ON review_tasks(document_id);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
