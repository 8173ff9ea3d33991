package chat

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const createDocumentsTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
    name       TEXT PRIMARY KEY,
    body       TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// sessionsDocumentName is the row holding the session collection.
const sessionsDocumentName = "chats"

// SQLiteDocument stores the collection as a single row of a SQLite database.
// It keeps the whole-document contract of FileDocument; SQLite only provides
// the transactional replace.
type SQLiteDocument struct {
	db   *sql.DB
	path string
}

var _ Document = (*SQLiteDocument)(nil)

// NewSQLiteDocument opens (or creates) the database at dbPath and ensures the schema exists.
func NewSQLiteDocument(dbPath string) (*SQLiteDocument, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("sqlite document: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "sqlite document: create directory")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite document: open")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite document: set WAL mode")
	}
	if _, err := db.Exec(createDocumentsTableSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite document: migrate")
	}

	return &SQLiteDocument{db: db, path: dbPath}, nil
}

// Location returns the database path.
func (d *SQLiteDocument) Location() string {
	return d.path
}

// Read returns the stored document body.
func (d *SQLiteDocument) Read(ctx context.Context) ([]byte, error) {
	var body string
	err := d.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, sessionsDocumentName).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite document: read")
	}
	return []byte(body), nil
}

// Write upserts the document row inside a transaction.
func (d *SQLiteDocument) Write(ctx context.Context, body []byte) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite document: begin")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		sessionsDocumentName, string(body), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "sqlite document: write")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite document: commit")
	}
	return nil
}

// Close releases the database handle.
func (d *SQLiteDocument) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
