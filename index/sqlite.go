package index

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Storage persists indexed documents.
type Storage interface {
	// SaveDocument inserts or replaces a document.
	SaveDocument(ctx context.Context, doc StoredDocument) error

	// LoadDocuments returns every stored document ordered by creation time.
	LoadDocuments(ctx context.Context) ([]StoredDocument, error)

	// DeleteDocument removes a document. Unknown ids are not an error.
	DeleteDocument(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}

// StoredDocument is a document row.
type StoredDocument struct {
	Document
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SqliteStorage implements Storage on a SQLite database.
type SqliteStorage struct {
	db *sql.DB
}

var _ Storage = (*SqliteStorage)(nil)

// OpenSqlite opens or creates a SQLite database at path, creating parent
// directories as needed.
func OpenSqlite(path string) (*SqliteStorage, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create index directory")
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open index database")
	}
	return newSqliteStorage(db)
}

// NewSqliteInMemory creates an in-memory database, mostly for tests.
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory index database")
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqliteStorage(db)
}

func newSqliteStorage(db *sql.DB) (*SqliteStorage, error) {
	s := &SqliteStorage{db: db}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteStorage) createSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_hash
		ON documents(content_hash);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, "create index schema")
	}
	return nil
}

// SaveDocument inserts or replaces a document, keeping its original
// creation time on replace.
func (s *SqliteStorage) SaveDocument(ctx context.Context, doc StoredDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, source, title, content, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Source, doc.Title, doc.Content, doc.ContentHash,
		doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return errors.Wrapf(err, "save document %q", doc.ID)
	}
	return nil
}

// LoadDocuments returns every stored document in insertion order.
func (s *SqliteStorage) LoadDocuments(ctx context.Context) ([]StoredDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, title, content, content_hash, created_at, updated_at
		FROM documents
		ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query documents")
	}
	defer rows.Close()

	var docs []StoredDocument
	for rows.Next() {
		var (
			d                StoredDocument
			created, updated int64
		)
		if err := rows.Scan(&d.ID, &d.Source, &d.Title, &d.Content, &d.ContentHash, &created, &updated); err != nil {
			return nil, errors.Wrap(err, "scan document")
		}
		d.CreatedAt = time.Unix(0, created)
		d.UpdatedAt = time.Unix(0, updated)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate documents")
	}
	return docs, nil
}

// DeleteDocument removes a document by id.
func (s *SqliteStorage) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return errors.Wrapf(err, "delete document %q", id)
	}
	return nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}
