package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	lexerrors "github.com/lexfuse/lexfuse/internal/errors"
)

// Document is a full record submitted to PutDocuments.
type Document struct {
	Meta    DocumentMeta
	Content string
	Vector  []float32
}

// SQLiteStore implements DocumentStore on a local SQLite database. The
// data directory is guarded by a file lock so two processes never write
// concurrently.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	lock   *flock.Flock
	closed bool
}

var _ DocumentStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the document database under dataDir.
// An empty dataDir opens an in-memory database for testing.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	var dsn string
	var lock *flock.Flock

	if dataDir == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, lexerrors.New(lexerrors.ErrCodeStoreOpen,
				fmt.Sprintf("creating data dir %s", dataDir), err)
		}

		lock = flock.New(filepath.Join(dataDir, ".lexfuse.lock"))
		locked, err := lock.TryLock()
		if err != nil {
			return nil, lexerrors.New(lexerrors.ErrCodeStoreOpen, "acquiring data dir lock", err)
		}
		if !locked {
			return nil, lexerrors.New(lexerrors.ErrCodeStoreLocked,
				fmt.Sprintf("data dir %s is locked by another process", dataDir), nil)
		}

		dsn = filepath.Join(dataDir, "documents.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, lexerrors.New(lexerrors.ErrCodeStoreOpen, "opening database", err)
	}

	// Single connection prevents SQLite lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores DSN params, pragmas go through Exec.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			if lock != nil {
				_ = lock.Unlock()
			}
			return nil, lexerrors.New(lexerrors.ErrCodeStoreOpen, "setting pragma", err)
		}
	}

	s := &SQLiteStore{db: db, lock: lock}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, lexerrors.New(lexerrors.ErrCodeStoreOpen, "initializing schema", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- row_idx preserves ingestion order so vector matrix rows align
	-- with metadata rows.
	CREATE TABLE IF NOT EXISTS documents (
		category TEXT NOT NULL,
		doc_id   TEXT NOT NULL,
		row_idx  INTEGER NOT NULL,
		title    TEXT,
		content  TEXT,
		meta     TEXT,
		vector   BLOB,
		PRIMARY KEY (category, doc_id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_row ON documents(category, row_idx);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutDocuments inserts or replaces documents in one transaction. IDs are
// stored in canonical form.
func (s *SQLiteStore) PutDocuments(ctx context.Context, category Category, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lexerrors.New(lexerrors.ErrCodeStoreQuery, "store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lexerrors.New(lexerrors.ErrCodeStoreQuery, "beginning transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(row_idx)+1, 0) FROM documents WHERE category = ?`,
		string(category)).Scan(&next); err != nil {
		return lexerrors.New(lexerrors.ErrCodeStoreQuery, "reading row counter", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents (category, doc_id, row_idx, title, content, meta, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return lexerrors.New(lexerrors.ErrCodeStoreQuery, "preparing insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, doc := range docs {
		id := NormalizeID(doc.Meta.ID, category)
		doc.Meta.ID = id

		meta, err := json.Marshal(doc.Meta)
		if err != nil {
			return lexerrors.New(lexerrors.ErrCodeStoreQuery,
				fmt.Sprintf("encoding metadata for %s", id), err)
		}

		if _, err := stmt.ExecContext(ctx, string(category), id, next,
			doc.Meta.Title, doc.Content, string(meta), encodeVector(doc.Vector)); err != nil {
			return lexerrors.New(lexerrors.ErrCodeStoreQuery,
				fmt.Sprintf("inserting document %s", id), err)
		}
		next++
	}

	if err := tx.Commit(); err != nil {
		return lexerrors.New(lexerrors.ErrCodeStoreQuery, "committing documents", err)
	}
	return nil
}

// GetVectors loads the full vector matrix for a category in row order.
func (s *SQLiteStore) GetVectors(ctx context.Context, category Category) (*VectorMatrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, lexerrors.New(lexerrors.ErrCodeStoreQuery, "store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, vector FROM documents
		WHERE category = ? AND vector IS NOT NULL
		ORDER BY row_idx`, string(category))
	if err != nil {
		return nil, lexerrors.New(lexerrors.ErrCodeStoreQuery, "querying vectors", err)
	}
	defer func() { _ = rows.Close() }()

	matrix := &VectorMatrix{}
	var dims int
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, lexerrors.New(lexerrors.ErrCodeStoreQuery, "scanning vector row", err)
		}

		vec, err := decodeVector(blob)
		if err != nil {
			return nil, lexerrors.New(lexerrors.ErrCodeVectorsCorrupt,
				fmt.Sprintf("vector blob for %s", id), err)
		}
		if dims == 0 {
			dims = len(vec)
		} else if len(vec) != dims {
			return nil, lexerrors.New(lexerrors.ErrCodeVectorsCorrupt,
				fmt.Sprintf("vector for %s has %d dims, expected %d", id, len(vec), dims), nil)
		}

		matrix.IDs = append(matrix.IDs, id)
		matrix.Vectors = append(matrix.Vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, lexerrors.New(lexerrors.ErrCodeStoreQuery, "iterating vectors", err)
	}
	return matrix, nil
}

// GetMetadata returns metadata for a category in the same row order as
// GetVectors.
func (s *SQLiteStore) GetMetadata(ctx context.Context, category Category) ([]DocumentMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, lexerrors.New(lexerrors.ErrCodeStoreQuery, "store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT meta FROM documents WHERE category = ? ORDER BY row_idx`, string(category))
	if err != nil {
		return nil, lexerrors.New(lexerrors.ErrCodeStoreQuery, "querying metadata", err)
	}
	defer func() { _ = rows.Close() }()

	var metas []DocumentMeta
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, lexerrors.New(lexerrors.ErrCodeStoreQuery, "scanning metadata row", err)
		}
		var meta DocumentMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, lexerrors.New(lexerrors.ErrCodeStoreQuery, "decoding metadata", err)
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, lexerrors.New(lexerrors.ErrCodeStoreQuery, "iterating metadata", err)
	}
	return metas, nil
}

// GetContent returns a document body by exact ID, "" when absent.
func (s *SQLiteStore) GetContent(ctx context.Context, category Category, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", lexerrors.New(lexerrors.ErrCodeStoreQuery, "store is closed", nil)
	}

	var content sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM documents WHERE category = ? AND doc_id = ?`,
		string(category), id).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", lexerrors.New(lexerrors.ErrCodeStoreQuery, "querying content", err)
	}
	return content.String, nil
}

// Close closes the database and releases the directory lock.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); err == nil {
			err = unlockErr
		}
	}
	return err
}

// encodeVector packs float32 values little-endian.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
