package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	strerrors "github.com/strand-search/strand/internal/errors"
)

// Catalog persists indexes, their settings and their documents in SQLite.
// Postings are not persisted: they rebuild deterministically from the stored
// documents when an index is opened.
type Catalog struct {
	db   *sql.DB
	path string
}

// IndexMeta is one catalog row.
type IndexMeta struct {
	UID        string    `json:"uid"`
	Name       string    `json:"name"`
	PrimaryKey string    `json:"primaryKey,omitempty"`
	Settings   []byte    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS indexes (
	uid         TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	primary_key TEXT NOT NULL DEFAULT '',
	settings    BLOB NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	index_uid   TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	external_id TEXT NOT NULL,
	body        BLOB NOT NULL,
	PRIMARY KEY (index_uid, seq)
);
CREATE INDEX IF NOT EXISTS documents_by_external
	ON documents (index_uid, external_id);
`

// validateIntegrity checks an existing catalog file before opening it for
// real. Corruption surfaces as ErrCodeStoreCorruption so the API can report
// it distinctly from plain I/O failures.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return strerrors.StoreIo(err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return strerrors.StoreCorruption(fmt.Errorf("integrity check failed: %w", err))
	}
	if result != "ok" {
		return strerrors.StoreCorruption(fmt.Errorf("catalog corrupted: %s", result))
	}
	return nil
}

// OpenCatalog opens (or creates) the catalog at path.
// An empty path opens an in-memory catalog for testing.
func OpenCatalog(path string) (*Catalog, error) {
	dsn := ":memory:"
	if path != "" {
		if err := validateIntegrity(path); err != nil {
			return nil, err
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, strerrors.StoreIo(err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// table-locked errors under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(catalogSchema); err != nil {
		_ = db.Close()
		return nil, strerrors.StoreIo(err)
	}

	return &Catalog{db: db, path: path}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// CreateIndex inserts a new index row. Returns ErrCodeIndexExists when the
// uid is already taken.
func (c *Catalog) CreateIndex(uid, name, primaryKey string, settings []byte) (*IndexMeta, error) {
	if len(settings) == 0 {
		settings = []byte("{}")
	}
	now := time.Now().UTC()
	_, err := c.db.Exec(
		`INSERT INTO indexes (uid, name, primary_key, settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uid, name, primaryKey, settings, now.Unix(), now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, strerrors.Newf(strerrors.ErrCodeIndexExists, "index %q already exists", uid)
		}
		return nil, strerrors.StoreIo(err)
	}
	return &IndexMeta{
		UID: uid, Name: name, PrimaryKey: primaryKey,
		Settings: settings, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetIndex fetches one index row.
func (c *Catalog) GetIndex(uid string) (*IndexMeta, error) {
	row := c.db.QueryRow(
		`SELECT uid, name, primary_key, settings, created_at, updated_at
		 FROM indexes WHERE uid = ?`, uid)
	return scanIndex(row)
}

// ListIndexes returns all indexes in creation order.
func (c *Catalog) ListIndexes() ([]*IndexMeta, error) {
	rows, err := c.db.Query(
		`SELECT uid, name, primary_key, settings, created_at, updated_at
		 FROM indexes ORDER BY created_at, uid`)
	if err != nil {
		return nil, strerrors.StoreIo(err)
	}
	defer rows.Close()

	var out []*IndexMeta
	for rows.Next() {
		meta, err := scanIndex(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, strerrors.StoreIo(err)
	}
	return out, nil
}

// RenameIndex updates the display name. The uid is immutable.
func (c *Catalog) RenameIndex(uid, name string) error {
	res, err := c.db.Exec(
		`UPDATE indexes SET name = ?, updated_at = ? WHERE uid = ?`,
		name, time.Now().UTC().Unix(), uid)
	if err != nil {
		return strerrors.StoreIo(err)
	}
	return requireHit(res, uid)
}

// UpdateSettings replaces the serialized settings blob.
func (c *Catalog) UpdateSettings(uid string, settings []byte) error {
	res, err := c.db.Exec(
		`UPDATE indexes SET settings = ?, updated_at = ? WHERE uid = ?`,
		settings, time.Now().UTC().Unix(), uid)
	if err != nil {
		return strerrors.StoreIo(err)
	}
	return requireHit(res, uid)
}

// UpdatePrimaryKey records the (possibly inferred) primary key.
func (c *Catalog) UpdatePrimaryKey(uid, primaryKey string) error {
	res, err := c.db.Exec(
		`UPDATE indexes SET primary_key = ?, updated_at = ? WHERE uid = ?`,
		primaryKey, time.Now().UTC().Unix(), uid)
	if err != nil {
		return strerrors.StoreIo(err)
	}
	return requireHit(res, uid)
}

// DeleteIndex removes the index row and its documents.
func (c *Catalog) DeleteIndex(uid string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return strerrors.StoreIo(err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM indexes WHERE uid = ?`, uid)
	if err != nil {
		return strerrors.StoreIo(err)
	}
	if err := requireHit(res, uid); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE index_uid = ?`, uid); err != nil {
		return strerrors.StoreIo(err)
	}
	if err := tx.Commit(); err != nil {
		return strerrors.StoreIo(err)
	}
	return nil
}

// UpsertDocuments stores documents by external id, replacing earlier
// versions. Sequence numbers preserve first-insertion order, which is the
// internal docid assignment order on rebuild.
func (c *Catalog) UpsertDocuments(uid string, docs []RawDocument) error {
	tx, err := c.db.Begin()
	if err != nil {
		return strerrors.StoreIo(err)
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM documents WHERE index_uid = ?`, uid,
	).Scan(&next); err != nil {
		return strerrors.StoreIo(err)
	}

	for _, doc := range docs {
		body, err := json.Marshal(doc.Fields)
		if err != nil {
			return strerrors.Newf(strerrors.ErrCodeInvalidDocument,
				"document %q cannot be serialized: %v", doc.ExternalID, err)
		}

		var seq int64
		err = tx.QueryRow(
			`SELECT seq FROM documents WHERE index_uid = ? AND external_id = ?`,
			uid, doc.ExternalID,
		).Scan(&seq)
		switch err {
		case nil:
			if _, err := tx.Exec(
				`UPDATE documents SET body = ? WHERE index_uid = ? AND seq = ?`,
				body, uid, seq); err != nil {
				return strerrors.StoreIo(err)
			}
		case sql.ErrNoRows:
			if _, err := tx.Exec(
				`INSERT INTO documents (index_uid, seq, external_id, body) VALUES (?, ?, ?, ?)`,
				uid, next, doc.ExternalID, body); err != nil {
				return strerrors.StoreIo(err)
			}
			next++
		default:
			return strerrors.StoreIo(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return strerrors.StoreIo(err)
	}
	return nil
}

// LoadDocuments returns an index's documents in first-insertion order.
func (c *Catalog) LoadDocuments(uid string) ([]RawDocument, error) {
	rows, err := c.db.Query(
		`SELECT external_id, body FROM documents WHERE index_uid = ? ORDER BY seq`, uid)
	if err != nil {
		return nil, strerrors.StoreIo(err)
	}
	defer rows.Close()

	var out []RawDocument
	for rows.Next() {
		var externalID string
		var body []byte
		if err := rows.Scan(&externalID, &body); err != nil {
			return nil, strerrors.StoreIo(err)
		}
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, strerrors.StoreCorruption(
				fmt.Errorf("document %q body is not valid JSON: %w", externalID, err))
		}
		out = append(out, RawDocument{ExternalID: externalID, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, strerrors.StoreIo(err)
	}
	return out, nil
}

// DocumentCount counts one index's stored documents.
func (c *Catalog) DocumentCount(uid string) (int64, error) {
	var n int64
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM documents WHERE index_uid = ?`, uid).Scan(&n)
	if err != nil {
		return 0, strerrors.StoreIo(err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndex(row rowScanner) (*IndexMeta, error) {
	var meta IndexMeta
	var created, updated int64
	err := row.Scan(&meta.UID, &meta.Name, &meta.PrimaryKey, &meta.Settings, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, strerrors.Newf(strerrors.ErrCodeIndexNotFound, "index not found")
	}
	if err != nil {
		return nil, strerrors.StoreIo(err)
	}
	meta.CreatedAt = time.Unix(created, 0).UTC()
	meta.UpdatedAt = time.Unix(updated, 0).UTC()
	return &meta, nil
}

func requireHit(res sql.Result, uid string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return strerrors.StoreIo(err)
	}
	if n == 0 {
		return strerrors.IndexNotFound(uid)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint violations in the message;
	// matching the text avoids importing driver internals.
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint violation")
}
