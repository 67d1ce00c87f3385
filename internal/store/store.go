// Package store is the durable page store (C3): a single SQLite table of
// pages keyed by auto-assigned id, unique on url, storing each page's
// embedding as a raw float32 blob.
//
// Adapted from the project's SQLite-backed BM25 index: the connection
// setup (pure-Go modernc.org/sqlite driver, WAL pragmas, integrity check
// before opening, single-writer connection pool) is kept verbatim in
// spirit, but the schema and operations are the page table the search
// provider needs, not an FTS5 keyword index.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	dawnerrors "github.com/dawnsearch/dawnsearch/internal/errors"
	"github.com/dawnsearch/dawnsearch/internal/vector"
)

// ErrDuplicateURL is returned by Insert when the page's url already exists.
var ErrDuplicateURL = fmt.Errorf("store: duplicate url")

// ErrNotFound is returned by Get and EmbeddingFor for an unknown id.
var ErrNotFound = fmt.Errorf("store: page not found")

// Page is one row of the page table.
type Page struct {
	ID        uint64
	URL       string
	Title     string
	Text      string
	Embedding vector.Embedding
}

// Store is the durable page store. Exclusively owned by the search
// provider (C5) — no other component touches the database directly, which
// serializes index mutations with queries without per-row locking.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Open opens (creating if absent) the page store at path. It acquires an
// exclusive advisory lock on path+".lock" for the process lifetime, so two
// dawnsearch processes can never share a data directory.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dawnerrors.FatalStartup("cannot create data directory", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, dawnerrors.FatalStartup("cannot acquire data directory lock", err)
	}
	if !locked {
		return nil, dawnerrors.FatalStartup("data directory is already in use by another dawnsearch process", nil)
	}

	if verr := validateIntegrity(path); verr != nil {
		slog.Warn("page_store_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
		_ = os.Remove(path)
		_ = os.Remove(path + "-wal")
		_ = os.Remove(path + "-shm")
	}

	// DSN params may be ignored by modernc.org/sqlite; the pragmas below are
	// re-applied via direct statements regardless.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, dawnerrors.Store("failed to open page store", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			_ = lock.Unlock()
			return nil, dawnerrors.Store("failed to configure page store", err)
		}
	}

	s := &Store{db: db, lock: lock, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		_ = lock.Unlock()
		return nil, dawnerrors.Store("failed to initialize page store schema", err)
	}
	return s, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}
	return nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS page (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		url       TEXT NOT NULL UNIQUE,
		title     TEXT NOT NULL,
		text      TEXT NOT NULL,
		embedding BLOB NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Insert adds page and returns its assigned id, or ErrDuplicateURL if
// page.URL already exists. The search provider is responsible for checking
// normalization before calling Insert (I2).
func (s *Store) Insert(ctx context.Context, p Page) (uint64, error) {
	blob, err := vector.RawBytes(p.Embedding)
	if err != nil {
		return 0, dawnerrors.InvalidVector(err.Error())
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO page (url, title, text, embedding) VALUES (?, ?, ?, ?)`,
		p.URL, p.Title, p.Text, blob)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateURL
		}
		return 0, dawnerrors.Store("failed to insert page", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, dawnerrors.Store("failed to read inserted page id", err)
	}
	return uint64(id), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "constraint failed: UNIQUE"))
}

// Get returns the page with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uint64) (Page, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, url, title, text, embedding FROM page WHERE id = ?`, id)
	return s.scanPage(row)
}

func (s *Store) scanPage(row *sql.Row) (Page, error) {
	var p Page
	var blob []byte
	if err := row.Scan(&p.ID, &p.URL, &p.Title, &p.Text, &blob); err != nil {
		if err == sql.ErrNoRows {
			return Page{}, ErrNotFound
		}
		return Page{}, dawnerrors.Store("failed to read page", err)
	}
	emb, err := vector.FromRawBytes(blob)
	if err != nil {
		return Page{}, dawnerrors.InvalidVector(fmt.Sprintf("page %d: %v", p.ID, err))
	}
	p.Embedding = emb
	return p, nil
}

// EmbeddingFor returns just the embedding for id, or ErrNotFound.
func (s *Store) EmbeddingFor(ctx context.Context, id uint64) (vector.Embedding, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM page WHERE id = ?`, id).Scan(&blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dawnerrors.Store("failed to read embedding", err)
	}
	emb, err := vector.FromRawBytes(blob)
	if err != nil {
		return nil, dawnerrors.InvalidVector(err.Error())
	}
	return emb, nil
}

// Count returns the number of rows in the page table.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page`).Scan(&n); err != nil {
		return 0, dawnerrors.Store("failed to count pages", err)
	}
	return n, nil
}

// EmbeddingRow is one row yielded by ScanEmbeddings.
type EmbeddingRow struct {
	ID        uint64
	Embedding vector.Embedding
}

// ScanEmbeddings streams (id, embedding) for every page, calling fn once
// per row. It stops and returns ctx.Err() if ctx is cancelled mid-scan —
// the index rebuild relies on this to poll the
// process-wide shutdown token without holding the whole table in memory.
// A row whose embedding fails to decode is logged and skipped, matching
// verify's "count but don't abort" policy.
func (s *Store) ScanEmbeddings(ctx context.Context, fn func(EmbeddingRow) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM page`)
	if err != nil {
		return dawnerrors.Store("failed to scan embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var row EmbeddingRow
		var blob []byte
		if err := rows.Scan(&row.ID, &blob); err != nil {
			return dawnerrors.Store("failed to scan embedding row", err)
		}
		emb, err := vector.FromRawBytes(blob)
		if err != nil {
			slog.Warn("page_embedding_invalid", slog.Uint64("id", row.ID), slog.String("error", err.Error()))
			continue
		}
		row.Embedding = emb
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// VerifyCounts reports how many rows failed the blob-length check and how
// many failed normalization, without aborting the scan. Used by the search
// provider's verify() operation.
type VerifyCounts struct {
	Scanned      int
	WrongLength  int
	NotNormalized int
}

// Verify scans every row and tallies integrity violations (I1, I2). It
// does not stop early — every row is checked once.
func (s *Store) Verify(ctx context.Context) (VerifyCounts, error) {
	var counts VerifyCounts
	rows, err := s.db.QueryContext(ctx, `SELECT embedding FROM page`)
	if err != nil {
		return counts, dawnerrors.Store("failed to scan for verify", err)
	}
	defer rows.Close()

	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return counts, dawnerrors.Store("failed to scan verify row", err)
		}
		counts.Scanned++
		if len(blob) != vector.Len*4 {
			counts.WrongLength++
			continue
		}
		emb, err := vector.FromRawBytes(blob)
		if err != nil || !vector.IsNormalized(emb) {
			counts.NotNormalized++
		}
	}
	return counts, rows.Err()
}

// Close releases the database handle and the advisory lock.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}
