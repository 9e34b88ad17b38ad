// Package store implements the two persistent SQLite-backed caches of
// §4.9/§4.10: the promotion store (page_sig/frame_hash/label_key/selector
// success-failure counters) and the embedding cache (content_hash/model
// name -> vector). Schema setup, WAL journalling, and the busy_timeout/
// synchronous pragmas are carried over from the teacher's
// internal/store/local_core.go NewLocalStore, which opens SQLite the
// same way for the same reason (a single local process, crash-safe,
// write-light workload).
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/her-retrieval/her/internal/logging"
)

const pageSizeBytes = 4096

// Store wraps one SQLite database holding the promotion and embedding
// cache tables.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	path         string
	vectorExt    bool
	requireVec   bool
	softCapBytes int64
}

// Open initializes (creating if absent) the SQLite database at path,
// applies the schema, and detects sqlite-vec availability. cacheSizeMB
// is the soft size cap (default 400 MiB, §4.9) that triggers a vacuum on
// Maintain. requireVec, when true, fails fast if the vec extension isn't
// compiled in.
func Open(path string, cacheSizeMB int, requireVec bool) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("opening store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open(sqlDriver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA page_size = %d", pageSizeBytes),
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma failed (%s): %v", pragma, err)
		}
	}

	if cacheSizeMB <= 0 {
		cacheSizeMB = 400
	}
	s := &Store{db: db, path: path, softCapBytes: int64(cacheSizeMB) * 1024 * 1024, requireVec: requireVec}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}

	s.vectorExt = detectVecExtension(db)
	if s.requireVec && !s.vectorExt {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec extension required but not available; build with -tags sqlite_vec,cgo")
	}
	if s.vectorExt {
		logging.Store("sqlite-vec extension detected")
	} else {
		logging.Store("sqlite-vec extension not available; using brute-force cosine search")
	}

	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS promotions (
		page_sig    TEXT NOT NULL,
		frame_hash  TEXT NOT NULL,
		label_key   TEXT NOT NULL,
		selector    TEXT NOT NULL,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (page_sig, frame_hash, label_key, selector)
	);
	CREATE INDEX IF NOT EXISTS idx_promotions_lookup ON promotions(page_sig, frame_hash, label_key);

	CREATE TABLE IF NOT EXISTS embeddings (
		content_hash TEXT NOT NULL,
		model_name   TEXT NOT NULL,
		vector       BLOB NOT NULL,
		dim          INTEGER NOT NULL,
		hits         INTEGER NOT NULL DEFAULT 0,
		updated_at   INTEGER NOT NULL,
		PRIMARY KEY (content_hash, model_name)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model_name);
	CREATE INDEX IF NOT EXISTS idx_embeddings_updated ON embeddings(updated_at);

	CREATE TABLE IF NOT EXISTS kv (
		k  TEXT PRIMARY KEY,
		v  TEXT,
		ts INTEGER
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// detectVecExtension probes for the sqlite-vec extension by attempting
// to create a scratch vec0 virtual table; unavailable extensions leave
// the probe's CREATE VIRTUAL TABLE failing harmlessly.
func detectVecExtension(db *sql.DB) bool {
	_, err := db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS her_vec_probe USING vec0(probe float[1])")
	if err != nil {
		return false
	}
	_, _ = db.Exec("DROP TABLE IF EXISTS her_vec_probe")
	return true
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// HasVectorExtension reports whether Open detected the sqlite-vec extension.
func (s *Store) HasVectorExtension() bool { return s.vectorExt }

// Maintain vacuums the database if its on-disk size exceeds the
// configured soft cap (§4.9).
func (s *Store) Maintain() error {
	timer := logging.StartTimer(logging.CategoryStore, "Maintain")
	defer timer.Stop()

	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() < s.softCapBytes {
		return nil
	}

	logging.Store("store size %s exceeds soft cap %s; vacuuming", humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(s.softCapBytes)))
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec("VACUUM")
	return err
}

func nowUnix() int64 { return time.Now().Unix() }

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }
