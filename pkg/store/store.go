// SPDX-License-Identifier: Apache-2.0
// Package store persists artifacts: metadata in a SQLite index,
// content blobs on disk (one per version), fronted by a bounded LRU
// cache. All writes are serialized per artifact id so the index row,
// version rows, permission rows and blob stay consistent.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jllopis/agora/pkg/artifact"
	"github.com/jllopis/agora/pkg/telemetry"

	_ "modernc.org/sqlite"
)

const (
	artifactTable   = "artifacts"
	versionTable    = "artifact_versions"
	permissionTable = "artifact_permissions"

	defaultCacheSize = 128
)

// SQLiteStore is the artifact store: SQLite index + on-disk blobs +
// bounded in-process LRU cache. The cache is coherent only for a
// single store instance; cross-process deployments must share one.
type SQLiteStore struct {
	db      *sql.DB
	root    string
	cache   *lru.Cache[string, *artifact.Artifact]
	metrics *telemetry.StoreMetrics
	log     *slog.Logger

	// locks serializes writes per artifact id.
	locks sync.Map
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithCacheSize bounds the artifact LRU cache.
func WithCacheSize(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			cache, err := lru.New[string, *artifact.Artifact](n)
			if err == nil {
				s.cache = cache
			}
		}
	}
}

// WithMetrics attaches the OTEL instruments store operations are
// reported to. A nil sink disables reporting.
func WithMetrics(m *telemetry.StoreMetrics) Option {
	return func(s *SQLiteStore) { s.metrics = m }
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *SQLiteStore) { s.log = log }
}

// New creates a SQLite-backed artifact store rooted at root for blobs
// and ensures the schema.
func New(db *sql.DB, root string, opts ...Option) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if root == "" {
		return nil, fmt.Errorf("blob root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *artifact.Artifact](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{
		db:    db,
		root:  root,
		cache: cache,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			priority INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			modified_at INTEGER NOT NULL,
			accessed_at INTEGER NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '[]',
			custom_json TEXT NOT NULL DEFAULT '{}',
			checksum TEXT NOT NULL,
			size INTEGER NOT NULL,
			current_version TEXT NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			quality_score REAL NOT NULL DEFAULT 0,
			content_format TEXT NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		);`, artifactTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_type ON %s(type);`, artifactTable, artifactTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_status ON %s(status);`, artifactTable, artifactTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_author ON %s(author);`, artifactTable, artifactTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at);`, artifactTable, artifactTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			artifact_id TEXT NOT NULL,
			version TEXT NOT NULL,
			author TEXT NOT NULL,
			changes_json TEXT NOT NULL DEFAULT '[]',
			content_hash TEXT NOT NULL,
			size INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY(artifact_id, version)
		);`, versionTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_artifact ON %s(artifact_id);`, versionTable, versionTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			artifact_id TEXT NOT NULL,
			user TEXT NOT NULL,
			permission TEXT NOT NULL,
			PRIMARY KEY(artifact_id, user, permission)
		);`, permissionTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// lock acquires the per-artifact write lock and returns its release.
func (s *SQLiteStore) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// blobDir is <root>/<artifact_id>.
func (s *SQLiteStore) blobDir(id string) string {
	return filepath.Join(s.root, id)
}

// blobPath is <root>/<artifact_id>/content_<version>.<format>.
func (s *SQLiteStore) blobPath(id, version, format string) string {
	return filepath.Join(s.blobDir(id), fmt.Sprintf("content_%s.%s", version, format))
}
