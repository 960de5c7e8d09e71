package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jllopis/agora/pkg/artifact"
	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/protocol"
)

const artifactColumns = `id, type, status, priority, title, description, author,
	created_at, modified_at, accessed_at, tags, custom_json, checksum, size,
	current_version, access_count, quality_score, content_format, expires_at`

// Store validates and persists the artifact: blob first, then index
// row, version rows and permission rows in one transaction, then the
// cache. The blob write happens before the index commit so no reader
// ever observes a row pointing at a missing blob.
func (s *SQLiteStore) Store(ctx context.Context, a *artifact.Artifact) (string, error) {
	if a == nil {
		return "", errors.New(errors.CodeValidation, "artifact is nil", nil)
	}
	unlock := s.lock(a.ID)
	defer unlock()
	return s.storeLocked(ctx, a)
}

// storeLocked is Store without lock acquisition, for callers that
// already hold the per-id lock across a read-modify-write.
func (s *SQLiteStore) storeLocked(ctx context.Context, a *artifact.Artifact) (string, error) {
	start := time.Now()
	if problems := a.Validate(); len(problems) > 0 {
		return "", errors.New(errors.CodeValidation, "invalid artifact", nil).
			WithContext("artifact_id", a.ID).
			WithContext("problems", problems)
	}

	raw, err := artifact.CanonicalContent(a.Content)
	if err != nil {
		s.metrics.RecordError(ctx, "store")
		return "", errors.New(errors.CodeStorage, "canonicalize content", err).
			WithContext("artifact_id", a.ID)
	}
	format := artifact.ContentFormat(a.Content)

	if err := os.MkdirAll(s.blobDir(a.ID), 0o755); err != nil {
		s.metrics.RecordError(ctx, "store")
		return "", errors.New(errors.CodeStorage, "create blob dir", err).
			WithContext("artifact_id", a.ID)
	}
	if err := os.WriteFile(s.blobPath(a.ID, a.CurrentVersion, format), raw, 0o644); err != nil {
		s.metrics.RecordError(ctx, "store")
		return "", errors.New(errors.CodeStorage, "write blob", err).
			WithContext("artifact_id", a.ID)
	}

	if err := s.writeIndex(ctx, a, format); err != nil {
		s.metrics.RecordError(ctx, "store")
		return "", errors.New(errors.CodeStorage, "write index", err).
			WithContext("artifact_id", a.ID).
			WithContext("operation", "store")
	}

	s.cache.Add(a.ID, a.Clone())
	s.metrics.RecordOperation(ctx, "store", float64(time.Since(start).Seconds()*1000))
	s.log.Info("store.artifact.stored",
		slog.String("artifact_id", a.ID),
		slog.String("version", a.CurrentVersion),
		slog.Int64("size", a.Metadata.Size),
	)
	return a.ID, nil
}

func (s *SQLiteStore) writeIndex(ctx context.Context, a *artifact.Artifact, format string) error {
	tags, err := json.Marshal(a.Metadata.Tags)
	if err != nil {
		return err
	}
	custom, err := json.Marshal(a.Metadata.Custom)
	if err != nil {
		return err
	}
	accessedAt := int64(0)
	if a.Metadata.AccessedAt != nil {
		accessedAt = a.Metadata.AccessedAt.UnixMilli()
	}
	expiresAt := int64(0)
	if a.ExpiresAt != nil {
		expiresAt = a.ExpiresAt.UnixMilli()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+artifactTable+` (`+artifactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			status = excluded.status,
			priority = excluded.priority,
			title = excluded.title,
			description = excluded.description,
			author = excluded.author,
			modified_at = excluded.modified_at,
			accessed_at = excluded.accessed_at,
			tags = excluded.tags,
			custom_json = excluded.custom_json,
			checksum = excluded.checksum,
			size = excluded.size,
			current_version = excluded.current_version,
			access_count = excluded.access_count,
			quality_score = excluded.quality_score,
			content_format = excluded.content_format,
			expires_at = excluded.expires_at`,
		a.ID, string(a.Type), string(a.Status), a.Priority,
		a.Metadata.Title, a.Metadata.Description, a.Metadata.Author,
		a.Metadata.CreatedAt.UnixMilli(), a.Metadata.ModifiedAt.UnixMilli(), accessedAt,
		string(tags), string(custom), a.Metadata.Checksum, a.Metadata.Size,
		a.CurrentVersion, a.AccessCount, a.QualityScore, format, expiresAt)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM `+versionTable+` WHERE artifact_id = ?`, a.ID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, v := range a.Versions {
		changes, err := json.Marshal(v.Changes)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO `+versionTable+` (artifact_id, version, author, changes_json, content_hash, size, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, v.Version, v.Author, string(changes), v.ContentHash, v.Size, v.CreatedAt.UnixMilli())
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM `+permissionTable+` WHERE artifact_id = ?`, a.ID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for user, perms := range a.Permissions {
		for _, perm := range perms {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO `+permissionTable+` (artifact_id, user, permission) VALUES (?, ?, ?)`,
				a.ID, user, string(perm))
			if err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}

	return tx.Commit()
}

// Retrieve loads an artifact by id. A cache hit short-circuits the
// index read. The access-count bump is persisted read-modify-write
// either way; concurrent retrievals can under-count (documented
// trade-off, not silently patched). user is recorded for audit only;
// permission grants are modeled, not enforced.
func (s *SQLiteStore) Retrieve(ctx context.Context, id, user string) (*artifact.Artifact, error) {
	start := time.Now()

	if cached, ok := s.cache.Get(id); ok {
		s.metrics.RecordCacheHit(ctx)
		// The cache keeps a private copy; callers get their own so the
		// shared entry is never mutated after insertion.
		a := cached.Clone()
		a.Access()
		if err := s.persistAccess(ctx, a); err != nil {
			s.log.Warn("store.artifact.access_bump_failed",
				slog.String("artifact_id", id),
				slog.String("error", err.Error()),
			)
		}
		s.cache.Add(id, a.Clone())
		s.metrics.RecordOperation(ctx, "retrieve", float64(time.Since(start).Seconds()*1000))
		return a, nil
	}
	s.metrics.RecordCacheMiss(ctx)

	a, err := s.load(ctx, id)
	if err != nil {
		if !errors.IsNotFound(err) {
			s.metrics.RecordError(ctx, "retrieve")
		}
		return nil, err
	}
	a.Access()
	if err := s.persistAccess(ctx, a); err != nil {
		s.log.Warn("store.artifact.access_bump_failed",
			slog.String("artifact_id", id),
			slog.String("error", err.Error()),
		)
	}
	s.cache.Add(id, a.Clone())
	s.metrics.RecordOperation(ctx, "retrieve", float64(time.Since(start).Seconds()*1000))
	if user != "" {
		s.log.Debug("store.artifact.retrieved",
			slog.String("artifact_id", id),
			slog.String("user", user),
		)
	}
	return a, nil
}

// load reconstructs an artifact from the index and its blob without
// touching access telemetry or the cache.
func (s *SQLiteStore) load(ctx context.Context, id string) (*artifact.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM `+artifactTable+` WHERE id = ?`, id)
	a, format, err := scanArtifact(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound(id)
		}
		return nil, errors.New(errors.CodeStorage, "read index row", err).
			WithContext("artifact_id", id)
	}

	if err := s.loadVersions(ctx, a); err != nil {
		return nil, errors.New(errors.CodeStorage, "read version rows", err).
			WithContext("artifact_id", id)
	}
	if err := s.loadPermissions(ctx, a); err != nil {
		return nil, errors.New(errors.CodeStorage, "read permission rows", err).
			WithContext("artifact_id", id)
	}

	raw, err := os.ReadFile(s.blobPath(id, a.CurrentVersion, format))
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "read blob", err).
			WithContext("artifact_id", id).
			WithContext("version", a.CurrentVersion)
	}
	content, err := artifact.DecodeContent(raw, format)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "decode blob", err).
			WithContext("artifact_id", id)
	}
	a.Content = content
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*artifact.Artifact, string, error) {
	var (
		a          artifact.Artifact
		atype      string
		status     string
		createdMs  int64
		modifiedMs int64
		accessedMs int64
		tagsJSON   string
		customJSON string
		format     string
		expiresMs  int64
	)
	err := row.Scan(&a.ID, &atype, &status, &a.Priority,
		&a.Metadata.Title, &a.Metadata.Description, &a.Metadata.Author,
		&createdMs, &modifiedMs, &accessedMs, &tagsJSON, &customJSON,
		&a.Metadata.Checksum, &a.Metadata.Size,
		&a.CurrentVersion, &a.AccessCount, &a.QualityScore, &format, &expiresMs)
	if err != nil {
		return nil, "", err
	}
	// Raw scalars from storage go through the same parse step as
	// constructor input.
	if a.Type, err = artifact.ParseType(atype); err != nil {
		return nil, "", err
	}
	if a.Status, err = artifact.ParseStatus(status); err != nil {
		return nil, "", err
	}
	a.Metadata.CreatedAt = time.UnixMilli(createdMs).UTC()
	a.Metadata.ModifiedAt = time.UnixMilli(modifiedMs).UTC()
	if accessedMs > 0 {
		t := time.UnixMilli(accessedMs).UTC()
		a.Metadata.AccessedAt = &t
	}
	if expiresMs > 0 {
		t := time.UnixMilli(expiresMs).UTC()
		a.ExpiresAt = &t
	}
	if err := json.Unmarshal([]byte(tagsJSON), &a.Metadata.Tags); err != nil {
		return nil, "", err
	}
	if customJSON != "" && customJSON != "null" {
		if err := json.Unmarshal([]byte(customJSON), &a.Metadata.Custom); err != nil {
			return nil, "", err
		}
	}
	a.Permissions = make(map[string][]artifact.Permission)
	return &a, format, nil
}

func (s *SQLiteStore) loadVersions(ctx context.Context, a *artifact.Artifact) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, author, changes_json, content_hash, size, created_at
		FROM `+versionTable+` WHERE artifact_id = ? ORDER BY created_at ASC, version ASC`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v           artifact.Version
			changesJSON string
			createdMs   int64
		)
		if err := rows.Scan(&v.Version, &v.Author, &changesJSON, &v.ContentHash, &v.Size, &createdMs); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(changesJSON), &v.Changes); err != nil {
			return err
		}
		v.CreatedAt = time.UnixMilli(createdMs).UTC()
		a.Versions = append(a.Versions, v)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadPermissions(ctx context.Context, a *artifact.Artifact) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user, permission FROM `+permissionTable+` WHERE artifact_id = ?`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var user, perm string
		if err := rows.Scan(&user, &perm); err != nil {
			return err
		}
		a.Permissions[user] = append(a.Permissions[user], artifact.Permission(perm))
	}
	return rows.Err()
}

func (s *SQLiteStore) persistAccess(ctx context.Context, a *artifact.Artifact) error {
	accessedAt := int64(0)
	if a.Metadata.AccessedAt != nil {
		accessedAt = a.Metadata.AccessedAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE `+artifactTable+` SET access_count = ?, accessed_at = ? WHERE id = ?`,
		a.AccessCount, accessedAt, a.ID)
	return err
}

// Update describes a field-level artifact update. Nil fields are left
// unchanged. Changes are applied through the model's own mutators so
// checksum and version rules hold.
type Update struct {
	Author      string
	Content     any
	Status      any
	Title       *string
	Description *string
	Tags        []string
	Priority    any
	Changes     []string
}

// UpdateArtifact loads the artifact, applies the update and re-stores
// it. Content and metadata changes create a new version; a status
// change alone does not. The per-id lock is held across the whole
// read-modify-write so concurrent updates cannot lose versions.
func (s *SQLiteStore) UpdateArtifact(ctx context.Context, id string, up Update) (*artifact.Artifact, error) {
	unlock := s.lock(id)
	defer unlock()

	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	metadataChanged := false
	if up.Title != nil {
		a.Metadata.Title = *up.Title
		metadataChanged = true
	}
	if up.Description != nil {
		a.Metadata.Description = *up.Description
		metadataChanged = true
	}
	if up.Tags != nil {
		a.Metadata.Tags = append([]string(nil), up.Tags...)
		metadataChanged = true
	}
	if up.Priority != nil {
		if err := a.SetPriority(up.Priority); err != nil {
			return nil, errors.New(errors.CodeValidation, "invalid priority", err).
				WithContext("artifact_id", id)
		}
	}

	if up.Content != nil {
		if err := a.SetContent(up.Content, up.Author, up.Changes); err != nil {
			return nil, errors.New(errors.CodeValidation, "set content", err).
				WithContext("artifact_id", id)
		}
	} else if metadataChanged {
		changes := up.Changes
		if len(changes) == 0 {
			changes = []string{"metadata updated"}
		}
		if err := a.CreateVersion(up.Author, changes); err != nil {
			return nil, errors.New(errors.CodeStorage, "create version", err).
				WithContext("artifact_id", id)
		}
	}

	if up.Status != nil {
		if err := a.UpdateStatus(up.Status, up.Author); err != nil {
			return nil, errors.New(errors.CodeValidation, "update status", err).
				WithContext("artifact_id", id)
		}
	}

	if _, err := s.storeLocked(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete soft-deletes: status becomes deleted, content blobs are
// retained. Use Purge to remove an artifact irreversibly.
func (s *SQLiteStore) Delete(ctx context.Context, id, author string) error {
	unlock := s.lock(id)
	defer unlock()

	a, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := a.UpdateStatus(artifact.StatusDeleted, author); err != nil {
		return errors.New(errors.CodeValidation, "soft delete", err).
			WithContext("artifact_id", id)
	}
	if _, err := s.storeLocked(ctx, a); err != nil {
		return err
	}
	s.log.Info("store.artifact.deleted", slog.String("artifact_id", id))
	return nil
}

// Purge removes the index row, version rows, permission rows and the
// on-disk content directory. Irreversible. Rows go first so no index
// row is ever left pointing at a missing blob.
func (s *SQLiteStore) Purge(ctx context.Context, id string) error {
	start := time.Now()
	unlock := s.lock(id)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.CodeStorage, "begin purge", err).WithContext("artifact_id", id)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM `+artifactTable+` WHERE id = ?`, id)
	if err != nil {
		_ = tx.Rollback()
		return errors.New(errors.CodeStorage, "purge index row", err).WithContext("artifact_id", id)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return errors.New(errors.CodeStorage, "purge index row", err).WithContext("artifact_id", id)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return notFound(id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+versionTable+` WHERE artifact_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return errors.New(errors.CodeStorage, "purge version rows", err).WithContext("artifact_id", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+permissionTable+` WHERE artifact_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return errors.New(errors.CodeStorage, "purge permission rows", err).WithContext("artifact_id", id)
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.CodeStorage, "commit purge", err).WithContext("artifact_id", id)
	}

	s.cache.Remove(id)
	if err := os.RemoveAll(s.blobDir(id)); err != nil {
		// Index rows are gone; a leftover blob dir is orphaned, not
		// dangling, so log rather than fail the purge.
		s.log.Warn("store.artifact.purge.blob_cleanup_failed",
			slog.String("artifact_id", id),
			slog.String("error", err.Error()),
		)
	}
	s.metrics.RecordOperation(ctx, "purge", float64(time.Since(start).Seconds()*1000))
	s.log.Info("store.artifact.purged", slog.String("artifact_id", id))
	return nil
}

// CleanupExpired purges every artifact whose expiry lies in the past.
// Best-effort, not atomic: per-artifact failures are logged and
// skipped. Returns the number purged.
func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC().UnixMilli()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM `+artifactTable+` WHERE expires_at > 0 AND expires_at < ?`, now)
	if err != nil {
		return 0, errors.New(errors.CodeStorage, "list expired", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, errors.New(errors.CodeStorage, "list expired", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, errors.New(errors.CodeStorage, "list expired", err)
	}
	rows.Close()

	purged := 0
	for _, id := range ids {
		if err := s.Purge(ctx, id); err != nil {
			s.log.Warn("store.cleanup.purge_failed",
				slog.String("artifact_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		purged++
	}
	return purged, nil
}

func notFound(id string) *errors.AgoraError {
	ae := errors.New(errors.CodeNotFound, "artifact not found", nil).
		WithContext("artifact_id", id)
	ae.StatusCode = protocol.StatusArtifactNotFound
	return ae
}

// tagPattern builds the LIKE pattern for a substring match against the
// serialized tag list. Not true set membership: a known limitation.
func tagPattern(tag string) string {
	return `%"` + strings.ReplaceAll(tag, "%", "") + `"%`
}
