package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jllopis/agora/pkg/artifact"
	"github.com/jllopis/agora/pkg/errors"
)

// Filter selects artifacts. Zero fields are ignored. The tag filter is
// a substring match against the serialized tag list, not true set
// membership.
type Filter struct {
	Type          any
	Status        any
	Author        string
	Tags          []string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
	Offset        int
}

// Search runs a parameterized filter query against the index and
// hydrates each matching id through Retrieve (no bulk fetch).
func (s *SQLiteStore) Search(ctx context.Context, filter Filter) ([]*artifact.Artifact, error) {
	start := time.Now()

	where := "1=1"
	args := make([]any, 0)
	if filter.Type != nil {
		at, err := artifact.ParseType(filter.Type)
		if err != nil {
			return nil, errors.New(errors.CodeValidation, "invalid type filter", err)
		}
		where += " AND type = ?"
		args = append(args, string(at))
	}
	if filter.Status != nil {
		st, err := artifact.ParseStatus(filter.Status)
		if err != nil {
			return nil, errors.New(errors.CodeValidation, "invalid status filter", err)
		}
		where += " AND status = ?"
		args = append(args, string(st))
	}
	if filter.Author != "" {
		where += " AND author = ?"
		args = append(args, filter.Author)
	}
	for _, tag := range filter.Tags {
		where += " AND tags LIKE ?"
		args = append(args, tagPattern(tag))
	}
	if !filter.CreatedAfter.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, filter.CreatedAfter.UTC().UnixMilli())
	}
	if !filter.CreatedBefore.IsZero() {
		where += " AND created_at <= ?"
		args = append(args, filter.CreatedBefore.UTC().UnixMilli())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	// Drain and close the id cursor before hydrating: each hydration
	// runs its own queries, and an open cursor would pin a second pool
	// connection for them.
	ids, err := s.queryIDs(ctx,
		`SELECT id FROM `+artifactTable+` WHERE `+where+` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		s.metrics.RecordError(ctx, "search")
		return nil, errors.New(errors.CodeStorage, "search query", err)
	}

	out := make([]*artifact.Artifact, 0, len(ids))
	for _, id := range ids {
		a, err := s.Retrieve(ctx, id, "")
		if err != nil {
			// Hydration races purge; skip the id rather than abort the
			// whole result set.
			s.log.Warn("store.search.hydrate_failed",
				slog.String("artifact_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, a)
	}
	s.metrics.RecordOperation(ctx, "search", float64(time.Since(start).Seconds()*1000))
	return out, nil
}

// exportDocument is the batch exchange format.
type exportDocument struct {
	ExportedAt time.Time     `json:"exported_at"`
	Artifacts  []exportEntry `json:"artifacts"`
}

// exportEntry is the artifact JSON plus its content format. JSON
// carries []byte content as a base64 string; the format tells Import
// to decode it back so the checksum still describes the stored bytes.
type exportEntry struct {
	*artifact.Artifact
	ContentFormat string `json:"content_format,omitempty"`
}

// Export serializes every artifact in the index (deleted included)
// into a batch JSON document {exported_at, artifacts:[...]}. Each
// entry carries the content format so binary content survives the
// JSON round trip.
func (s *SQLiteStore) Export(ctx context.Context) ([]byte, error) {
	ids, err := s.queryIDs(ctx, `SELECT id FROM `+artifactTable+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "export query", err)
	}

	doc := exportDocument{ExportedAt: time.Now().UTC(), Artifacts: []exportEntry{}}
	for _, id := range ids {
		a, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		doc.Artifacts = append(doc.Artifacts, exportEntry{
			Artifact:      a,
			ContentFormat: artifact.ContentFormat(a.Content),
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// queryIDs runs an id-column query and fully drains the cursor before
// returning, so callers can follow up with per-id queries without
// holding a second connection.
func (s *SQLiteStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Import loads artifacts from an exported document. On id collision it
// skips unless overwrite is set. Returns the number imported; invalid
// artifacts are logged and skipped.
func (s *SQLiteStore) Import(ctx context.Context, data []byte, overwrite bool) (int, error) {
	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, errors.New(errors.CodeValidation, "parse import document", err)
	}

	imported := 0
	for _, entry := range doc.Artifacts {
		a := entry.Artifact
		if a == nil || a.ID == "" {
			continue
		}
		if entry.ContentFormat == "bin" {
			encoded, ok := a.Content.(string)
			if !ok {
				s.log.Warn("store.import.bad_binary_content", slog.String("artifact_id", a.ID))
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				s.log.Warn("store.import.bad_binary_content",
					slog.String("artifact_id", a.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			a.Content = raw
		}
		if !overwrite {
			var exists int
			err := s.db.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM `+artifactTable+` WHERE id = ?`, a.ID).Scan(&exists)
			if err != nil {
				return imported, errors.New(errors.CodeStorage, "import existence check", err).
					WithContext("artifact_id", a.ID)
			}
			if exists > 0 {
				s.log.Info("store.import.skipped", slog.String("artifact_id", a.ID))
				continue
			}
		}
		if _, err := s.Store(ctx, a); err != nil {
			s.log.Warn("store.import.failed",
				slog.String("artifact_id", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		imported++
	}
	return imported, nil
}

// AuthorCount pairs an author with their artifact count.
type AuthorCount struct {
	Author string `json:"author"`
	Count  int    `json:"count"`
}

// Statistics aggregates the index for observability surfaces.
type Statistics struct {
	Total       int            `json:"total"`
	ByType      map[string]int `json:"by_type"`
	ByStatus    map[string]int `json:"by_status"`
	TopAuthors  []AuthorCount  `json:"top_authors"`
	TotalSize   int64          `json:"total_size"`
	AverageSize float64        `json:"average_size"`
}

// GetStatistics returns counts by type and status, the top-10 authors,
// and total/average content size.
func (s *SQLiteStore) GetStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		ByType:     make(map[string]int),
		ByStatus:   make(map[string]int),
		TopAuthors: []AuthorCount{},
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(AVG(size), 0) FROM `+artifactTable)
	if err := row.Scan(&stats.Total, &stats.TotalSize, &stats.AverageSize); err != nil {
		return nil, errors.New(errors.CodeStorage, "statistics totals", err)
	}

	if err := s.countGroup(ctx, "type", stats.ByType); err != nil {
		return nil, err
	}
	if err := s.countGroup(ctx, "status", stats.ByStatus); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT author, COUNT(*) AS n FROM `+artifactTable+` GROUP BY author ORDER BY n DESC, author ASC LIMIT 10`)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "statistics authors", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ac AuthorCount
		if err := rows.Scan(&ac.Author, &ac.Count); err != nil {
			return nil, errors.New(errors.CodeStorage, "statistics authors", err)
		}
		stats.TopAuthors = append(stats.TopAuthors, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "statistics authors", err)
	}
	return stats, nil
}

func (s *SQLiteStore) countGroup(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM `+artifactTable+` GROUP BY `+column)
	if err != nil {
		return errors.New(errors.CodeStorage, "statistics group", err).WithContext("column", column)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return errors.New(errors.CodeStorage, "statistics group", err).WithContext("column", column)
		}
		into[key] = n
	}
	return rows.Err()
}
