package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches projects with PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const projectTSVector = `to_tsvector('english', p.title || ' ' || p.author || ' ' || p.classification)`

// Search runs plainto_tsquery over project titles, authors and
// classifications, restricted to generally visible projects in the org.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := projectTSVector + ` @@ plainto_tsquery('english', $1)
		AND p.org_id = $2
		AND (p.visibility = 'public' OR p.status = 'available')`
	args := []any{q.Text, q.OrgID}

	ctx := context.Background()

	var total int
	countSQL := fmt.Sprintf(`SELECT count(*) FROM projects p WHERE %s`, where)
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT p.project_id, p.title,
			ts_headline('english', p.author, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			p.status, p.visibility, p.classification
		FROM projects p
		WHERE %s
		ORDER BY ts_rank(%s, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, projectTSVector, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ProjectID, &r.Title, &r.Snippet, &r.Status, &r.Visibility, &r.Classification); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all project records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT p.project_id, p.org_id, p.title, p.author, p.classification, p.status, p.visibility,
			COALESCE(STRING_AGG(t.title, E'\n'), '')
		FROM projects p
		LEFT JOIN project_tags pt ON pt.project_id = p.project_id
		LEFT JOIN tags t ON t.tag_id = pt.tag_id
		GROUP BY p.project_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	defer rows.Close()

	records := make([]ProjectRecord, 0)
	for rows.Next() {
		var r ProjectRecord
		var tagTitles string
		if err := rows.Scan(&r.ProjectID, &r.OrgID, &r.Title, &r.Author, &r.Classification, &r.Status, &r.Visibility, &tagTitles); err != nil {
			return nil, fmt.Errorf("scan project record: %w", err)
		}
		if tagTitles != "" {
			r.Tags = strings.Split(tagTitles, "\n")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project records: %w", err)
	}
	return records, nil
}
