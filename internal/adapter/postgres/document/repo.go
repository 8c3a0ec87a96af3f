// Package document implements the generic document store on a single
// PostgreSQL table: system columns as real columns, business fields as
// jsonb. Dynamic filters are built with squirrel; everything else is
// hand-written SQL.
package document

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgekit/forge-backend/internal/adapter/postgres"
	"github.com/forgekit/forge-backend/internal/domain"
)

// Repo provides document persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new document repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const columns = "id, creation_time, updated_at, user_id, org_id, deleted_at, editors, fields"

const getSQL = `
SELECT ` + columns + `
FROM documents
WHERE tbl = $1 AND id = $2`

const getByFieldSQL = `
SELECT ` + columns + `
FROM documents
WHERE tbl = $1 AND fields @> $2::jsonb
ORDER BY creation_time
LIMIT 1`

const getByOwnerSQL = `
SELECT ` + columns + `
FROM documents
WHERE tbl = $1 AND user_id = $2
ORDER BY creation_time
LIMIT 1`

const insertSQL = `
INSERT INTO documents (id, tbl, creation_time, updated_at, user_id, org_id, deleted_at, editors, fields)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const updateSQL = `
UPDATE documents
SET updated_at = $3, org_id = $4, deleted_at = $5, editors = $6, fields = $7
WHERE tbl = $1 AND id = $2`

const deleteSQL = `DELETE FROM documents WHERE tbl = $1 AND id = $2`

const deleteMatchingSQL = `DELETE FROM documents WHERE tbl = $1 AND fields @> $2::jsonb`

const deleteStaleSQL = `DELETE FROM documents WHERE tbl = $1 AND updated_at < $2`

func (r *Repo) Get(ctx context.Context, table string, id uuid.UUID) (*domain.Document, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	doc, err := scanDocument(q.QueryRow(ctx, getSQL, table, id))
	if err != nil {
		return nil, postgres.MapError(err, table)
	}
	return doc, nil
}

func (r *Repo) GetByField(ctx context.Context, table, field string, value any) (*domain.Document, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	match, err := fieldJSON(field, value)
	if err != nil {
		return nil, err
	}
	doc, err := scanDocument(q.QueryRow(ctx, getByFieldSQL, table, match))
	if err != nil {
		return nil, postgres.MapError(err, table)
	}
	return doc, nil
}

func (r *Repo) GetByOwner(ctx context.Context, table string, userID uuid.UUID) (*domain.Document, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	doc, err := scanDocument(q.QueryRow(ctx, getByOwnerSQL, table, userID))
	if err != nil {
		return nil, postgres.MapError(err, table)
	}
	return doc, nil
}

func (r *Repo) Insert(ctx context.Context, table string, doc *domain.Document) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx, insertSQL,
		doc.ID, table, doc.CreationTime, doc.UpdatedAt,
		doc.UserID, doc.OrgID, doc.DeletedAt, editorStrings(doc.Editors), doc.Fields,
	)
	return postgres.MapError(err, table)
}

func (r *Repo) Update(ctx context.Context, table string, doc *domain.Document) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx, updateSQL,
		table, doc.ID, doc.UpdatedAt,
		doc.OrgID, doc.DeletedAt, editorStrings(doc.Editors), doc.Fields,
	)
	if err != nil {
		return postgres.MapError(err, table)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", table, domain.ErrNotFound)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, table string, id uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx, deleteSQL, table, id)
	if err != nil {
		return postgres.MapError(err, table)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", table, domain.ErrNotFound)
	}
	return nil
}

func (r *Repo) DeleteMatching(ctx context.Context, table, field string, value any) (int64, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	match, err := fieldJSON(field, value)
	if err != nil {
		return 0, err
	}
	tag, err := q.Exec(ctx, deleteMatchingSQL, table, match)
	if err != nil {
		return 0, postgres.MapError(err, table)
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) DeleteStale(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx, deleteStaleSQL, table, cutoff)
	if err != nil {
		return 0, postgres.MapError(err, table)
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) Find(ctx context.Context, table string, query domain.Query) ([]domain.Document, error) {
	b, err := applyQuery(selectBase(), table, query)
	if err != nil {
		return nil, err
	}
	return r.queryAll(ctx, table, b.OrderBy("creation_time", "id"))
}

// Page returns one keyset page ordered by (creation_time, id). It
// fetches one extra row to decide IsDone without a second query.
func (r *Repo) Page(ctx context.Context, table string, query domain.Query, opts domain.PaginationOpts) (*domain.DocumentPage, error) {
	b, err := applyQuery(selectBase(), table, query)
	if err != nil {
		return nil, err
	}

	if opts.Cursor != "" {
		t, id, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		b = b.Where(sq.Expr("(creation_time, id) > (?, ?)", t, id))
	}

	docs, err := r.queryAll(ctx, table, b.
		OrderBy("creation_time", "id").
		Limit(uint64(opts.NumItems)+1))
	if err != nil {
		return nil, err
	}

	if len(docs) <= opts.NumItems {
		return &domain.DocumentPage{Page: docs, IsDone: true}, nil
	}
	page := docs[:opts.NumItems]
	last := page[len(page)-1]
	return &domain.DocumentPage{
		Page:           page,
		ContinueCursor: encodeCursor(last.CreationTime, last.ID),
	}, nil
}

// Search matches the designated search field case-insensitively by
// substring on top of the query filter. The expression index on
// (fields->>field) keeps this off a sequential scan for hot tables.
func (r *Repo) Search(ctx context.Context, table, field, query string, q domain.Query) ([]domain.Document, error) {
	b, err := applyQuery(selectBase(), table, q)
	if err != nil {
		return nil, err
	}
	b = b.Where(sq.Expr("fields->>? ILIKE ?", field, "%"+escapeLike(query)+"%"))
	return r.queryAll(ctx, table, b.OrderBy("creation_time", "id"))
}

func selectBase() sq.SelectBuilder {
	return sq.Select(
		"id", "creation_time", "updated_at", "user_id",
		"org_id", "deleted_at", "editors", "fields",
	).From("documents").PlaceholderFormat(sq.Dollar)
}

func (r *Repo) queryAll(ctx context.Context, table string, b sq.SelectBuilder) ([]domain.Document, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", table, err)
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, postgres.MapError(err, table)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, postgres.MapError(err, table)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, table)
	}
	return out, nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	var editors []string
	if err := row.Scan(
		&doc.ID, &doc.CreationTime, &doc.UpdatedAt, &doc.UserID,
		&doc.OrgID, &doc.DeletedAt, &editors, &doc.Fields,
	); err != nil {
		return nil, err
	}

	doc.Editors = make([]uuid.UUID, 0, len(editors))
	for _, e := range editors {
		id, err := uuid.Parse(e)
		if err != nil {
			return nil, fmt.Errorf("parse editor id %q: %w", e, err)
		}
		doc.Editors = append(doc.Editors, id)
	}
	if len(doc.Editors) == 0 {
		doc.Editors = nil
	}
	return &doc, nil
}

func editorStrings(editors []uuid.UUID) []string {
	out := make([]string, 0, len(editors))
	for _, e := range editors {
		out = append(out, e.String())
	}
	return out
}
