package document

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
)

// whereSqlizer translates a domain.Where into SQL with the same
// semantics as Where.Matches: top-level equality and Own are conjunctive
// and the or-branches union in. Field equality uses jsonb containment so
// numeric values compare by value, mirroring the predicate's loose
// numeric comparison.
func whereSqlizer(w *domain.Where, caller uuid.UUID) (sq.Sqlizer, error) {
	if w.IsZero() {
		return nil, nil
	}

	var conj sq.And

	if len(w.Eq) > 0 {
		blob, err := json.Marshal(w.Eq)
		if err != nil {
			return nil, fmt.Errorf("marshal where filter: %w", err)
		}
		conj = append(conj, sq.Expr("fields @> ?::jsonb", string(blob)))
	}

	if w.Own {
		if caller == uuid.Nil {
			// an anonymous caller owns nothing
			conj = append(conj, sq.Expr("FALSE"))
		} else {
			conj = append(conj, sq.Eq{"user_id": caller})
		}
	}

	if len(w.Or) > 0 {
		var union sq.Or
		for i := range w.Or {
			branch, err := whereSqlizer(&w.Or[i], caller)
			if err != nil {
				return nil, err
			}
			if branch == nil {
				// an empty branch matches everything
				branch = sq.Expr("TRUE")
			}
			union = append(union, branch)
		}
		conj = append(conj, union)
	}

	if len(conj) == 0 {
		return nil, nil
	}
	return conj, nil
}

// applyQuery adds the query conditions shared by Find, Page and Search.
func applyQuery(b sq.SelectBuilder, table string, q domain.Query) (sq.SelectBuilder, error) {
	b = b.Where(sq.Eq{"tbl": table})
	if !q.IncludeDeleted {
		b = b.Where("deleted_at IS NULL")
	}
	if q.OrgID != nil {
		b = b.Where(sq.Eq{"org_id": *q.OrgID})
	}
	if q.Where != nil {
		cond, err := whereSqlizer(q.Where, q.Caller)
		if err != nil {
			return b, err
		}
		if cond != nil {
			b = b.Where(cond)
		}
	}
	return b, nil
}

// fieldJSON builds the jsonb containment argument for a single-field
// equality match.
func fieldJSON(field string, value any) (string, error) {
	blob, err := json.Marshal(map[string]any{field: value})
	if err != nil {
		return "", fmt.Errorf("marshal field match: %w", err)
	}
	return string(blob), nil
}

// escapeLike neutralizes LIKE metacharacters in user-supplied search
// input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// cursor format: base64("creation_time RFC3339Nano|id"). Pages order by
// (creation_time, id) ascending, so the pair is a total order.
func encodeCursor(t time.Time, id uuid.UUID) string {
	raw := t.UTC().Format(time.RFC3339Nano) + "|" + id.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, domain.Validation("cursor", "malformed cursor")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, domain.Validation("cursor", "malformed cursor")
	}
	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, domain.Validation("cursor", "malformed cursor")
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, domain.Validation("cursor", "malformed cursor")
	}
	return t, id, nil
}
