package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
)

// Handler executes one named endpoint against a decoded JSON body.
type Handler func(ctx context.Context, body json.RawMessage) (any, error)

// Bundle maps operation names to handlers for one table.
type Bundle map[string]Handler

// Registry holds the endpoint bundles of every registered table. It is
// a plain instance wired at startup, not process-global state.
type Registry struct {
	bundles map[string]Bundle
}

func NewRegistry() *Registry {
	return &Registry{bundles: make(map[string]Bundle)}
}

// Register adds a table's bundle; registering the same table twice is a
// wiring bug and fails loudly.
func (r *Registry) Register(table string, b Bundle) error {
	if _, ok := r.bundles[table]; ok {
		return fmt.Errorf("table %q already registered: %w", table, domain.ErrAlreadyExists)
	}
	r.bundles[table] = b
	return nil
}

// Lookup resolves a table.operation pair.
func (r *Registry) Lookup(table, op string) (Handler, bool) {
	b, ok := r.bundles[table]
	if !ok {
		return nil, false
	}
	h, ok := b[op]
	return h, ok
}

// Tables returns the registered table names, sorted.
func (r *Registry) Tables() []string {
	out := make([]string, 0, len(r.bundles))
	for t := range r.bundles {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// reserved keys of the request envelope; everything else in the body is
// treated as schema fields.
var reservedKeys = map[string]struct{}{
	"id": {}, "ids": {}, "orgId": {}, "parentId": {},
	"editorId": {}, "editorIds": {}, "expectedUpdatedAt": {},
	"paginationOpts": {}, "where": {}, "query": {}, "own": {},
	"key": {}, "includeExpired": {}, "slug": {}, "excludeId": {},
	"data": {},
}

type request struct {
	ID                uuid.UUID             `json:"id"`
	IDs               []uuid.UUID           `json:"ids"`
	OrgID             uuid.UUID             `json:"orgId"`
	ParentID          uuid.UUID             `json:"parentId"`
	EditorID          uuid.UUID             `json:"editorId"`
	EditorIDs         []uuid.UUID           `json:"editorIds"`
	ExpectedUpdatedAt *time.Time            `json:"expectedUpdatedAt"`
	PaginationOpts    domain.PaginationOpts `json:"paginationOpts"`
	Where             *domain.Where         `json:"where"`
	Query             string                `json:"query"`
	Own               bool                  `json:"own"`
	Key               string                `json:"key"`
	IncludeExpired    bool                  `json:"includeExpired"`
	Slug              string                `json:"slug"`
	ExcludeID         *uuid.UUID            `json:"excludeId"`
	Data              map[string]any        `json:"data"`
}

// decode splits a request body into the envelope and the inline schema
// fields. An empty body is a valid empty request.
func decode(body json.RawMessage) (*request, map[string]any, error) {
	req := &request{}
	if len(body) == 0 {
		return req, map[string]any{}, nil
	}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, nil, domain.Validation("body", "malformed request body")
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, domain.Validation("body", "malformed request body")
	}
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if _, ok := reservedKeys[k]; ok {
			continue
		}
		fields[k] = v
	}
	return req, fields, nil
}

// fields prefers the explicit data envelope over inline fields; bulk
// operations carry their patch under data so ids stay unambiguous.
func (r *request) fields(inline map[string]any) map[string]any {
	if r.Data != nil {
		return r.Data
	}
	return inline
}

func requireID(id uuid.UUID, name string) error {
	if id == uuid.Nil {
		return domain.Validation(name, "required")
	}
	return nil
}

// Bundle exposes the owner-scoped operations as named endpoints.
func (c *Crud) Bundle() Bundle {
	return Bundle{
		"create": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, inline, err := decode(body)
			if err != nil {
				return nil, err
			}
			return c.Create(ctx, req.fields(inline))
		},
		"read": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Read(ctx, req.ID, ReadOptions{Own: req.Own, Where: req.Where})
		},
		"list": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			return c.List(ctx, ListRequest{PaginationOpts: req.PaginationOpts, Where: req.Where})
		},
		"search": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			return c.Search(ctx, SearchRequest{Query: req.Query, Where: req.Where})
		},
		"update": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, inline, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Update(ctx, req.ID, req.fields(inline), req.ExpectedUpdatedAt)
		},
		"rm": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Rm(ctx, req.ID)
		},
		"restore": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Restore(ctx, req.ID)
		},
		"bulkRm": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			return c.BulkRm(ctx, req.IDs)
		},
		"bulkUpdate": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, inline, err := decode(body)
			if err != nil {
				return nil, err
			}
			return c.BulkUpdate(ctx, req.IDs, req.fields(inline))
		},
	}
}

// Bundle exposes the org-scoped operations as named endpoints. Every
// operation requires orgId in the request.
func (c *OrgCrud) Bundle() Bundle {
	withOrg := func(fn func(ctx context.Context, req *request, inline map[string]any) (any, error)) Handler {
		return func(ctx context.Context, body json.RawMessage) (any, error) {
			req, inline, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.OrgID, "orgId"); err != nil {
				return nil, err
			}
			return fn(ctx, req, inline)
		}
	}

	return Bundle{
		"create": withOrg(func(ctx context.Context, req *request, inline map[string]any) (any, error) {
			return c.Create(ctx, req.OrgID, req.fields(inline))
		}),
		"read": withOrg(func(ctx context.Context, req *request, _ map[string]any) (any, error) {
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Read(ctx, req.OrgID, req.ID)
		}),
		"list": withOrg(func(ctx context.Context, req *request, _ map[string]any) (any, error) {
			return c.List(ctx, req.OrgID, ListRequest{PaginationOpts: req.PaginationOpts, Where: req.Where})
		}),
		"search": withOrg(func(ctx context.Context, req *request, _ map[string]any) (any, error) {
			return c.Search(ctx, req.OrgID, SearchRequest{Query: req.Query, Where: req.Where})
		}),
		"update": withOrg(func(ctx context.Context, req *request, inline map[string]any) (any, error) {
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Update(ctx, req.OrgID, req.ID, req.fields(inline), req.ExpectedUpdatedAt)
		}),
		"rm": withOrg(func(ctx context.Context, req *request, _ map[string]any) (any, error) {
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Rm(ctx, req.OrgID, req.ID)
		}),
		"restore": withOrg(func(ctx context.Context, req *request, _ map[string]any) (any, error) {
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Restore(ctx, req.OrgID, req.ID)
		}),
		"bulkRm": withOrg(func(ctx context.Context, req *request, _ map[string]any) (any, error) {
			return c.BulkRm(ctx, req.OrgID, req.IDs)
		}),
		"bulkUpdate": withOrg(func(ctx context.Context, req *request, inline map[string]any) (any, error) {
			return c.BulkUpdate(ctx, req.OrgID, req.IDs, req.fields(inline))
		}),
		"addEditor": withOrg(func(ctx context.Context, req *request, _ map[string]any) (any, error) {
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			if err := requireID(req.EditorID, "editorId"); err != nil {
				return nil, err
			}
			return c.AddEditor(ctx, req.OrgID, req.ID, req.EditorID)
		}),
		"removeEditor": withOrg(func(ctx context.Context, req *request, _ map[string]any) (any, error) {
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			if err := requireID(req.EditorID, "editorId"); err != nil {
				return nil, err
			}
			return c.RemoveEditor(ctx, req.OrgID, req.ID, req.EditorID)
		}),
		"setEditors": withOrg(func(ctx context.Context, req *request, _ map[string]any) (any, error) {
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.SetEditors(ctx, req.OrgID, req.ID, req.EditorIDs)
		}),
		"isSlugAvailable": withOrg(func(ctx context.Context, req *request, _ map[string]any) (any, error) {
			return c.IsSlugAvailable(ctx, req.OrgID, req.Slug, req.ExcludeID)
		}),
	}
}

// Bundle exposes the parent-owned operations as named endpoints.
func (c *ChildCrud) Bundle() Bundle {
	return Bundle{
		"create": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, inline, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ParentID, "parentId"); err != nil {
				return nil, err
			}
			return c.Create(ctx, req.ParentID, req.fields(inline))
		},
		"read": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Read(ctx, req.ID)
		},
		"publicRead": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.PublicRead(ctx, req.ID)
		},
		"list": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ParentID, "parentId"); err != nil {
				return nil, err
			}
			return c.List(ctx, req.ParentID, ListRequest{PaginationOpts: req.PaginationOpts, Where: req.Where})
		},
		"publicList": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ParentID, "parentId"); err != nil {
				return nil, err
			}
			return c.PublicList(ctx, req.ParentID, ListRequest{PaginationOpts: req.PaginationOpts, Where: req.Where})
		},
		"update": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, inline, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Update(ctx, req.ID, req.fields(inline), req.ExpectedUpdatedAt)
		},
		"rm": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			if err := requireID(req.ID, "id"); err != nil {
				return nil, err
			}
			return c.Rm(ctx, req.ID)
		},
	}
}

// Bundle exposes the TTL-cache operations as named endpoints. The write
// has upsert-by-key semantics; it answers to both create and upsert.
func (c *CacheCrud) Bundle() Bundle {
	upsert := func(ctx context.Context, body json.RawMessage) (any, error) {
		req, inline, err := decode(body)
		if err != nil {
			return nil, err
		}
		return c.Upsert(ctx, req.fields(inline))
	}

	return Bundle{
		"get": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			if req.Key == "" {
				return nil, domain.Validation("key", "required")
			}
			return c.Get(ctx, req.Key)
		},
		"create": upsert,
		"upsert": upsert,
		"all": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			return c.All(ctx, req.IncludeExpired)
		},
		"invalidate": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, _, err := decode(body)
			if err != nil {
				return nil, err
			}
			if req.Key == "" {
				return nil, domain.Validation("key", "required")
			}
			return nil, c.Invalidate(ctx, req.Key)
		},
		"purge": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return c.Purge(ctx)
		},
	}
}

// Bundle exposes the one-per-user operations as named endpoints.
func (c *SingletonCrud) Bundle() Bundle {
	return Bundle{
		"get": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return c.Get(ctx)
		},
		"upsert": func(ctx context.Context, body json.RawMessage) (any, error) {
			req, inline, err := decode(body)
			if err != nil {
				return nil, err
			}
			return c.Upsert(ctx, req.fields(inline), req.ExpectedUpdatedAt)
		},
	}
}
