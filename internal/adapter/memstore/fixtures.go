package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
)

// Blobs records blob deletions so tests can assert on cleanup.
type Blobs struct {
	mu      sync.Mutex
	Deleted []string
	// Fail makes every Delete return this error.
	Fail error
}

func (b *Blobs) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return b.Fail
	}
	b.Deleted = append(b.Deleted, id)
	return nil
}

// Limits is an in-memory rate limit window store.
type Limits struct {
	mu      sync.Mutex
	windows map[string]domain.RateLimitWindow
}

func NewLimits() *Limits {
	return &Limits{windows: make(map[string]domain.RateLimitWindow)}
}

func (l *Limits) Get(ctx context.Context, userID uuid.UUID, table string) (*domain.RateLimitWindow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[userID.String()+"/"+table]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &w, nil
}

func (l *Limits) Put(ctx context.Context, w domain.RateLimitWindow) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows[w.UserID.String()+"/"+w.Table] = w
	return nil
}

// Authors resolves author profiles from a fixed map.
type Authors struct {
	Profiles map[uuid.UUID]domain.Author
}

func (a *Authors) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Author, error) {
	out := make(map[uuid.UUID]domain.Author, len(ids))
	for _, id := range ids {
		if p, ok := a.Profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// Orgs is a fixed organization directory.
type Orgs struct {
	Organizations map[uuid.UUID]domain.Organization
	Members       map[uuid.UUID]map[uuid.UUID]domain.OrgMember
}

func NewOrgs() *Orgs {
	return &Orgs{
		Organizations: make(map[uuid.UUID]domain.Organization),
		Members:       make(map[uuid.UUID]map[uuid.UUID]domain.OrgMember),
	}
}

func (o *Orgs) AddOrg(org domain.Organization) {
	o.Organizations[org.ID] = org
}

func (o *Orgs) AddMember(m domain.OrgMember) {
	if o.Members[m.OrgID] == nil {
		o.Members[m.OrgID] = make(map[uuid.UUID]domain.OrgMember)
	}
	o.Members[m.OrgID][m.UserID] = m
}

func (o *Orgs) GetOrg(ctx context.Context, orgID uuid.UUID) (*domain.Organization, error) {
	org, ok := o.Organizations[orgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &org, nil
}

func (o *Orgs) GetMember(ctx context.Context, orgID, userID uuid.UUID) (*domain.OrgMember, error) {
	m, ok := o.Members[orgID][userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}
