// Package memstore is an in-memory document store used by unit tests
// and local development. It mirrors the postgres adapter's contract,
// including snapshot rollback inside transactions.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
)

type Store struct {
	mu     sync.RWMutex
	tables map[string]map[uuid.UUID]*domain.Document
}

func New() *Store {
	return &Store{tables: make(map[string]map[uuid.UUID]*domain.Document)}
}

func (s *Store) table(name string) map[uuid.UUID]*domain.Document {
	t, ok := s.tables[name]
	if !ok {
		t = make(map[uuid.UUID]*domain.Document)
		s.tables[name] = t
	}
	return t
}

// RunInTx snapshots all tables and restores them when fn fails, so a
// mid-transaction error leaves no partial writes behind.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	snapshot := make(map[string]map[uuid.UUID]*domain.Document, len(s.tables))
	for name, t := range s.tables {
		cp := make(map[uuid.UUID]*domain.Document, len(t))
		for id, doc := range t {
			cp[id] = doc.Clone()
		}
		snapshot[name] = cp
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.tables = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, table string, id uuid.UUID) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.table(table)[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *Store) GetByField(ctx context.Context, table, field string, value any) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.table(table) {
		if doc.Fields[field] == value {
			return doc.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) GetByOwner(ctx context.Context, table string, userID uuid.UUID) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.table(table) {
		if doc.UserID == userID {
			return doc.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) Insert(ctx context.Context, table string, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.table(table)[doc.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.table(table)[doc.ID] = doc.Clone()
	return nil
}

func (s *Store) Update(ctx context.Context, table string, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.table(table)[doc.ID]; !ok {
		return domain.ErrNotFound
	}
	s.table(table)[doc.ID] = doc.Clone()
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.table(table)[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.table(table), id)
	return nil
}

func (s *Store) DeleteMatching(ctx context.Context, table, field string, value any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	t := s.table(table)
	for id, doc := range t {
		if doc.Fields[field] == value {
			delete(t, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteStale(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	t := s.table(table)
	for id, doc := range t {
		if doc.UpdatedAt.Before(cutoff) {
			delete(t, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Find(ctx context.Context, table string, q domain.Query) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matching(table, q), nil
}

func (s *Store) Page(ctx context.Context, table string, q domain.Query, opts domain.PaginationOpts) (*domain.DocumentPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.matching(table, q)

	start := 0
	if opts.Cursor != "" {
		for i := range docs {
			if docs[i].ID.String() == opts.Cursor {
				start = i + 1
				break
			}
		}
	}

	end := start + opts.NumItems
	if end >= len(docs) {
		return &domain.DocumentPage{Page: docs[start:], IsDone: true}, nil
	}
	page := docs[start:end]
	return &domain.DocumentPage{
		Page:           page,
		ContinueCursor: page[len(page)-1].ID.String(),
	}, nil
}

func (s *Store) Search(ctx context.Context, table, field, query string, q domain.Query) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var out []domain.Document
	for _, doc := range s.matching(table, q) {
		v, ok := doc.Fields[field].(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(v), needle) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// matching filters and sorts by creation time then id, the same order
// the postgres adapter pages in. Caller holds the lock.
func (s *Store) matching(table string, q domain.Query) []domain.Document {
	var out []domain.Document
	for _, doc := range s.table(table) {
		if q.MatchesDoc(doc) {
			out = append(out, *doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreationTime.Equal(out[j].CreationTime) {
			return out[i].CreationTime.Before(out[j].CreationTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
