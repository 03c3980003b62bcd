package store

import (
	"context"
	"sort"
	"sync"

	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/types"
)

// MemoryStore implements IssueStore and corrective.Repository in memory.
type MemoryStore struct {
	mu          sync.RWMutex
	issues      map[string]types.CorrectableIssue
	corrective  map[string]types.CorrectiveIssue
	byWorkOrder map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issues:      make(map[string]types.CorrectableIssue),
		corrective:  make(map[string]types.CorrectiveIssue),
		byWorkOrder: make(map[string]string),
	}
}

func (s *MemoryStore) PutIssues(_ context.Context, issues []types.CorrectableIssue) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, issue := range issues {
		if _, ok := s.issues[issue.ID]; ok {
			continue
		}
		s.issues[issue.ID] = issue
		n++
	}
	return n, nil
}

func (s *MemoryStore) Issue(_ context.Context, id string) (types.CorrectableIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues[id]
	if !ok {
		return types.CorrectableIssue{}, ErrIssueNotFound
	}
	return issue, nil
}

func (s *MemoryStore) IssuesByProperty(_ context.Context, propertyID string) ([]types.CorrectableIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.CorrectableIssue
	for _, issue := range s.issues {
		if issue.PropertyID == propertyID {
			out = append(out, issue)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Properties(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, issue := range s.issues {
		seen[issue.PropertyID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, ci types.CorrectiveIssue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.corrective[ci.ID]; ok {
		return corrective.ErrAlreadyTracked
	}
	s.corrective[ci.ID] = ci
	if ci.LinkedWorkOrderID != "" {
		s.byWorkOrder[ci.LinkedWorkOrderID] = ci.ID
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (types.CorrectiveIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ci, ok := s.corrective[id]
	if !ok {
		return types.CorrectiveIssue{}, corrective.ErrNotFound
	}
	return ci, nil
}

func (s *MemoryStore) GetByWorkOrder(_ context.Context, workOrderID string) (types.CorrectiveIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byWorkOrder[workOrderID]
	if !ok {
		return types.CorrectiveIssue{}, corrective.ErrNotFound
	}
	return s.corrective[id], nil
}

func (s *MemoryStore) Update(_ context.Context, ci types.CorrectiveIssue, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.corrective[ci.ID]
	if !ok {
		return corrective.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return corrective.ErrConcurrentTransition
	}
	if cur.LinkedWorkOrderID != ci.LinkedWorkOrderID {
		delete(s.byWorkOrder, cur.LinkedWorkOrderID)
		if ci.LinkedWorkOrderID != "" {
			s.byWorkOrder[ci.LinkedWorkOrderID] = ci.ID
		}
	}
	s.corrective[ci.ID] = ci
	return nil
}

func (s *MemoryStore) List(_ context.Context, f corrective.Filter) ([]types.CorrectiveIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.CorrectiveIssue
	for _, ci := range s.corrective {
		if f.Matches(ci) {
			out = append(out, ci)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TrackedAt.Equal(out[j].TrackedAt) {
			return out[i].TrackedAt.Before(out[j].TrackedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
