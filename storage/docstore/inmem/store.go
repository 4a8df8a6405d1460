// Package inmemstore provides the in-memory docstore.Store used in DEV mode
// and throughout the tests.
package inmemstore

import (
	"context"
	"sync"

	"github.com/kudatec/karo/storage/docstore"
)

type store struct {
	mu   sync.RWMutex
	tree map[string]interface{}
}

var _ docstore.Store = (*store)(nil) // interface compliance check

func Open() docstore.Store {
	return &store{tree: make(map[string]interface{})}
}

func (s *store) Get(_ context.Context, path string, dest interface{}) error {
	segs := docstore.SplitPath(path)
	if len(segs) == 0 {
		return docstore.ErrEmptyPath
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := docstore.GetAtPath(s.tree, segs)
	if !ok {
		return docstore.ErrPathNotFound
	}
	return docstore.Decode(node, dest)
}

func (s *store) Set(ctx context.Context, path string, value interface{}) error {
	return s.Update(ctx, map[string]interface{}{path: value})
}

func (s *store) Update(_ context.Context, updates map[string]interface{}) error {
	normalized, err := normalize(updates)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(normalized)
}

func (s *store) UpdateIf(_ context.Context, conds map[string]interface{}, updates map[string]interface{}) (bool, error) {
	if len(conds) == 0 {
		return false, docstore.ErrEmptyPath
	}
	normConds, err := normalize(conds)
	if err != nil {
		return false, err
	}
	normalized, err := normalize(updates)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cond := range normConds {
		current, _ := docstore.GetAtPath(s.tree, cond.segs)
		eq, err := docstore.JSONEqual(current, cond.value)
		if err != nil {
			return false, err
		}
		if !eq {
			return false, nil
		}
	}
	if err := s.apply(normalized); err != nil {
		return false, err
	}
	return true, nil
}

// apply assumes the write lock is held and all values are normalized.
// Paths were validated during normalization, so none of the writes below
// can fail partway through.
func (s *store) apply(updates []normalizedUpdate) error {
	for _, u := range updates {
		if err := docstore.SetAtPath(s.tree, u.segs, u.value); err != nil {
			return err
		}
	}
	return nil
}

type normalizedUpdate struct {
	segs  []string
	value interface{}
}

func normalize(updates map[string]interface{}) ([]normalizedUpdate, error) {
	out := make([]normalizedUpdate, 0, len(updates))
	for path, value := range updates {
		segs := docstore.SplitPath(path)
		if len(segs) == 0 {
			return nil, docstore.ErrEmptyPath
		}
		if value == nil {
			out = append(out, normalizedUpdate{segs: segs})
			continue
		}
		norm, err := docstore.Normalize(value)
		if err != nil {
			return nil, err
		}
		out = append(out, normalizedUpdate{segs: segs, value: norm})
	}
	return out, nil
}
