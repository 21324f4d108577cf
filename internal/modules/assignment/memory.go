package assignment

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"kwenda/internal/types"
)

// MemoryRepository keeps assignments in process. It is used when no
// database is configured.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[types.ID]Assignment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[types.ID]Assignment)}
}

func (r *MemoryRepository) Create(_ context.Context, a *Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[a.ID]; ok {
		return fmt.Errorf("assignment %s already exists", a.ID)
	}
	r.rows[a.ID] = *a
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id types.ID) (*Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok || a.Status != from || a.StatusVersion != version {
		return false, nil
	}
	a.Status = to
	a.StatusVersion++
	a.RespondedAt = &at
	r.rows[id] = a
	return true, nil
}

func (r *MemoryRepository) ListStaleOffered(_ context.Context, before time.Time, limit int) ([]*Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Assignment
	for _, a := range r.rows {
		if a.Status == StatusOffered && a.CreatedAt.Before(before) {
			out = append(out, &a)
		}
	}
	slices.SortFunc(out, func(x, y *Assignment) int { return x.CreatedAt.Compare(y.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
