package review

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medcoding/pkg/pagination"
)

// MemoryRepo is an in-process Repository. Status checks and writes happen
// under one lock, so it gives the same compare-and-set guarantees as the
// Postgres repository.
type MemoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*ReviewTask
	seq   int64

	// FailCreate, when non-nil, decides whether the n-th Create (1-based)
	// fails.
	FailCreate func(n int) error
	// FailUpdate, when set, is returned by UpdatePending.
	FailUpdate error
	creates    int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*ReviewTask)}
}

func (m *MemoryRepo) Create(_ context.Context, t *ReviewTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.FailCreate != nil {
		if err := m.FailCreate(m.creates); err != nil {
			return err
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	m.seq++
	t.Seq = m.seq
	t.Version = 1
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	m.items[t.ID] = t.Clone()
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*ReviewTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryRepo) sorted(match func(*ReviewTask) bool) []*ReviewTask {
	var out []*ReviewTask
	for _, t := range m.items {
		if match(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (m *MemoryRepo) ListByStatus(_ context.Context, status Status, limit, offset int) ([]*ReviewTask, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(t *ReviewTask) bool { return t.Status == status })
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(all))
	return all[start:end], len(all), nil
}

func (m *MemoryRepo) ListByEncounter(_ context.Context, encounterID uuid.UUID) ([]*ReviewTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(t *ReviewTask) bool { return t.EncounterID == encounterID }), nil
}

func (m *MemoryRepo) UpdatePending(_ context.Context, t *ReviewTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[t.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != StatusPending {
		return ErrInvalidStateTransition
	}
	if m.FailUpdate != nil {
		return m.FailUpdate
	}
	if cur.Version != t.Version {
		return ErrStaleTask
	}
	t.Version = cur.Version + 1
	next := t.Clone()
	next.Status = cur.Status
	next.Seq = cur.Seq
	next.CreatedAt = cur.CreatedAt
	m.items[t.ID] = next
	return nil
}

func (m *MemoryRepo) Transition(_ context.Context, id uuid.UUID, to Status, decidedBy string, at time.Time) (*ReviewTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if cur.Status != StatusPending {
		return nil, ErrInvalidStateTransition
	}
	cur.Status = to
	cur.Version++
	cur.DecidedBy = &decidedBy
	cur.DecidedAt = &at
	cur.UpdatedAt = at
	return cur.Clone(), nil
}
