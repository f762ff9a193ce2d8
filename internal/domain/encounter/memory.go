package encounter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medcoding/pkg/pagination"
)

// MemoryRepo is an in-process Repository used by tests and local tooling.
type MemoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Encounter
	now   func() time.Time

	// FailCreate, when set, is returned by Create.
	FailCreate error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Encounter), now: time.Now}
}

func (m *MemoryRepo) Create(_ context.Context, enc *Encounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return m.FailCreate
	}
	if enc.ID == uuid.Nil {
		enc.ID = uuid.New()
	}
	enc.CreatedAt = m.now()
	cp := *enc
	cp.AssignedCodes = append([]string{}, enc.AssignedCodes...)
	m.items[enc.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Encounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	enc, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *enc
	cp.AssignedCodes = append([]string{}, enc.AssignedCodes...)
	return &cp, nil
}

func (m *MemoryRepo) list(match func(*Encounter) bool, limit, offset int) ([]*Encounter, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Encounter
	for _, enc := range m.items {
		if match(enc) {
			cp := *enc
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(all))
	return all[start:end], len(all)
}

func (m *MemoryRepo) List(_ context.Context, limit, offset int) ([]*Encounter, int, error) {
	items, total := m.list(func(*Encounter) bool { return true }, limit, offset)
	return items, total, nil
}

func (m *MemoryRepo) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]*Encounter, int, error) {
	items, total := m.list(func(e *Encounter) bool { return e.PatientID == patientID }, limit, offset)
	return items, total, nil
}

func (m *MemoryRepo) AppendCode(_ context.Context, id uuid.UUID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	enc, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	for _, c := range enc.AssignedCodes {
		if c == code {
			return nil
		}
	}
	enc.AssignedCodes = append(enc.AssignedCodes, code)
	return nil
}

// Len reports how many encounters are stored.
func (m *MemoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
