package medicalrecord

import (
	"context"
	"sort"
	"sync"
	"time"
)

type mockRepo struct {
	mu    sync.Mutex
	store map[int64]*MedicalRecord
	next  int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[int64]*MedicalRecord)}
}

func (m *mockRepo) Create(_ context.Context, r *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	r.ID = m.next
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*MedicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, r *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[r.ID]; !ok {
		return ErrNotFound
	}
	r.UpdatedAt = time.Now()
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*MedicalRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*MedicalRecord
	for _, r := range m.store {
		if f.PatientID != nil && r.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && r.DoctorID != *f.DoctorID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }
