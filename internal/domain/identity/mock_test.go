package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hospital/hms/internal/platform/auth"
)

type mockUserRepo struct {
	mu    sync.Mutex
	store map[int64]*User
	next  int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{store: make(map[int64]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	m.next++
	u.ID = m.next
	u.CreatedAt = time.Now()
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.store {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for id := int64(1); id <= m.next; id++ {
		if u, ok := m.store[id]; ok {
			out = append(out, u)
		}
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	if offset+limit < total {
		out = out[offset : offset+limit]
	} else {
		out = out[offset:]
	}
	return out, total, nil
}

type mockPatientRepo struct {
	store map[int64]*Patient
	next  int64
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{store: make(map[int64]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.next++
	p.ID = m.next
	p.CreatedAt = time.Now()
	m.store[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id int64) (*Patient, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPatientRepo) List(_ context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.store {
		if name == "" || strings.Contains(strings.ToLower(p.FullName), strings.ToLower(name)) {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

type mockDoctorRepo struct {
	store map[int64]*Doctor
	next  int64
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{store: make(map[int64]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	m.next++
	d.ID = m.next
	d.CreatedAt = time.Now()
	m.store[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id int64) (*Doctor, error) {
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *mockDoctorRepo) List(_ context.Context, specialty string, limit, offset int) ([]*Doctor, int, error) {
	var out []*Doctor
	for _, d := range m.store {
		if specialty == "" || d.Specialty == specialty {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

var testKey = []byte("identity-test-key")

func newTestService() (*Service, *mockUserRepo) {
	users := newMockUserRepo()
	svc := NewService(users, newMockPatientRepo(), newMockDoctorRepo(),
		auth.NewTokenIssuer("hms", testKey, time.Hour))
	svc.hashCost = bcrypt.MinCost
	return svc, users
}
