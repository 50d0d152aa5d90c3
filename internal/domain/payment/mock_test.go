package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type mockRepo struct {
	mu    sync.Mutex
	store map[int64]Payment
	next  int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[int64]Payment)}
}

// InTx lets mockRepo stand in for db.Transactor; writes are not rolled back.
func (m *mockRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *mockRepo) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	p.ID = m.next
	p.CreatedAt = time.Now()
	m.store[p.ID] = *p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *mockRepo) GetByOrderRef(_ context.Context, ref string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.OrderRef == ref {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Payment
	for _, p := range m.store {
		p := p
		if f.PatientID != nil && p.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	if end := offset + limit; end < total {
		return out[offset:end], total, nil
	}
	return out[offset:], total, nil
}

func (m *mockRepo) SetCheckout(_ context.Context, id int64, method string, payURL *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status != StatusPending {
		return false, nil
	}
	if p.PayURL != nil && p.Method != method {
		return false, nil
	}
	p.Method, p.PayURL = method, payURL
	m.store[id] = p
	return true, nil
}

func (m *mockRepo) Settle(_ context.Context, id int64, status string, txnID *string, paidAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status != StatusPending {
		return false, nil
	}
	p.Status, p.PaidAt = status, paidAt
	if txnID != nil {
		p.GatewayTxnID = txnID
	}
	m.store[id] = p
	return true, nil
}

func (m *mockRepo) get(id int64) Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[id]
}

// fakeMoMo records orders and accepts IPNs whose signature is "ok".
type fakeMoMo struct {
	orders []MoMoOrder
	err    error
}

func (f *fakeMoMo) CreatePayment(_ context.Context, o MoMoOrder) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.orders = append(f.orders, o)
	return "https://momo.test/pay/" + o.OrderID, nil
}

func (f *fakeMoMo) VerifyIPN(n *MoMoIPN) bool { return n.Signature == "ok" }

func newTestService() (*Service, *mockRepo, *fakeMoMo, *VNPay) {
	repo := newMockRepo()
	momo := &fakeMoMo{}
	vnp := NewVNPay(testVNPayConfig)
	return NewService(repo, repo, momo, vnp), repo, momo, vnp
}

func mustCreate(svc *Service, patientID int64, amount int64) *Payment {
	p := &Payment{PatientID: patientID, Amount: decimal.NewFromInt(amount), Description: "Ward fee"}
	if err := svc.Create(context.Background(), p); err != nil {
		panic(err)
	}
	return p
}
