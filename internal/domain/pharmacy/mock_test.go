package pharmacy

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for the pharmacy tables. Transactions
// are serialized and roll back by restoring a snapshot.
type memStore struct {
	mu            sync.Mutex
	txMu          sync.Mutex
	nextID        int64
	medicines     map[int64]Medicine
	prescriptions map[int64]Prescription
	items         []PrescriptionItem
	records       []DispensingRecord

	// failRecordCreate makes the nth dispensing insert (1-based) fail.
	failRecordCreate int
	recordCreates    int
	// medicineRefs marks medicines that cannot be deleted.
	medicineRefs map[int64]bool
}

func newMemStore() *memStore {
	return &memStore{
		medicines:     make(map[int64]Medicine),
		prescriptions: make(map[int64]Prescription),
		medicineRefs:  make(map[int64]bool),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

type snapshot struct {
	medicines     map[int64]Medicine
	prescriptions map[int64]Prescription
	items         []PrescriptionItem
	records       []DispensingRecord
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		medicines:     make(map[int64]Medicine, len(s.medicines)),
		prescriptions: make(map[int64]Prescription, len(s.prescriptions)),
		items:         append([]PrescriptionItem(nil), s.items...),
		records:       append([]DispensingRecord(nil), s.records...),
	}
	for k, v := range s.medicines {
		snap.medicines[k] = v
	}
	for k, v := range s.prescriptions {
		snap.prescriptions[k] = v
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.medicines = snap.medicines
	s.prescriptions = snap.prescriptions
	s.items = snap.items
	s.records = snap.records
}

// InTx makes memStore a db.Transactor.
func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// -- helpers used by tests --

func (s *memStore) addMedicine(name string, stock int) *Medicine {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Medicine{ID: s.id(), Name: name, StockQuantity: stock, UnitPrice: decimal.NewFromInt(1000)}
	s.medicines[m.ID] = m
	return &m
}

type line struct {
	medicine int64
	qty      int
}

func (s *memStore) addPrescription(patientID int64, status string, lines ...line) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Prescription{ID: s.id(), PatientID: patientID, DoctorID: 1, Status: status, CreatedAt: time.Now()}
	s.prescriptions[p.ID] = p
	for _, l := range lines {
		s.items = append(s.items, PrescriptionItem{ID: s.id(), PrescriptionID: p.ID, MedicineID: l.medicine, Quantity: l.qty})
	}
	return p.ID
}

func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.medicines[id].StockQuantity
}

func (s *memStore) status(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prescriptions[id].Status
}

func (s *memStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// -- MedicineRepository --

type memMedicines struct{ s *memStore }

func (r memMedicines) Create(_ context.Context, m *Medicine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = r.s.id()
	m.CreatedAt, m.UpdatedAt = time.Now(), time.Now()
	r.s.medicines[m.ID] = *m
	return nil
}

func (r memMedicines) GetByID(_ context.Context, id int64) (*Medicine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.medicines[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (r memMedicines) Update(_ context.Context, m *Medicine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.medicines[m.ID]
	if !ok {
		return ErrNotFound
	}
	m.StockQuantity = cur.StockQuantity
	m.CreatedAt = cur.CreatedAt
	m.UpdatedAt = time.Now()
	r.s.medicines[m.ID] = *m
	return nil
}

func (r memMedicines) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.medicines[id]; !ok {
		return ErrNotFound
	}
	if r.s.medicineRefs[id] {
		return ErrMedicineInUse
	}
	delete(r.s.medicines, id)
	return nil
}

func (r memMedicines) List(_ context.Context, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*Medicine
	for _, m := range r.s.medicines {
		m := m
		if f.Name != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(f.Name)) {
			continue
		}
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		if f.LowStockAt > 0 && m.StockQuantity > f.LowStockAt {
			continue
		}
		all = append(all, &m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return page(all, limit, offset), len(all), nil
}

func (r memMedicines) ListExpiringBefore(_ context.Context, cutoff time.Time) ([]*Medicine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*Medicine
	for _, m := range r.s.medicines {
		m := m
		if m.ExpiryDate != nil && !m.ExpiryDate.After(cutoff) {
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(*out[j].ExpiryDate) })
	return out, nil
}

func (r memMedicines) AdjustStock(_ context.Context, id int64, delta int) (*Medicine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.medicines[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.StockQuantity+delta < 0 {
		return nil, ErrNegativeStock
	}
	m.StockQuantity += delta
	r.s.medicines[id] = m
	return &m, nil
}

func (r memMedicines) DecrementStock(_ context.Context, id int64, qty int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.medicines[id]
	if !ok || m.StockQuantity < qty {
		return false, nil
	}
	m.StockQuantity -= qty
	r.s.medicines[id] = m
	return true, nil
}

// -- PrescriptionRepository --

type memPrescriptions struct{ s *memStore }

func (r memPrescriptions) Create(_ context.Context, p *Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.id()
	p.CreatedAt = time.Now()
	stored := *p
	stored.Items = nil
	r.s.prescriptions[p.ID] = stored
	return nil
}

func (r memPrescriptions) AddItem(_ context.Context, it *PrescriptionItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.medicines[it.MedicineID]; !ok {
		return ErrInvalidReference
	}
	it.ID = r.s.id()
	r.s.items = append(r.s.items, *it)
	return nil
}

func (r memPrescriptions) GetByID(_ context.Context, id int64) (*Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.prescriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r memPrescriptions) GetWithItems(ctx context.Context, id int64) (*Prescription, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range r.s.items {
		if it.PrescriptionID != id {
			continue
		}
		it := it
		m := r.s.medicines[it.MedicineID]
		it.MedicineName = m.Name
		it.medicineStock = m.StockQuantity
		p.Items = append(p.Items, &it)
	}
	return p, nil
}

func (r memPrescriptions) List(_ context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*Prescription
	for _, p := range r.s.prescriptions {
		p := p
		if f.PatientID != nil && p.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && p.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		all = append(all, &p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, limit, offset), len(all), nil
}

func (r memPrescriptions) TransitionStatus(_ context.Context, id int64, to string, from ...string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.prescriptions[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = to
			r.s.prescriptions[id] = p
			return true, nil
		}
	}
	return false, nil
}

// -- DispensingRepository --

type memDispensings struct{ s *memStore }

var errInjected = errors.New("connection reset by peer")

func (r memDispensings) Create(_ context.Context, rec *DispensingRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.recordCreates++
	if r.s.failRecordCreate > 0 && r.s.recordCreates == r.s.failRecordCreate {
		return errInjected
	}
	rec.ID = r.s.id()
	r.s.records = append(r.s.records, *rec)
	return nil
}

func (r memDispensings) List(_ context.Context, f DispensingFilter, limit, offset int) ([]*DispensingRecord, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*DispensingRecord
	for _, d := range r.s.records {
		d := d
		if f.PatientID != nil && d.PatientID != *f.PatientID {
			continue
		}
		if f.MedicineID != nil && d.MedicineID != *f.MedicineID {
			continue
		}
		if f.PrescriptionID != nil && d.PrescriptionID != *f.PrescriptionID {
			continue
		}
		all = append(all, &d)
	}
	return page(all, limit, offset), len(all), nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func newTestService() (*Service, *memStore) {
	s := newMemStore()
	return NewService(s, memMedicines{s}, memPrescriptions{s}, memDispensings{s}), s
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
