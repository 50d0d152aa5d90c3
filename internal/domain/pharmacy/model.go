package pharmacy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Prescription statuses.
const (
	StatusActive          = "Active"
	StatusFilled          = "Filled"
	StatusCancelled       = "Cancelled"
	StatusExpired         = "Expired"
	StatusPartiallyFilled = "Partially_Filled"
)

var validPrescriptionStatuses = map[string]bool{
	StatusActive:          true,
	StatusFilled:          true,
	StatusCancelled:       true,
	StatusExpired:         true,
	StatusPartiallyFilled: true,
}

// DefaultLowStockThreshold is used when a caller asks for low stock without
// naming a threshold.
const DefaultLowStockThreshold = 10

type Medicine struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Brand         string          `json:"brand"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	StockQuantity int             `json:"stock_quantity"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Prescription struct {
	ID           int64               `json:"id"`
	PatientID    int64               `json:"patient_id"`
	DoctorID     int64               `json:"doctor_id"`
	Diagnosis    string              `json:"diagnosis"`
	Instructions string              `json:"instructions"`
	Status       string              `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Items        []*PrescriptionItem `json:"items,omitempty"`
}

// Dispensable reports whether the prescription may still be handed out.
func (p *Prescription) Dispensable() bool {
	return p.Status == StatusActive || p.Status == StatusPartiallyFilled
}

// PrescriptionItem is one medicine line on a prescription. Items are read in
// insertion order, which is the order dispensing processes them.
type PrescriptionItem struct {
	ID             int64  `json:"id"`
	PrescriptionID int64  `json:"prescription_id"`
	MedicineID     int64  `json:"medicine_id"`
	MedicineName   string `json:"medicine_name,omitempty"`
	Quantity       int    `json:"quantity"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	Duration       string `json:"duration"`

	// stock on hand when the item was loaded
	medicineStock int
}

// DispensingRecord logs one line item handed to a patient. Records are never
// updated or deleted.
type DispensingRecord struct {
	ID                int64     `json:"id"`
	PatientID         int64     `json:"patient_id"`
	MedicineID        int64     `json:"medicine_id"`
	PrescriptionID    int64     `json:"prescription_id"`
	Quantity          int       `json:"quantity"`
	DispensedByUserID int64     `json:"dispensed_by_user_id"`
	DispensedAt       time.Time `json:"dispensed_at"`
}

type MedicineFilter struct {
	Name string
	Type string
	// LowStockAt selects medicines with stock at or below the value when > 0.
	LowStockAt int
}

type PrescriptionFilter struct {
	PatientID *int64
	DoctorID  *int64
	Status    string
}

type DispensingFilter struct {
	PatientID      *int64
	MedicineID     *int64
	PrescriptionID *int64
}
