package medicalrecord

import "time"

// MedicalRecord is one clinical visit note written by a doctor.
type MedicalRecord struct {
	ID        int64     `json:"id"`
	PatientID int64     `json:"patient_id"`
	DoctorID  int64     `json:"doctor_id"`
	VisitDate time.Time `json:"visit_date"`
	Symptoms  string    `json:"symptoms"`
	Diagnosis string    `json:"diagnosis"`
	Treatment string    `json:"treatment"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Filter struct {
	PatientID *int64
	DoctorID  *int64
}

// Changes holds the fields an update may touch. Nil leaves a field as is.
type Changes struct {
	VisitDate *time.Time
	Symptoms  *string
	Diagnosis *string
	Treatment *string
	Notes     *string
}

func (ch Changes) apply(r *MedicalRecord) {
	if ch.VisitDate != nil {
		r.VisitDate = *ch.VisitDate
	}
	if ch.Symptoms != nil {
		r.Symptoms = *ch.Symptoms
	}
	if ch.Diagnosis != nil {
		r.Diagnosis = *ch.Diagnosis
	}
	if ch.Treatment != nil {
		r.Treatment = *ch.Treatment
	}
	if ch.Notes != nil {
		r.Notes = *ch.Notes
	}
}
