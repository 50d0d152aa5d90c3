package identity

import "time"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Roles        []string  `json:"roles"`
	DoctorID     *int64    `json:"doctor_id,omitempty"`
	PatientID    *int64    `json:"patient_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Patient struct {
	ID          int64      `json:"id"`
	FullName    string     `json:"full_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Address     string     `json:"address,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Doctor struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Specialty string    `json:"specialty,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var validGenders = map[string]bool{
	"":       true,
	"male":   true,
	"female": true,
	"other":  true,
}

// NewUser is the input for creating an account.
type NewUser struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FullName  string   `json:"full_name"`
	Roles     []string `json:"roles"`
	DoctorID  *int64   `json:"doctor_id,omitempty"`
	PatientID *int64   `json:"patient_id,omitempty"`
}
