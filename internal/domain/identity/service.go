package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hospital/hms/internal/platform/auth"
)

const minPasswordLen = 8

type Service struct {
	users    UserRepository
	patients PatientRepository
	doctors  DoctorRepository
	tokens   *auth.TokenIssuer
	hashCost int
}

func NewService(users UserRepository, patients PatientRepository, doctors DoctorRepository, tokens *auth.TokenIssuer) *Service {
	return &Service{
		users:    users,
		patients: patients,
		doctors:  doctors,
		tokens:   tokens,
		hashCost: bcrypt.DefaultCost,
	}
}

// -- Users --

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(PrincipalOf(u))
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// PrincipalOf converts a stored user into the identity carried by tokens.
func PrincipalOf(u *User) auth.Principal {
	return auth.Principal{
		UserID:    u.ID,
		Roles:     u.Roles,
		DoctorID:  u.DoctorID,
		PatientID: u.PatientID,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, invalid("a valid email is required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, invalid("password must be at least %d characters", minPasswordLen)
	}
	if len(in.Roles) == 0 {
		return nil, invalid("at least one role is required")
	}
	for _, r := range in.Roles {
		if !auth.IsValidRole(r) {
			return nil, invalid("unknown role %q", r)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(in.FullName),
		Roles:        in.Roles,
		DoctorID:     in.DoctorID,
		PatientID:    in.PatientID,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

// -- Patients --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	if p.FullName == "" {
		return invalid("full_name is required")
	}
	p.Gender = strings.ToLower(p.Gender)
	if !validGenders[p.Gender] {
		return invalid("gender must be male, female or other")
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(time.Now()) {
		return invalid("date_of_birth is in the future")
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, name, limit, offset)
}

// -- Doctors --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	d.FullName = strings.TrimSpace(d.FullName)
	if d.FullName == "" {
		return invalid("full_name is required")
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, specialty string, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, specialty, limit, offset)
}
