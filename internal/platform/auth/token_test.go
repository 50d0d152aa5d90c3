package auth

import (
	"testing"
	"time"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	patientID := int64(9)
	ti := NewTokenIssuer("hms", testSigningKey, time.Hour)
	fixed := time.Now()
	ti.now = func() time.Time { return fixed }

	token, exp, err := ti.Issue(Principal{UserID: 5, Roles: []string{RolePatient}, PatientID: &patientID})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(fixed.Add(time.Hour)) {
		t.Errorf("unexpected expiry %v", exp)
	}

	claims, err := ParseToken(token, JWTConfig{Issuer: "hms", SigningKey: testSigningKey})
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	p, err := principalFromClaims(claims)
	if err != nil {
		t.Fatalf("principalFromClaims: %v", err)
	}
	if p.UserID != 5 || p.PatientID == nil || *p.PatientID != 9 {
		t.Errorf("unexpected principal %+v", p)
	}
	if len(p.Roles) != 1 || p.Roles[0] != RolePatient {
		t.Errorf("unexpected roles %v", p.Roles)
	}
}
