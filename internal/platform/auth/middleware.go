package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const principalKey contextKey = "principal"

// Claims is the JWT payload issued at login. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Roles     []string `json:"roles"`
	DoctorID  *int64   `json:"doctor_id,omitempty"`
	PatientID *int64   `json:"patient_id,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	// Skipper bypasses authentication for public paths. Defaults to AuthSkipper.
	Skipper func(c echo.Context) bool
}

// Principal is the authenticated caller.
type Principal struct {
	UserID    int64    `json:"user_id"`
	Roles     []string `json:"roles"`
	DoctorID  *int64   `json:"doctor_id,omitempty"`
	PatientID *int64   `json:"patient_id,omitempty"`
}

// HasRole reports whether the principal holds one of roles. Admin holds all.
func (p Principal) HasRole(roles ...string) bool {
	for _, has := range p.Roles {
		if has == RoleAdmin {
			return true
		}
		for _, want := range roles {
			if has == want {
				return true
			}
		}
	}
	return false
}

// IsPatientOnly reports whether the caller acts purely as a patient and must
// be confined to their own records.
func (p Principal) IsPatientOnly() bool {
	return p.HasRole(RolePatient) && !p.HasRole(RoleDoctor, RoleNurse, RolePharmacist, RoleReceptionist)
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) int64 {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}

func RolesFromContext(ctx context.Context) []string {
	p, _ := PrincipalFromContext(ctx)
	return p.Roles
}

// ParseToken validates tokenStr and returns its claims.
func ParseToken(tokenStr string, cfg JWTConfig) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.ExpiresAt == nil {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func principalFromClaims(claims *Claims) (Principal, error) {
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Principal{}, err
	}
	return Principal{
		UserID:    uid,
		Roles:     claims.Roles,
		DoctorID:  claims.DoctorID,
		PatientID: claims.PatientID,
	}, nil
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func authenticate(c echo.Context, cfg JWTConfig, tokenStr string) error {
	claims, err := ParseToken(tokenStr, cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	p, err := principalFromClaims(claims)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
	return nil
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	skipper := cfg.Skipper
	if skipper == nil {
		skipper = AuthSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			if err := authenticate(c, cfg, tokenStr); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// DevPrincipal is injected by DevAuthMiddleware for requests without a token.
var DevPrincipal = Principal{UserID: 1, Roles: []string{RoleAdmin}}

// DevAuthMiddleware lets unauthenticated requests through as DevPrincipal.
// Requests that do carry a bearer token are still validated.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				ctx := WithPrincipal(c.Request().Context(), DevPrincipal)
				c.SetRequest(c.Request().WithContext(ctx))
				return next(c)
			}
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			if err := authenticate(c, cfg, tokenStr); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// PatientScope reports whether the principal must be confined to a single
// patient's data and, if so, which one. A patient-only principal with no
// linked patient is confined to nothing, which callers treat as forbidden.
func (p Principal) PatientScope() (patientID *int64, confined bool) {
	if !p.IsPatientOnly() {
		return nil, false
	}
	return p.PatientID, true
}
