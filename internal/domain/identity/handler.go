package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hospital/hms/internal/platform/auth"
	"github.com/hospital/hms/pkg/envelope"
	"github.com/hospital/hms/pkg/httpx"
	"github.com/hospital/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
	api.GET("/auth/me", h.Me)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/users", h.CreateUser)
	admin.GET("/users", h.ListUsers)
	admin.POST("/doctors", h.CreateDoctor)

	front := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	front.POST("/patients", h.CreatePatient)

	staff := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor, auth.RoleNurse, auth.RolePharmacist))
	staff.GET("/patients", h.ListPatients)

	api.GET("/patients/:id", h.GetPatient)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
}

func httpError(err error, what string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidReference):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err, "User")
	}
	return envelope.OK(c, http.StatusOK, res, "Login successful")
}

func (h *Handler) Me(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	u, err := h.svc.GetUser(c.Request().Context(), p.UserID)
	if err != nil {
		return httpError(err, "User")
	}
	return envelope.OK(c, http.StatusOK, u, "")
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req NewUser
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.CreateUser(c.Request().Context(), req)
	if err != nil {
		return httpError(err, "User")
	}
	return envelope.OK(c, http.StatusCreated, u, "User created")
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUsers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return envelope.Page(c, items, pg, total)
}

type patientRequest struct {
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p := &Patient{FullName: req.FullName, Gender: req.Gender, Phone: req.Phone, Address: req.Address}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
		}
		p.DateOfBirth = &dob
	}
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return httpError(err, "Patient")
	}
	return envelope.OK(c, http.StatusCreated, p, "Patient created")
}

// GetPatient is open to staff and to the patient themself.
func (h *Handler) GetPatient(c echo.Context) error {
	principal, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	if own, confined := principal.PatientScope(); confined && (own == nil || *own != id) {
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "Patient")
	}
	return envelope.OK(c, http.StatusOK, p, "")
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), c.QueryParam("name"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return envelope.Page(c, items, pg, total)
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d.ID = 0
	if err := h.svc.CreateDoctor(c.Request().Context(), &d); err != nil {
		return httpError(err, "Doctor")
	}
	return envelope.OK(c, http.StatusCreated, d, "Doctor created")
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "Doctor")
	}
	return envelope.OK(c, http.StatusOK, d, "")
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), c.QueryParam("specialty"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return envelope.Page(c, items, pg, total)
}
