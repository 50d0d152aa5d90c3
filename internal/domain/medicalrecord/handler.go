package medicalrecord

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
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RolePatient))
	read.GET("/medical-records", h.List)
	read.GET("/medical-records/:id", h.Get)

	write := api.Group("", auth.RequireRole(auth.RoleDoctor))
	write.POST("/medical-records", h.Create)
	write.PUT("/medical-records/:id", h.Update)

	api.DELETE("/medical-records/:id", h.Delete, auth.RequireRole(auth.RoleAdmin))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Medical record not found")
	case errors.Is(err, ErrNotAuthor):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidReference):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return auth.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}

type recordRequest struct {
	PatientID int64   `json:"patient_id"`
	DoctorID  int64   `json:"doctor_id"`
	VisitDate *string `json:"visit_date"`
	Symptoms  *string `json:"symptoms"`
	Diagnosis *string `json:"diagnosis"`
	Treatment *string `json:"treatment"`
	Notes     *string `json:"notes"`
}

func (req recordRequest) changes(loc *time.Location) (Changes, error) {
	ch := Changes{
		Symptoms:  req.Symptoms,
		Diagnosis: req.Diagnosis,
		Treatment: req.Treatment,
		Notes:     req.Notes,
	}
	if req.VisitDate != nil && *req.VisitDate != "" {
		t, err := parseVisitDate(*req.VisitDate, loc)
		if err != nil {
			return ch, echo.NewHTTPError(http.StatusBadRequest, "visit_date must be RFC3339 or YYYY-MM-DD")
		}
		ch.VisitDate = &t
	}
	return ch, nil
}

// parseVisitDate accepts an RFC 3339 instant or a calendar day, which is
// taken as midnight in loc.
func parseVisitDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ch, err := req.changes(h.svc.Location())
	if err != nil {
		return err
	}

	r := &MedicalRecord{PatientID: req.PatientID}
	switch {
	case p.DoctorID != nil:
		r.DoctorID = *p.DoctorID
	case p.HasRole(auth.RoleAdmin):
		r.DoctorID = req.DoctorID
	default:
		return echo.NewHTTPError(http.StatusForbidden, "no doctor profile linked to this account")
	}
	ch.apply(r)

	if err := h.svc.Create(c.Request().Context(), r); err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusCreated, r, "Medical record created")
}

func (h *Handler) Get(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if own, confined := p.PatientScope(); confined && (own == nil || *own != r.PatientID) {
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}
	return envelope.OK(c, http.StatusOK, r, "")
}

func (h *Handler) List(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var f Filter
	if f.PatientID, err = httpx.QueryID(c, "patient_id"); err != nil {
		return err
	}
	if f.DoctorID, err = httpx.QueryID(c, "doctor_id"); err != nil {
		return err
	}
	if own, confined := p.PatientScope(); confined {
		if own == nil {
			return echo.NewHTTPError(http.StatusForbidden, "no patient profile linked to this account")
		}
		if f.PatientID != nil && *f.PatientID != *own {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		f.PatientID = own
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return envelope.Page(c, items, pg, total)
}

func (h *Handler) Update(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ch, err := req.changes(h.svc.Location())
	if err != nil {
		return err
	}
	r, err := h.svc.Update(c.Request().Context(), id, ch, p)
	if err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusOK, r, "Medical record updated")
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusOK, nil, "Medical record deleted")
}
