package pharmacy

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

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
	// Stock: everyone clinical reads, pharmacists write
	stockRead := api.Group("", auth.RequireRole(auth.RolePharmacist, auth.RoleDoctor, auth.RoleNurse))
	stockRead.GET("/medicines", h.ListMedicines)
	stockRead.GET("/medicines/expiring", h.ListExpiring)
	stockRead.GET("/medicines/:id", h.GetMedicine)

	stockWrite := api.Group("", auth.RequireRole(auth.RolePharmacist))
	stockWrite.POST("/medicines", h.CreateMedicine)
	stockWrite.PUT("/medicines/:id", h.UpdateMedicine)
	stockWrite.DELETE("/medicines/:id", h.DeleteMedicine)
	stockWrite.POST("/medicines/:id/stock", h.AdjustStock)

	// Prescriptions: doctors write, patients read their own
	rxRead := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RolePharmacist, auth.RolePatient))
	rxRead.GET("/prescriptions", h.ListPrescriptions)
	rxRead.GET("/prescriptions/:id", h.GetPrescription)
	rxRead.GET("/pharmacy/dispensings", h.ListDispensings)

	rxWrite := api.Group("", auth.RequireRole(auth.RoleDoctor))
	rxWrite.POST("/prescriptions", h.CreatePrescription)
	rxWrite.POST("/prescriptions/:id/cancel", h.CancelPrescription)

	api.POST("/pharmacy", h.Dispense, auth.RequireRole(auth.RolePharmacist))
}

// httpError maps service errors onto HTTP statuses. what names the resource
// in the not-found message.
func httpError(err error, what string) error {
	var already *AlreadyDispensedError
	var short *InsufficientStockError
	var inactive *PrescriptionInactiveError
	var werr *WriteError

	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	case errors.As(err, &already):
		return echo.NewHTTPError(http.StatusBadRequest, "Prescription has already been dispensed")
	case errors.As(err, &short):
		return echo.NewHTTPError(http.StatusBadRequest,
			"Insufficient stock for "+short.MedicineName+
				". Available: "+strconv.Itoa(short.Available)+
				", Requested: "+strconv.Itoa(short.Requested))
	case errors.As(err, &inactive), errors.As(err, &werr):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrMedicineInUse):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoItems),
		errors.Is(err, ErrNegativeStock), errors.Is(err, ErrInvalidReference),
		errors.Is(err, ErrNotCancellable):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return p, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}

// -- Dispensing --

type dispenseRequest struct {
	PrescriptionID int64 `json:"prescription_id"`
}

func (h *Handler) Dispense(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dispenseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PrescriptionID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "prescription_id is required")
	}

	records, err := h.svc.Dispense(c.Request().Context(), req.PrescriptionID, p.UserID)
	if err != nil {
		return httpError(err, "Prescription")
	}
	return envelope.OK(c, http.StatusCreated, records, "Prescription dispensed successfully")
}

func (h *Handler) ListDispensings(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var f DispensingFilter
	if f.PatientID, err = httpx.QueryID(c, "patient_id"); err != nil {
		return err
	}
	if f.MedicineID, err = httpx.QueryID(c, "medicine_id"); err != nil {
		return err
	}
	if f.PrescriptionID, err = httpx.QueryID(c, "prescription_id"); err != nil {
		return err
	}
	if own, confined := p.PatientScope(); confined {
		if own == nil {
			return echo.NewHTTPError(http.StatusForbidden, "no patient profile linked to this account")
		}
		f.PatientID = own
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDispensings(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return envelope.Page(c, items, pg, total)
}

// -- Medicine --

type medicineRequest struct {
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Brand         string          `json:"brand"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	StockQuantity int             `json:"stock_quantity"`
	ExpiryDate    string          `json:"expiry_date"`
}

func (r medicineRequest) toMedicine() (*Medicine, error) {
	m := &Medicine{
		Name:          r.Name,
		Type:          r.Type,
		Brand:         r.Brand,
		UnitPrice:     r.UnitPrice,
		StockQuantity: r.StockQuantity,
	}
	if r.ExpiryDate != "" {
		d, err := time.Parse("2006-01-02", r.ExpiryDate)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "expiry_date must be YYYY-MM-DD")
		}
		m.ExpiryDate = &d
	}
	return m, nil
}

func (h *Handler) CreateMedicine(c echo.Context) error {
	var req medicineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := req.toMedicine()
	if err != nil {
		return err
	}
	if err := h.svc.CreateMedicine(c.Request().Context(), m); err != nil {
		return httpError(err, "Medicine")
	}
	return envelope.OK(c, http.StatusCreated, m, "Medicine created")
}

func (h *Handler) GetMedicine(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedicine(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "Medicine")
	}
	return envelope.OK(c, http.StatusOK, m, "")
}

func (h *Handler) ListMedicines(c echo.Context) error {
	f := MedicineFilter{Name: c.QueryParam("name"), Type: c.QueryParam("type")}
	switch v := c.QueryParam("low_stock"); v {
	case "", "false", "0":
	case "true":
		f.LowStockAt = DefaultLowStockThreshold
	default:
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "low_stock must be true or a threshold")
		}
		f.LowStockAt = n
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMedicines(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return envelope.Page(c, items, pg, total)
}

func (h *Handler) ListExpiring(c echo.Context) error {
	days, err := httpx.QueryInt(c, "days", 30)
	if err != nil {
		return err
	}
	items, err := h.svc.ListExpiring(c.Request().Context(), days)
	if err != nil {
		return httpError(err, "Medicine")
	}
	return envelope.OK(c, http.StatusOK, items, "")
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req medicineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := req.toMedicine()
	if err != nil {
		return err
	}
	m.ID = id
	if err := h.svc.UpdateMedicine(c.Request().Context(), m); err != nil {
		return httpError(err, "Medicine")
	}
	return envelope.OK(c, http.StatusOK, m, "Medicine updated")
}

func (h *Handler) DeleteMedicine(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedicine(c.Request().Context(), id); err != nil {
		return httpError(err, "Medicine")
	}
	return envelope.OK(c, http.StatusOK, nil, "Medicine deleted")
}

type stockRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) AdjustStock(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req stockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.AdjustStock(c.Request().Context(), id, req.Delta)
	if err != nil {
		return httpError(err, "Medicine")
	}
	return envelope.OK(c, http.StatusOK, m, "Stock updated")
}

// -- Prescription --

type prescriptionRequest struct {
	PatientID    int64                 `json:"patient_id"`
	DoctorID     int64                 `json:"doctor_id"`
	Diagnosis    string                `json:"diagnosis"`
	Instructions string                `json:"instructions"`
	Items        []prescriptionItemReq `json:"items"`
}

type prescriptionItemReq struct {
	MedicineID int64  `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
	Dosage     string `json:"dosage"`
	Frequency  string `json:"frequency"`
	Duration   string `json:"duration"`
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req prescriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rx := &Prescription{
		PatientID:    req.PatientID,
		Diagnosis:    req.Diagnosis,
		Instructions: req.Instructions,
	}
	// Doctors prescribe as themselves; only admins name the doctor.
	switch {
	case p.DoctorID != nil:
		rx.DoctorID = *p.DoctorID
	case p.HasRole(auth.RoleAdmin):
		rx.DoctorID = req.DoctorID
	default:
		return echo.NewHTTPError(http.StatusForbidden, "no doctor profile linked to this account")
	}
	for _, it := range req.Items {
		rx.Items = append(rx.Items, &PrescriptionItem{
			MedicineID: it.MedicineID,
			Quantity:   it.Quantity,
			Dosage:     it.Dosage,
			Frequency:  it.Frequency,
			Duration:   it.Duration,
		})
	}

	if err := h.svc.CreatePrescription(c.Request().Context(), rx); err != nil {
		return httpError(err, "Prescription")
	}
	return envelope.OK(c, http.StatusCreated, rx, "Prescription created")
}

func (h *Handler) GetPrescription(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	rx, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "Prescription")
	}
	if own, confined := p.PatientScope(); confined && (own == nil || *own != rx.PatientID) {
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}
	return envelope.OK(c, http.StatusOK, rx, "")
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	f := PrescriptionFilter{Status: c.QueryParam("status")}
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
		f.PatientID = own
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPrescriptions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err, "Prescription")
	}
	return envelope.Page(c, items, pg, total)
}

func (h *Handler) CancelPrescription(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	rx, err := h.svc.CancelPrescription(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "Prescription")
	}
	return envelope.OK(c, http.StatusOK, rx, "Prescription cancelled")
}
