package payment

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hospital/hms/internal/platform/auth"
	"github.com/hospital/hms/pkg/envelope"
	"github.com/hospital/hms/pkg/httpx"
	"github.com/hospital/hms/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Gateway callbacks authenticate by signature, not by token.
	api.POST("/payments/momo/ipn", h.MoMoIPN)
	api.GET("/payments/vnpay/ipn", h.VNPayIPN)
	api.GET("/payments/vnpay/return", h.VNPayReturn)

	read := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RolePatient))
	read.GET("/payments", h.List)
	read.GET("/payments/:id", h.Get)
	read.POST("/payments/:id/momo", h.StartMoMo)
	read.POST("/payments/:id/vnpay", h.StartVNPay)

	desk := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	desk.POST("/payments", h.Create)
	desk.POST("/payments/:id/cash", h.PayCash)
}

func httpError(err error) error {
	var gw *GatewayError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Payment not found")
	case errors.Is(err, ErrGatewayDisabled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &gw):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrCheckoutStarted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNotPending), errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrAmountMismatch), errors.Is(err, ErrInvalidReference), errors.Is(err, ErrWrongGateway):
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

// scoped loads a payment and enforces that patients only touch their own.
func (h *Handler) scoped(c echo.Context) (*Payment, error) {
	p, err := principal(c)
	if err != nil {
		return nil, err
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return nil, err
	}
	pay, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	if own, confined := p.PatientScope(); confined && (own == nil || *own != pay.PatientID) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "access denied")
	}
	return pay, nil
}

type createRequest struct {
	PatientID   int64           `json:"patient_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Method      string          `json:"method"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p := &Payment{
		PatientID:   req.PatientID,
		Amount:      req.Amount,
		Description: req.Description,
		Method:      req.Method,
	}
	if err := h.svc.Create(c.Request().Context(), p); err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusCreated, p, "Payment created")
}

func (h *Handler) Get(c echo.Context) error {
	pay, err := h.scoped(c)
	if err != nil {
		return err
	}
	return envelope.OK(c, http.StatusOK, pay, "")
}

func (h *Handler) List(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	f := Filter{Status: c.QueryParam("status")}
	if f.PatientID, err = httpx.QueryID(c, "patient_id"); err != nil {
		return err
	}
	if own, confined := p.PatientScope(); confined {
		if own == nil {
			return echo.NewHTTPError(http.StatusForbidden, "no patient profile linked to this account")
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

func (h *Handler) PayCash(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	pay, err := h.svc.PayCash(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusOK, pay, "Payment received")
}

func (h *Handler) StartMoMo(c echo.Context) error {
	pay, err := h.scoped(c)
	if err != nil {
		return err
	}
	pay, err = h.svc.StartMoMo(c.Request().Context(), pay.ID)
	if err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusOK, pay, "MoMo checkout created")
}

func (h *Handler) StartVNPay(c echo.Context) error {
	pay, err := h.scoped(c)
	if err != nil {
		return err
	}
	pay, err = h.svc.StartVNPay(c.Request().Context(), pay.ID, c.RealIP())
	if err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusOK, pay, "VNPay checkout created")
}

// MoMoIPN answers 204 once the notification is accepted, including repeats
// for orders that are already settled.
func (h *Handler) MoMoIPN(c echo.Context) error {
	var n MoMoIPN
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.HandleMoMoIPN(c.Request().Context(), &n); err != nil {
		h.logger.Warn().Err(err).Str("order_id", n.OrderID).Int("result_code", n.ResultCode).Msg("momo ipn rejected")
		return httpError(err)
	}
	h.logger.Info().Str("order_id", n.OrderID).Int("result_code", n.ResultCode).Msg("momo ipn applied")
	return c.NoContent(http.StatusNoContent)
}

// VNPayIPN always answers 200; VNPay reads the outcome from RspCode.
func (h *Handler) VNPayIPN(c echo.Context) error {
	params := c.QueryParams()
	res, err := h.svc.HandleVNPayIPN(c.Request().Context(), params)
	ev := h.logger.Info()
	if err != nil {
		ev = h.logger.Error().Err(err)
	}
	ev.Str("txn_ref", params.Get("vnp_TxnRef")).Str("rsp_code", res.RspCode).Msg("vnpay ipn")
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) VNPayReturn(c echo.Context) error {
	pay, err := h.svc.HandleVNPayReturn(c.Request().Context(), c.QueryParams())
	if err != nil {
		return httpError(err)
	}
	msg := "Payment failed"
	if pay.Status == StatusPaid {
		msg = "Payment successful"
	}
	return envelope.OK(c, http.StatusOK, pay, msg)
}
