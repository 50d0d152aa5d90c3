package ward

import (
	"errors"
	"net/http"

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
	read := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RoleDoctor, auth.RoleReceptionist))
	read.GET("/rooms", h.ListRooms)
	read.GET("/rooms/:id", h.GetRoom)
	read.GET("/room-assignments", h.ListAssignments)
	read.GET("/room-assignments/:id", h.GetAssignment)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/rooms", h.CreateRoom)
	admin.PUT("/rooms/:id", h.UpdateRoom)
	admin.DELETE("/rooms/:id", h.DeleteRoom)

	admit := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RoleReceptionist))
	admit.POST("/room-assignments", h.Assign)
	admit.POST("/room-assignments/:id/discharge", h.Discharge)
}

func httpError(err error) error {
	var unavailable *RoomUnavailableError
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Room not found")
	case errors.Is(err, ErrAssignmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Room assignment not found")
	case errors.As(err, &unavailable):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyAssigned), errors.Is(err, ErrRoomNumberTaken), errors.Is(err, ErrRoomInUse):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrRoomNotEmpty),
		errors.Is(err, ErrAlreadyDischarged), errors.Is(err, ErrInvalidReference):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

// -- Rooms --

type roomRequest struct {
	RoomNumber string          `json:"room_number"`
	RoomType   string          `json:"room_type"`
	Capacity   int             `json:"capacity"`
	Status     string          `json:"status"`
	DailyRate  decimal.Decimal `json:"daily_rate"`
}

func (req roomRequest) room() *Room {
	return &Room{
		RoomNumber: req.RoomNumber,
		RoomType:   req.RoomType,
		Capacity:   req.Capacity,
		Status:     req.Status,
		DailyRate:  req.DailyRate,
	}
}

func (h *Handler) CreateRoom(c echo.Context) error {
	var req roomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r := req.room()
	if err := h.svc.CreateRoom(c.Request().Context(), r); err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusCreated, r, "Room created")
}

func (h *Handler) GetRoom(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.svc.GetRoom(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusOK, r, "")
}

func (h *Handler) ListRooms(c echo.Context) error {
	f := RoomFilter{
		RoomType: c.QueryParam("room_type"),
		Status:   c.QueryParam("status"),
		HasBeds:  c.QueryParam("available") == "true",
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRooms(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return envelope.Page(c, items, pg, total)
}

func (h *Handler) UpdateRoom(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req roomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in := req.room()
	in.ID = id
	r, err := h.svc.UpdateRoom(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusOK, r, "Room updated")
}

func (h *Handler) DeleteRoom(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteRoom(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusOK, nil, "Room deleted")
}

// -- Assignments --

type assignRequest struct {
	RoomID    int64  `json:"room_id"`
	PatientID int64  `json:"patient_id"`
	Notes     string `json:"notes"`
}

func (h *Handler) Assign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Assign(c.Request().Context(), req.RoomID, req.PatientID, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusCreated, a, "Patient assigned to room")
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.Discharge(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusOK, a, "Patient discharged")
}

func (h *Handler) GetAssignment(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAssignment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return envelope.OK(c, http.StatusOK, a, "")
}

func (h *Handler) ListAssignments(c echo.Context) error {
	f := AssignmentFilter{Status: c.QueryParam("status")}
	var err error
	if f.RoomID, err = httpx.QueryID(c, "room_id"); err != nil {
		return err
	}
	if f.PatientID, err = httpx.QueryID(c, "patient_id"); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAssignments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return envelope.Page(c, items, pg, total)
}
