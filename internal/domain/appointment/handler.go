package appointment

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments/available/:doctorId/:dateTime", h.CheckAvailability)

	g := api.Group("/appointments", auth.RequireAuth())
	g.GET("/admin", h.AdminList, auth.RequireRole(auth.RoleAdmin))
	g.POST("", h.Create)
	g.GET("/user/:userId", h.ListByUser)
	g.GET("/:id", h.Get)
	g.PUT("/:id/status", h.UpdateStatus)
	g.PUT("/:id", h.Update, auth.RequireRole(auth.RoleAdmin))
	g.DELETE("/:id", h.Delete)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrSlotTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCursor):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// writeError maps service errors on write paths, where anything that is not
// a known sentinel is a validation failure.
func writeError(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrSlotTaken) {
		return httpError(err)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// owned loads the appointment and checks the caller may act on it.
func (h *Handler) owned(c echo.Context) (*Appointment, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	ctx := c.Request().Context()
	if !auth.IsAdmin(ctx) && a.UserID != auth.UserIDFromContext(ctx) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not your appointment")
	}
	return a, nil
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctorId")
	}
	raw, err := url.PathUnescape(c.Param("dateTime"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dateTime")
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "dateTime must be an RFC 3339 instant")
	}
	ok, err := h.svc.IsAvailable(c.Request().Context(), doctorID, at)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{IsAvailable: ok})
}

func (h *Handler) Create(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	caller := auth.UserIDFromContext(ctx)
	switch {
	case a.UserID == "":
		a.UserID = caller
	case a.UserID != caller && !auth.IsAdmin(ctx):
		return echo.NewHTTPError(http.StatusForbidden, "cannot book for another user")
	}
	if !auth.IsAdmin(ctx) && a.Status == StatusPending {
		a.Status = StatusConfirmed
	}
	if err := h.svc.Create(ctx, &a); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	a, err := h.owned(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListByUser(c echo.Context) error {
	userID := c.Param("userId")
	ctx := c.Request().Context()
	if !auth.IsAdmin(ctx) && userID != auth.UserIDFromContext(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "not your appointments")
	}
	items, err := h.svc.ListByUser(ctx, userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	a, err := h.owned(c)
	if err != nil {
		return err
	}
	var body StatusBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !auth.IsAdmin(c.Request().Context()) && body.Status != StatusCancelled {
		return echo.NewHTTPError(http.StatusForbidden, "users may only cancel")
	}
	updated, err := h.svc.UpdateStatus(c.Request().Context(), a.ID, body.Status)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	if err := h.svc.Update(c.Request().Context(), &a); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Delete(c echo.Context) error {
	a, err := h.owned(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), a.ID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AdminList(c echo.Context) error {
	status := c.QueryParam("status")
	if status != "" && !ValidStatus(status) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	page, err := h.svc.AdminList(c.Request().Context(), status, pagination.FromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, AdminPage{
		Appointments: page.Items,
		LastDoc:      page.LastDoc,
		HasMore:      page.HasMore,
	})
}
