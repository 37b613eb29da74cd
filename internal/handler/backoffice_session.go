package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/model"
	"github.com/entradaslive/ticketing-core/internal/repository"
	"github.com/entradaslive/ticketing-core/internal/salewindow"
)

// BackofficeHandler serves the configuration surface: creating and
// editing sessions, loading the seat inventory and registering
// discount codes.  Sale-window validation happens in the repository,
// so an invalid configuration never reaches the database.
type BackofficeHandler struct {
	Sessions  *repository.SessionRepo
	Seats     *repository.SeatRepo
	Discounts *repository.DiscountRepo
	Clk       clock.Clock
}

// NewBackofficeHandler constructs a BackofficeHandler.
func NewBackofficeHandler(sessions *repository.SessionRepo, seats *repository.SeatRepo, discounts *repository.DiscountRepo, clk clock.Clock) *BackofficeHandler {
	if sessions == nil || seats == nil || discounts == nil || clk == nil {
		panic("nil dependency passed to NewBackofficeHandler")
	}
	return &BackofficeHandler{Sessions: sessions, Seats: seats, Discounts: discounts, Clk: clk}
}

// sessionRequest is the request body for creating or updating a
// session.  Channel windows bind straight into the canales shape
// ({activo, inicio, fin} per channel); release_minutes carries the
// signed offset exactly as it is stored.
type sessionRequest struct {
	EventID         uint64                         `json:"event_id"`
	RoomID          uint64                         `json:"room_id"`
	CelebrationTime time.Time                      `json:"celebration_time"`
	Timezone        string                         `json:"timezone"`
	Channels        map[string]model.ChannelWindow `json:"canales"`
	SameDates       bool                           `json:"misma_fecha_canales"`
	ReleaseMinutes  int                            `json:"release_minutes"`
	Active          bool                           `json:"active"`
}

func (req *sessionRequest) toModel() model.Session {
	return model.Session{
		EventID:         req.EventID,
		RoomID:          req.RoomID,
		CelebrationTime: req.CelebrationTime.UTC(),
		Timezone:        req.Timezone,
		Channels:        req.Channels,
		SameDates:       req.SameDates,
		Release:         model.ReleasePolicyFromMinutes(req.ReleaseMinutes),
		Active:          req.Active,
	}
}

// CreateSession handles POST /v1/backoffice/sessions.  A session that
// violates the sale-window rules is rejected with 422 and the
// validation message.
func (h *BackofficeHandler) CreateSession(c echo.Context) error {
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.EventID == 0 || req.RoomID == 0 || req.CelebrationTime.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id, room_id and celebration_time are required"})
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	s := req.toModel()
	err := h.Sessions.Create(c.Request().Context(), &s)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, echo.Map{"id": s.ID})
	case errors.Is(err, salewindow.ErrValidation):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create session"})
	}
}

// UpdateSession handles PUT /v1/backoffice/sessions/:id.  The whole
// configurable block is replaced; the same validation as on create
// applies.
func (h *BackofficeHandler) UpdateSession(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	s := req.toModel()
	s.ID = id
	err = h.Sessions.Update(c.Request().Context(), &s)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"id": s.ID})
	case errors.Is(err, salewindow.ErrValidation):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update session"})
	}
}

// GetSession handles GET /v1/backoffice/sessions/:id and returns the
// stored configuration, including the signed release offset and the
// current open state per channel so operators see what shoppers see.
func (h *BackofficeHandler) GetSession(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	s, err := h.Sessions.GetSession(c.Request().Context(), id)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	now := h.Clk.Now()
	channels := make(map[string]channelAvailability, len(s.Channels))
	for name, cw := range s.Channels {
		channels[name] = channelAvailability{
			Active:       cw.Active,
			Open:         salewindow.IsChannelOpen(s, name, now),
			AcceptsHolds: salewindow.AcceptsHolds(s, name, now),
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":                  s.ID,
		"event_id":            s.EventID,
		"room_id":             s.RoomID,
		"celebration_time":    s.CelebrationTime,
		"timezone":            s.Timezone,
		"canales":             s.Channels,
		"misma_fecha_canales": s.SameDates,
		"release_minutes":     s.Release.StoredMinutes(),
		"active":              s.Active,
		"availability":        channels,
	})
}

// seatRequest is one seat row in the bulk create body.
type seatRequest struct {
	ZoneID     uint64 `json:"zone_id"`
	Label      string `json:"label"`
	PriceCents uint32 `json:"price_cents"`
}

// CreateSeats handles POST /v1/backoffice/sessions/:id/seats.  Seats
// are inserted in bulk as AVAILABLE; the session must exist.
func (h *BackofficeHandler) CreateSeats(c echo.Context) error {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	var body struct {
		Seats []seatRequest `json:"seats"`
	}
	if err := c.Bind(&body); err != nil || len(body.Seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats are required"})
	}
	ctx := c.Request().Context()
	if _, err := h.Sessions.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	seats := make([]model.Seat, 0, len(body.Seats))
	for _, sr := range body.Seats {
		if sr.Label == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat label is required"})
		}
		seats = append(seats, model.Seat{
			SessionID:  sessionID,
			ZoneID:     sr.ZoneID,
			Label:      sr.Label,
			PriceCents: sr.PriceCents,
			Status:     model.SeatAvailable,
		})
	}
	if err := h.Seats.CreateBulk(ctx, seats); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create seats"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"created": len(seats)})
}

// CreateDiscount handles POST /v1/backoffice/discounts and registers
// a new discount code.
func (h *BackofficeHandler) CreateDiscount(c echo.Context) error {
	var body struct {
		Code      string    `json:"code"`
		ValidFrom time.Time `json:"valid_from"`
		ValidTo   time.Time `json:"valid_to"`
		Rule      string    `json:"rule"`
		Value     uint32    `json:"value"`
		MaxUses   uint32    `json:"max_uses"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Code == "" || body.ValidFrom.IsZero() || body.ValidTo.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code, valid_from and valid_to are required"})
	}
	rule := model.DiscountRule(body.Rule)
	if rule != model.DiscountPercentage && rule != model.DiscountFixed {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rule must be porcentaje or monto"})
	}
	if rule == model.DiscountPercentage && body.Value > 100 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "percentage value must not exceed 100"})
	}
	if !body.ValidTo.After(body.ValidFrom) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "valid_to must be after valid_from"})
	}
	d := model.DiscountCode{
		Code:      body.Code,
		ValidFrom: body.ValidFrom.UTC(),
		ValidTo:   body.ValidTo.UTC(),
		Rule:      rule,
		Value:     body.Value,
		MaxUses:   body.MaxUses,
	}
	if err := h.Discounts.Create(c.Request().Context(), &d); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create discount"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": d.ID})
}
