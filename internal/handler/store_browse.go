package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/holdstore"
	"github.com/entradaslive/ticketing-core/internal/middleware"
	"github.com/entradaslive/ticketing-core/internal/model"
	"github.com/entradaslive/ticketing-core/internal/repository"
	"github.com/entradaslive/ticketing-core/internal/salewindow"
)

// BrowseHandler serves the read side of the store: which sessions are
// on sale per channel, and the live seat map.  The seat map composes
// the terminal status column with the hold store; a seat is rendered
// from exactly one of the two sources, never both.
type BrowseHandler struct {
	Sessions *repository.SessionRepo
	Seats    *repository.SeatRepo
	Holds    holdstore.Store
	Clk      clock.Clock
}

// NewBrowseHandler constructs a BrowseHandler.  All dependencies must
// be non-nil.
func NewBrowseHandler(sessions *repository.SessionRepo, seats *repository.SeatRepo, holds holdstore.Store, clk clock.Clock) *BrowseHandler {
	if sessions == nil || seats == nil || holds == nil || clk == nil {
		panic("nil dependency passed to NewBrowseHandler")
	}
	return &BrowseHandler{Sessions: sessions, Seats: seats, Holds: holds, Clk: clk}
}

// channelAvailability is the per-channel sale state rendered next to
// a session.
type channelAvailability struct {
	Active       bool `json:"active"`
	Open         bool `json:"open"`
	AcceptsHolds bool `json:"accepts_holds"`
}

// ListSessions handles GET /v1/sessions.  It returns upcoming active
// sessions with, for every configured channel, whether it is
// currently open and whether it still accepts new holds.
func (h *BrowseHandler) ListSessions(c echo.Context) error {
	now := h.Clk.Now()
	sessions, err := h.Sessions.ListUpcoming(c.Request().Context(), now)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load sessions"})
	}
	items := make([]echo.Map, 0, len(sessions))
	for _, s := range sessions {
		channels := make(map[string]channelAvailability, len(s.Channels))
		for name, cw := range s.Channels {
			channels[name] = channelAvailability{
				Active:       cw.Active,
				Open:         salewindow.IsChannelOpen(s, name, now),
				AcceptsHolds: salewindow.AcceptsHolds(s, name, now),
			}
		}
		items = append(items, echo.Map{
			"id":               s.ID,
			"event_id":         s.EventID,
			"room_id":          s.RoomID,
			"celebration_time": s.CelebrationTime,
			"timezone":         s.Timezone,
			"channels":         channels,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetSeatMap handles GET /v1/sessions/:id/seats.  It returns every
// seat of the session with its viewer-relative status: terminal
// statuses come straight from the seat row; otherwise the hold store
// decides between available, held-by-me and held-by-other.  Only the
// viewer's own holds carry an expiry.
func (h *BrowseHandler) GetSeatMap(c echo.Context) error {
	shopperID, err := middleware.ShopperID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing shopper session"})
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	ctx := c.Request().Context()
	if _, err := h.Sessions.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	seats, err := h.Seats.ListBySession(ctx, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load seats"})
	}
	views := make([]model.SeatView, 0, len(seats))
	for _, seat := range seats {
		v := model.SeatView{
			SeatID:     seat.ID,
			Label:      seat.Label,
			ZoneID:     seat.ZoneID,
			PriceCents: seat.PriceCents,
			Status:     seat.Status,
		}
		if !seat.Status.Terminal() {
			st, exp, err := holdstore.Status(ctx, h.Holds, sessionID, seat.ID, shopperID)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load holds"})
			}
			v.Status = st
			v.ExpiresAt = exp
		}
		views = append(views, v)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": views})
}
