package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/entradaslive/ticketing-core/internal/cart"
	"github.com/entradaslive/ticketing-core/internal/discount"
	"github.com/entradaslive/ticketing-core/internal/holdstore"
	"github.com/entradaslive/ticketing-core/internal/middleware"
	"github.com/entradaslive/ticketing-core/internal/model"
	"github.com/entradaslive/ticketing-core/internal/repository"
)

// CartHandler exposes the shopper cart: claiming and releasing seats,
// the countdown, discount application and checkout.  All state
// decisions are delegated to the cart controller; this layer only
// translates errors into HTTP responses.
type CartHandler struct {
	Cart *cart.Controller
}

// NewCartHandler constructs a CartHandler.
func NewCartHandler(ctrl *cart.Controller) *CartHandler {
	if ctrl == nil {
		panic("nil controller passed to NewCartHandler")
	}
	return &CartHandler{Cart: ctrl}
}

// HoldSeat handles POST /v1/sessions/:id/seats/:seat_id/hold.  The
// request body names the sales channel.  On success it returns 201
// with the hold's expiry.  The losing side of a claim race gets 409;
// so does a claim outside the channel's sale window.
func (h *CartHandler) HoldSeat(c echo.Context) error {
	shopperID, err := middleware.ShopperID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing shopper session"})
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	seatID, err := strconv.ParseUint(c.Param("seat_id"), 10, 64)
	if err != nil || seatID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	var body struct {
		Channel string `json:"channel"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Channel == "" {
		body.Channel = model.ChannelInternet
	}

	hold, err := h.Cart.AddSeat(c.Request().Context(), shopperID, sessionID, seatID, body.Channel)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, echo.Map{
			"seat_id":    hold.SeatID,
			"expires_at": hold.ExpiresAt.Format(time.RFC3339),
			"token":      hold.Token,
		})
	case errors.Is(err, holdstore.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat already held", "status": model.SeatHeldByOther})
	case errors.Is(err, cart.ErrSeatUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat not available"})
	case errors.Is(err, cart.ErrSalesClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "channel not open for sale"})
	case errors.Is(err, cart.ErrWrongSession):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cart holds seats for another session"})
	case errors.Is(err, repository.ErrSessionNotFound), errors.Is(err, repository.ErrSeatNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to hold seat"})
	}
}

// ReleaseSeat handles DELETE /v1/sessions/:id/seats/:seat_id/hold.
// Releasing a seat the shopper does not hold is 403, not a silent
// no-op, so stale clients learn their seat map is out of date.
func (h *CartHandler) ReleaseSeat(c echo.Context) error {
	shopperID, err := middleware.ShopperID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing shopper session"})
	}
	seatID, err := strconv.ParseUint(c.Param("seat_id"), 10, 64)
	if err != nil || seatID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	err = h.Cart.RemoveSeat(c.Request().Context(), shopperID, seatID)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, holdstore.ErrNotOwner):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "seat not held by you"})
	case errors.Is(err, cart.ErrNoCart):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no active cart"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release seat"})
	}
}

// GetCart handles GET /v1/cart.  It returns the priced cart, the
// state and the display countdown.  A shopper without a cart gets an
// empty view rather than an error.
func (h *CartHandler) GetCart(c echo.Context) error {
	shopperID, err := middleware.ShopperID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing shopper session"})
	}
	v, err := h.Cart.Get(c.Request().Context(), shopperID)
	if errors.Is(err, cart.ErrNoCart) {
		return c.JSON(http.StatusOK, cart.View{State: model.CartEmpty})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load cart"})
	}
	return c.JSON(http.StatusOK, v)
}

// ApplyDiscount handles POST /v1/cart/discount.  An invalid or
// expired code returns 400 together with the unchanged priced cart;
// the shopper can still check out at full price.
func (h *CartHandler) ApplyDiscount(c echo.Context) error {
	shopperID, err := middleware.ShopperID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing shopper session"})
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&body); err != nil || body.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
	}
	priced, err := h.Cart.ApplyCode(c.Request().Context(), shopperID, body.Code)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"cart": priced})
	case errors.Is(err, discount.ErrCodeInvalid):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired code", "cart": priced})
	case errors.Is(err, cart.ErrNoCart):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no active cart"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to apply code"})
	}
}

// Checkout handles POST /v1/cart/checkout.  The optional "reserve"
// flag finalises the seats as RESERVED instead of SOLD.  A hold that
// lapsed since the cart was built aborts with 409 and the expired
// seat ids; the cart is back in Building with those seats removed.
func (h *CartHandler) Checkout(c echo.Context) error {
	shopperID, err := middleware.ShopperID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing shopper session"})
	}
	var body struct {
		Reserve bool `json:"reserve"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	priced, err := h.Cart.Checkout(c.Request().Context(), shopperID, body.Reserve)
	var expired *cart.ExpiredHoldsError
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, echo.Map{"cart": priced})
	case errors.As(err, &expired):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":         "holds expired before checkout",
			"expired_seats": expired.SeatIDs,
		})
	case errors.Is(err, cart.ErrEmptyCart), errors.Is(err, cart.ErrNoCart):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cart is empty"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "checkout failed"})
	}
}

// Abandon handles POST /v1/cart/abandon.  All holds go back to the
// pool immediately instead of waiting out their expiry.
func (h *CartHandler) Abandon(c echo.Context) error {
	shopperID, err := middleware.ShopperID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing shopper session"})
	}
	if err := h.Cart.Abandon(c.Request().Context(), shopperID); err != nil && !errors.Is(err, cart.ErrNoCart) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to abandon cart"})
	}
	return c.NoContent(http.StatusNoContent)
}
