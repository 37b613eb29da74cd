package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/entradaslive/ticketing-core/internal/config"
	"github.com/entradaslive/ticketing-core/internal/handler"
	"github.com/entradaslive/ticketing-core/internal/middleware"
)

// RegisterStore registers the shopper-facing endpoints under /v1.
// Every route sits behind the shopper token middleware so that each
// request carries a stable anonymous shopper id; the seat claim route
// is additionally rate limited because it is the one endpoint scripts
// hammer.
func RegisterStore(e *echo.Echo, browse *handler.BrowseHandler, cart *handler.CartHandler, cfg config.Config, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group(
		"/v1",
		middleware.ShopperToken(cfg.ShopperTokenSecret, cfg.ShopperTokenTTL),
	)

	// Browse: which sessions are on sale and the live seat map.
	g.GET("/sessions", browse.ListSessions)
	g.GET("/sessions/:id/seats", browse.GetSeatMap)

	// Holds: claim and release individual seats.  The claim route gets
	// the token-bucket limiter.
	g.POST("/sessions/:id/seats/:seat_id/hold", cart.HoldSeat, middleware.ClaimRateLimit(rl, rdb))
	g.DELETE("/sessions/:id/seats/:seat_id/hold", cart.ReleaseSeat)

	// Cart lifecycle.
	g.GET("/cart", cart.GetCart)
	g.POST("/cart/discount", cart.ApplyDiscount)
	g.POST("/cart/checkout", cart.Checkout)
	g.POST("/cart/abandon", cart.Abandon)
}
