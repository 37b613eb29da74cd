package router

import (
	"github.com/labstack/echo/v4"

	"github.com/entradaslive/ticketing-core/internal/handler"
)

// RegisterBackoffice registers the configuration endpoints under
// /v1/backoffice.  Operator authentication is handled upstream by the
// deployment's gateway, so no shopper token middleware applies here.
func RegisterBackoffice(e *echo.Echo, b *handler.BackofficeHandler) {
	g := e.Group("/v1/backoffice")

	g.POST("/sessions", b.CreateSession)
	g.PUT("/sessions/:id", b.UpdateSession)
	g.GET("/sessions/:id", b.GetSession)
	g.POST("/sessions/:id/seats", b.CreateSeats)
	g.POST("/discounts", b.CreateDiscount)
}
