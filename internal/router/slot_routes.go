package router

import (
	"github.com/labstack/echo/v4"

	"github.com/slotswap/slot-swap-api/internal/handler"
	"github.com/slotswap/slot-swap-api/internal/middleware"
)

// RegisterSlots registers the owner-scoped slot CRUD and the browse
// listing of other users' swappable slots.  cacheMW fronts the browse
// route only; pass nil to register it uncached.
func RegisterSlots(e *echo.Echo, h *handler.SlotHandler, jwtSecret string, cacheMW echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	g.POST("/slots", h.Create)
	g.GET("/slots", h.List)
	g.GET("/slots/:id", h.Get)
	g.PUT("/slots/:id", h.Update)
	g.DELETE("/slots/:id", h.Delete)

	if cacheMW != nil {
		g.GET("/swappable-slots", h.ListSwappable, cacheMW)
	} else {
		g.GET("/swappable-slots", h.ListSwappable)
	}
}
