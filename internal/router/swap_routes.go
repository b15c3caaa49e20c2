package router

import (
	"github.com/labstack/echo/v4"

	"github.com/slotswap/slot-swap-api/internal/handler"
	"github.com/slotswap/slot-swap-api/internal/middleware"
)

// RegisterSwaps registers the swap negotiation endpoints.  All of them
// require a valid JWT; finer authorization (who may respond to which
// request) happens in the engine.
func RegisterSwaps(e *echo.Echo, h *handler.SwapHandler, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	g.POST("/swap-requests", h.Create)
	g.GET("/swap-requests", h.List)
	g.POST("/swap-requests/:id/respond", h.Respond)
}

// RegisterAI registers the advisory endpoints.
func RegisterAI(e *echo.Echo, h *handler.AIHandler, jwtSecret string) {
	g := e.Group("/v1/ai", middleware.JWTAuth(jwtSecret))

	g.GET("/swap-suggestions", h.Suggestions)
	g.GET("/schedule-analysis", h.Analyze)
	g.POST("/chat", h.Chat)
	g.POST("/suggest-title", h.SuggestTitle)
}
