package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/slotswap/slot-swap-api/internal/repository"
	"github.com/slotswap/slot-swap-api/internal/service"
)

// SwapHandler exposes the swap negotiation over HTTP.  All state
// transitions go through the engine; the handler only validates input
// shape and translates sentinel errors to status codes.
type SwapHandler struct {
	Engine   *service.SwapEngine
	Requests *repository.SwapRequestRepo
}

func NewSwapHandler(engine *service.SwapEngine, requests *repository.SwapRequestRepo) *SwapHandler {
	if engine == nil || requests == nil {
		panic("nil dependency passed to NewSwapHandler")
	}
	return &SwapHandler{Engine: engine, Requests: requests}
}

type createSwapReq struct {
	MySlotID    uint64 `json:"my_slot_id"`
	TheirSlotID uint64 `json:"their_slot_id"`
}

type respondSwapReq struct {
	// Pointer so a body without the field is distinguishable from false.
	Accepted *bool `json:"accepted"`
}

// Create initiates a swap: the caller offers my_slot_id against
// their_slot_id.  Both slots must be SWAPPABLE and free of pending
// requests; a lost race returns 409 with nothing written.
func (h *SwapHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createSwapReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.MySlotID == 0 || req.TheirSlotID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "my_slot_id and their_slot_id required"})
	}
	if req.MySlotID == req.TheirSlotID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot swap a slot with itself"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	sr, err := h.Engine.Initiate(ctx, uid, req.MySlotID, req.TheirSlotID)
	if err != nil {
		return swapErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, sr)
}

// List returns swap requests the caller participates in.  ?type=
// narrows to "incoming" or "outgoing"; anything else means both.
func (h *SwapHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	direction := c.QueryParam("type")
	switch direction {
	case repository.SwapDirectionIncoming, repository.SwapDirectionOutgoing:
	default:
		direction = repository.SwapDirectionAll
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	reqs, err := h.Requests.ListForUser(ctx, uid, direction)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list swap requests failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"swap_requests": reqs})
}

// Respond applies the target user's accept or reject decision to a
// pending request.  Only the target may respond, and only once.
func (h *SwapHandler) Respond(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid swap request id"})
	}
	var req respondSwapReq
	if err := c.Bind(&req); err != nil || req.Accepted == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "accepted (true or false) required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	sr, err := h.Engine.Resolve(ctx, uid, id, *req.Accepted)
	if err != nil {
		return swapErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, sr)
}
