package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/slotswap/slot-swap-api/internal/model"
	"github.com/slotswap/slot-swap-api/internal/repository"
)

// SlotHandler serves the owner-scoped slot CRUD plus the public browse
// listing of swappable slots.
type SlotHandler struct {
	Slots *repository.SlotRepo
}

func NewSlotHandler(slots *repository.SlotRepo) *SlotHandler {
	if slots == nil {
		panic("nil repository passed to NewSlotHandler")
	}
	return &SlotHandler{Slots: slots}
}

type slotReq struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	Status      string     `json:"status"`
}

// validate normalizes the payload and returns a client-facing message
// when it is unusable.  SWAP_PENDING is never accepted from a client;
// only a swap negotiation moves a slot there.
func (req *slotReq) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	if req.Title == "" {
		return "title required"
	}
	if req.StartsAt == nil || req.EndsAt == nil {
		return "starts_at and ends_at required"
	}
	if !req.EndsAt.After(*req.StartsAt) {
		return "ends_at must be after starts_at"
	}
	if req.Status == "" {
		req.Status = model.SlotStatusBusy
	}
	if !model.ValidSlotStatus(req.Status) {
		return "status must be BUSY or SWAPPABLE"
	}
	return ""
}

// Create adds a slot to the caller's schedule.
func (h *SlotHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req slotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s := model.Slot{
		UserID:      uid,
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		Status:      req.Status,
	}
	if err := h.Slots.Create(ctx, &s); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create slot failed"})
	}
	return c.JSON(http.StatusCreated, s)
}

// List returns the caller's own slots ordered by start time.
func (h *SlotHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	slots, err := h.Slots.ListByOwner(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list slots failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": slots})
}

// Get returns one of the caller's slots.
func (h *SlotHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Slots.GetByIDForOwner(ctx, id, uid)
	if err != nil {
		return swapErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Update replaces the editable fields of a slot.  A slot locked into a
// pending swap cannot be edited until the negotiation resolves.
func (h *SlotHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	var req slotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Slots.GetByIDForOwner(ctx, id, uid)
	if err != nil {
		return swapErrorResponse(c, err)
	}
	if s.Status == model.SlotStatusSwapPending {
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot is part of a pending swap"})
	}

	s.Title = req.Title
	s.Description = req.Description
	s.StartsAt = req.StartsAt.UTC()
	s.EndsAt = req.EndsAt.UTC()
	s.Status = req.Status
	if err := h.Slots.Update(ctx, s); err != nil {
		return swapErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Delete removes a slot unless it is locked into a pending swap.
func (h *SlotHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Slots.Delete(ctx, id, uid); err != nil {
		return swapErrorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListSwappable returns every slot other users currently offer for
// swapping.  The route sits behind the response cache.
func (h *SlotHandler) ListSwappable(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	slots, err := h.Slots.ListSwappableExcluding(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list swappable slots failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": slots})
}
