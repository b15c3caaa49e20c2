package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/slotswap/slot-swap-api/internal/ai"
	"github.com/slotswap/slot-swap-api/internal/model"
	"github.com/slotswap/slot-swap-api/internal/repository"
)

// AIHandler serves the advisory endpoints.  Results are best-effort:
// when the model is unreachable or unconfigured the handlers answer
// with empty advisories rather than an error, because nothing in the
// swap workflow depends on them.
type AIHandler struct {
	Client *ai.Client
	Slots  *repository.SlotRepo
}

func NewAIHandler(client *ai.Client, slots *repository.SlotRepo) *AIHandler {
	if client == nil || slots == nil {
		panic("nil dependency passed to NewAIHandler")
	}
	return &AIHandler{Client: client, Slots: slots}
}

// Suggestions proposes swap pairings between the caller's swappable
// slots and other users' offerings.
func (h *AIHandler) Suggestions(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 25*time.Second)
	defer cancel()

	own, err := h.Slots.ListByOwner(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list slots failed"})
	}
	mine := make([]ai.SlotSummary, 0, len(own))
	for _, s := range own {
		if s.Status == model.SlotStatusSwappable {
			mine = append(mine, ai.SlotSummary{ID: s.ID, Title: s.Title, StartsAt: s.StartsAt, EndsAt: s.EndsAt})
		}
	}

	offered, err := h.Slots.ListSwappableExcluding(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list swappable slots failed"})
	}
	available := make([]ai.SlotSummary, 0, len(offered))
	for _, s := range offered {
		available = append(available, ai.SlotSummary{
			ID: s.ID, Title: s.Title, StartsAt: s.StartsAt, EndsAt: s.EndsAt, OwnerName: s.Owner.FullName,
		})
	}

	suggestions, err := h.Client.SwapSuggestions(ctx, mine, available)
	if err != nil {
		suggestions = []ai.SlotSuggestion{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"suggestions":  suggestions,
		"ai_available": h.Client.Enabled() && err == nil,
	})
}

type chatReq struct {
	Message string `json:"message"`
}

// Chat answers a free-form scheduling question.  The caller's own
// slots and the current swap offerings are passed to the model as
// context.
func (h *AIHandler) Chat(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req chatReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "message required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 25*time.Second)
	defer cancel()

	own, err := h.Slots.ListByOwner(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list slots failed"})
	}
	mine := make([]ai.SlotSummary, 0, len(own))
	for _, s := range own {
		mine = append(mine, ai.SlotSummary{ID: s.ID, Title: s.Title, StartsAt: s.StartsAt, EndsAt: s.EndsAt})
	}

	offered, err := h.Slots.ListSwappableExcluding(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list swappable slots failed"})
	}
	available := make([]ai.SlotSummary, 0, len(offered))
	for _, s := range offered {
		available = append(available, ai.SlotSummary{
			ID: s.ID, Title: s.Title, StartsAt: s.StartsAt, EndsAt: s.EndsAt, OwnerName: s.Owner.FullName,
		})
	}

	reply, err := h.Client.Chat(ctx, req.Message, mine, available)
	if err != nil {
		reply = ""
	}
	return c.JSON(http.StatusOK, echo.Map{
		"response":     reply,
		"ai_available": h.Client.Enabled() && err == nil,
	})
}

type titleReq struct {
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	Description string     `json:"description"`
}

// SuggestTitle proposes a short title for a slot covering the given
// time range.
func (h *AIHandler) SuggestTitle(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req titleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.StartsAt == nil || req.EndsAt == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at and ends_at required"})
	}
	if !req.EndsAt.After(*req.StartsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be after starts_at"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 25*time.Second)
	defer cancel()

	title, err := h.Client.SuggestTitle(ctx, req.StartsAt.UTC(), req.EndsAt.UTC(), strings.TrimSpace(req.Description))
	if err != nil {
		title = "New Slot"
	}
	return c.JSON(http.StatusOK, echo.Map{
		"title":        title,
		"ai_available": h.Client.Enabled() && err == nil,
	})
}

// Analyze flags scheduling issues in the caller's own slots.
func (h *AIHandler) Analyze(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 25*time.Second)
	defer cancel()

	own, err := h.Slots.ListByOwner(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list slots failed"})
	}
	summaries := make([]ai.SlotSummary, 0, len(own))
	for _, s := range own {
		summaries = append(summaries, ai.SlotSummary{ID: s.ID, Title: s.Title, StartsAt: s.StartsAt, EndsAt: s.EndsAt})
	}

	warnings, err := h.Client.ScheduleWarnings(ctx, summaries)
	if err != nil {
		warnings = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"warnings":     warnings,
		"ai_available": h.Client.Enabled() && err == nil,
	})
}
