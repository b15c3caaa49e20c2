// Package queue defines message payloads exchanged over the message broker.
package queue

// Swap event types carried on the swap.events queue.  They mirror the
// three transitions of a swap negotiation.
const (
	EventSwapRequestCreated  = "swap-request-created"
	EventSwapRequestAccepted = "swap-request-accepted"
	EventSwapRequestRejected = "swap-request-rejected"
)

// SwapEvent is published after a swap negotiation transition commits.
// It contains enough information for downstream consumers to notify the
// recipient, log, or trigger analytics without querying the primary
// database.  Delivery is best-effort: a lost event never invalidates
// the committed transition it describes.
type SwapEvent struct {
	EventID            string `json:"event_id"`
	Type               string `json:"type"`
	RecipientUserID    uint64 `json:"recipient_user_id"`
	RequestID          uint64 `json:"request_id"`
	RequesterName      string `json:"requester_name,omitempty"`
	RequesterSlotTitle string `json:"requester_slot_title"`
	TargetSlotTitle    string `json:"target_slot_title"`
	OccurredAt         string `json:"occurred_at"`
}
