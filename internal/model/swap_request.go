package model

import "time"

// Swap request statuses.  PENDING is the only live state; ACCEPTED and
// REJECTED are terminal and a request never leaves them.
const (
	SwapStatusPending  = "PENDING"
	SwapStatusAccepted = "ACCEPTED"
	SwapStatusRejected = "REJECTED"
)

// SwapRequest represents a row in the `swap_requests` table.  It is a
// proposal by the requester to exchange ownership of two slots with the
// target user.  Requests are created and resolved exclusively by the swap
// engine and are retained forever as history.
//
// Fields:
//  ID              – primary key identifier.
//  RequesterID     – user proposing the swap.
//  RequesterSlotID – the requester's own slot offered in the exchange.
//  TargetUserID    – owner of the wanted slot at creation time.
//  TargetSlotID    – the slot the requester wants.
//  Status          – PENDING, ACCEPTED or REJECTED.
//  CreatedAt       – creation timestamp.
type SwapRequest struct {
	ID              uint64    `json:"id"`                // swap_requests.id
	RequesterID     uint64    `json:"requester_id"`      // swap_requests.requester_id
	RequesterSlotID uint64    `json:"requester_slot_id"` // swap_requests.requester_slot_id
	TargetUserID    uint64    `json:"target_user_id"`    // swap_requests.target_user_id
	TargetSlotID    uint64    `json:"target_slot_id"`    // swap_requests.target_slot_id
	Status          string    `json:"status"`            // swap_requests.status
	CreatedAt       time.Time `json:"created_at"`        // swap_requests.created_at
}
