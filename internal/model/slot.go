package model

import "time"

// Slot statuses.  A slot is a single schedule entry owned by exactly one
// user.  Only SWAPPABLE slots may enter a swap negotiation; SWAP_PENDING
// is reserved for the swap engine and can never be set directly by the
// owner.
const (
	SlotStatusBusy        = "BUSY"
	SlotStatusSwappable   = "SWAPPABLE"
	SlotStatusSwapPending = "SWAP_PENDING"
)

// Slot represents a row in the `slots` table.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – current owner of the slot.  Ownership changes only when
//                the swap engine resolves an accepted swap.
//  Title       – short label for the schedule entry.
//  Description – optional free text.
//  StartsAt    – start of the slot (UTC).
//  EndsAt      – end of the slot (UTC); always after StartsAt.
//  Status      – BUSY, SWAPPABLE or SWAP_PENDING.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Slot struct {
	ID          uint64    `json:"id"`          // slots.id
	UserID      uint64    `json:"user_id"`     // slots.user_id
	Title       string    `json:"title"`       // slots.title
	Description string    `json:"description"` // slots.description
	StartsAt    time.Time `json:"starts_at"`   // slots.starts_at
	EndsAt      time.Time `json:"ends_at"`     // slots.ends_at
	Status      string    `json:"status"`      // slots.status
	CreatedAt   time.Time `json:"created_at"`  // slots.created_at
	UpdatedAt   time.Time `json:"updated_at"`  // slots.updated_at
}

// ValidSlotStatus reports whether s is a status a client may submit when
// creating or updating a slot.  SWAP_PENDING is deliberately excluded:
// that state belongs to the swap engine alone.
func ValidSlotStatus(s string) bool {
	return s == SlotStatusBusy || s == SlotStatusSwappable
}
