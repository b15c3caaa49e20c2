// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current user is not
// authorized to act on a resource owned by someone else, while
// ErrConflict signals that an operation lost a race against a
// concurrent swap touching the same slot.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own or are not the addressee of.
// Handlers should translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an operation cannot proceed because a
// concurrent swap already claimed one of the slots involved, or the
// transaction could not be completed within the bounded retry budget.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrInvalidState is returned when the resource exists but is in the
// wrong status for the requested transition, such as initiating a swap
// with a BUSY slot or resolving a request that is no longer PENDING.
// Handlers should translate this into an HTTP 400 response.
var ErrInvalidState = errors.New("invalid state")

// ErrSelfSwap is returned when a user attempts to swap two of their own
// slots.  Handlers should translate this into an HTTP 409 response.
var ErrSelfSwap = errors.New("cannot swap with your own slot")

// ErrSlotNotFound is returned when a referenced slot does not exist or
// is not visible to the caller.
var ErrSlotNotFound = errors.New("slot not found")

// ErrSwapRequestNotFound is returned when a referenced swap request
// does not exist.
var ErrSwapRequestNotFound = errors.New("swap request not found")

// ErrSlotLocked is returned when a slot cannot be edited or deleted
// because it is part of a pending swap.  Handlers should translate this
// into an HTTP 409 response.
var ErrSlotLocked = errors.New("slot has a pending swap")
