package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/slotswap/slot-swap-api/internal/model"
)

// SwapRequestRepo provides data access to the swap_requests table.
// Requests are created and mutated exclusively through the swap engine's
// transactions; this repository performs no validation of slot state.
// Resolved requests are never deleted; they remain as history.
type SwapRequestRepo struct {
	db *sql.DB
}

// NewSwapRequestRepo returns a new SwapRequestRepo bound to the given database.
func NewSwapRequestRepo(db *sql.DB) *SwapRequestRepo { return &SwapRequestRepo{db: db} }

const swapRequestColumns = `id, requester_id, requester_slot_id, target_user_id, target_slot_id, status, created_at`

func scanSwapRequest(row interface{ Scan(...any) error }) (*model.SwapRequest, error) {
	var sr model.SwapRequest
	err := row.Scan(&sr.ID, &sr.RequesterID, &sr.RequesterSlotID, &sr.TargetUserID,
		&sr.TargetSlotID, &sr.Status, &sr.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

// CreateTx inserts a new PENDING swap request within the scope of an
// existing transaction and populates the generated ID and creation
// timestamp on the provided record.  The caller must commit or roll
// back the transaction.
func (r *SwapRequestRepo) CreateTx(ctx context.Context, tx *sql.Tx, sr *model.SwapRequest) error {
	sr.Status = model.SwapStatusPending
	sr.CreatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO swap_requests (requester_id, requester_slot_id, target_user_id, target_slot_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sr.RequesterID, sr.RequesterSlotID, sr.TargetUserID, sr.TargetSlotID, sr.Status, sr.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sr.ID = uint64(id)
	return nil
}

// GetByID returns a swap request by its primary key.  It returns
// ErrSwapRequestNotFound when no such request exists.
func (r *SwapRequestRepo) GetByID(ctx context.Context, id uint64) (*model.SwapRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+swapRequestColumns+` FROM swap_requests WHERE id = ?`, id)
	sr, err := scanSwapRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSwapRequestNotFound
	}
	return sr, err
}

// GetByIDTx loads a swap request within a transaction and locks the row
// with FOR UPDATE.  Locking the request row first makes a double
// resolution serialize here: the second resolver waits, then observes a
// terminal status.  It returns ErrSwapRequestNotFound when absent.
func (r *SwapRequestRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.SwapRequest, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+swapRequestColumns+` FROM swap_requests WHERE id = ? FOR UPDATE`, id)
	sr, err := scanSwapRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSwapRequestNotFound
	}
	return sr, err
}

// HasPendingForSlotsTx reports whether any PENDING swap request
// references either of the two slots, on either side of the exchange.
// This is the query behind the at-most-one-pending-per-slot invariant;
// it must run inside the same transaction that creates the new request.
func (r *SwapRequestRepo) HasPendingForSlotsTx(ctx context.Context, tx *sql.Tx, slotA, slotB uint64) (bool, error) {
	const q = `SELECT EXISTS(
	             SELECT 1 FROM swap_requests
	             WHERE status = ?
	               AND (requester_slot_id IN (?, ?) OR target_slot_id IN (?, ?)))`
	var exists bool
	err := tx.QueryRowContext(ctx, q, model.SwapStatusPending, slotA, slotB, slotA, slotB).Scan(&exists)
	return exists, err
}

// UpdateStatusTx moves a request to a terminal status inside the given
// transaction.  The engine has already verified the PENDING
// precondition under the row lock taken by GetByIDTx.
func (r *SwapRequestRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE swap_requests SET status = ? WHERE id = ?`, status, id)
	return err
}

// SwapParty identifies one side of a swap in listings.
type SwapParty struct {
	ID       uint64 `json:"id"`
	FullName string `json:"name"`
	Email    string `json:"email"`
}

// SwapSlotInfo summarizes a slot referenced by a swap request.
type SwapSlotInfo struct {
	ID       uint64    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Status   string    `json:"status"`
}

// SwapRequestDetail is a swap request joined with both participants and
// both slots, as served by the listing endpoint.
type SwapRequestDetail struct {
	ID            uint64       `json:"id"`
	Status        string       `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	Requester     SwapParty    `json:"requester"`
	RequesterSlot SwapSlotInfo `json:"requester_slot"`
	TargetUser    SwapParty    `json:"target_user"`
	TargetSlot    SwapSlotInfo `json:"target_slot"`
	IsIncoming    bool         `json:"is_incoming"`
}

// Directions accepted by ListForUser.
const (
	SwapDirectionIncoming = "incoming"
	SwapDirectionOutgoing = "outgoing"
	SwapDirectionAll      = "all"
)

// ListForUser returns the swap requests in which the user participates,
// newest first, joined with both parties and both slots.  direction
// restricts the listing to requests addressed to the user (incoming),
// requests the user initiated (outgoing), or both (all).
func (r *SwapRequestRepo) ListForUser(ctx context.Context, userID uint64, direction string) ([]SwapRequestDetail, error) {
	q := `SELECT sr.id, sr.status, sr.created_at,
	             ru.id, ru.full_name, ru.email,
	             rs.id, rs.title, rs.starts_at, rs.ends_at, rs.status,
	             tu.id, tu.full_name, tu.email,
	             ts.id, ts.title, ts.starts_at, ts.ends_at, ts.status
	      FROM swap_requests sr
	      JOIN users ru ON ru.id = sr.requester_id
	      JOIN slots rs ON rs.id = sr.requester_slot_id
	      JOIN users tu ON tu.id = sr.target_user_id
	      JOIN slots ts ON ts.id = sr.target_slot_id`
	var args []any
	switch direction {
	case SwapDirectionIncoming:
		q += ` WHERE sr.target_user_id = ?`
		args = append(args, userID)
	case SwapDirectionOutgoing:
		q += ` WHERE sr.requester_id = ?`
		args = append(args, userID)
	default:
		q += ` WHERE sr.target_user_id = ? OR sr.requester_id = ?`
		args = append(args, userID, userID)
	}
	q += ` ORDER BY sr.created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]SwapRequestDetail, 0)
	for rows.Next() {
		var d SwapRequestDetail
		if err := rows.Scan(
			&d.ID, &d.Status, &d.CreatedAt,
			&d.Requester.ID, &d.Requester.FullName, &d.Requester.Email,
			&d.RequesterSlot.ID, &d.RequesterSlot.Title, &d.RequesterSlot.StartsAt, &d.RequesterSlot.EndsAt, &d.RequesterSlot.Status,
			&d.TargetUser.ID, &d.TargetUser.FullName, &d.TargetUser.Email,
			&d.TargetSlot.ID, &d.TargetSlot.Title, &d.TargetSlot.StartsAt, &d.TargetSlot.EndsAt, &d.TargetSlot.Status,
		); err != nil {
			return nil, err
		}
		d.IsIncoming = d.TargetUser.ID == userID
		details = append(details, d)
	}
	return details, rows.Err()
}
