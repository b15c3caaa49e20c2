package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/slotswap/slot-swap-api/internal/model"
)

// SlotRepo provides CRUD operations for schedule slots.  Owner-facing
// reads and writes operate on *sql.DB directly; the ...Tx variants take
// an explicit *sql.Tx and exist for the swap engine, which must check
// and mutate several rows as a single atomic unit.  All timestamps are
// stored in UTC.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a new SlotRepo bound to the given database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

const slotColumns = `id, user_id, title, description, starts_at, ends_at, status, created_at, updated_at`

func scanSlot(row interface{ Scan(...any) error }) (*model.Slot, error) {
	var s model.Slot
	var desc sql.NullString
	err := row.Scan(&s.ID, &s.UserID, &s.Title, &desc, &s.StartsAt, &s.EndsAt, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Description = desc.String
	return &s, nil
}

// Create inserts a new slot and populates the generated ID and
// timestamps on the provided model.  Validation of the time range and
// status happens in the handler; the repository persists what it is
// given.
func (r *SlotRepo) Create(ctx context.Context, s *model.Slot) error {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO slots (user_id, title, description, starts_at, ends_at, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.UserID, s.Title, s.Description, s.StartsAt.UTC(), s.EndsAt.UTC(), s.Status, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// GetByID returns a slot by its primary key regardless of owner.  It
// returns ErrSlotNotFound when no such slot exists.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (*model.Slot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id)
	s, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	return s, err
}

// GetByIDForOwner returns a slot only when it belongs to the given
// user.  A slot owned by someone else is reported as ErrSlotNotFound,
// matching the lookup semantics of the owner-scoped endpoints.
func (r *SlotRepo) GetByIDForOwner(ctx context.Context, id, ownerID uint64) (*model.Slot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = ? AND user_id = ?`, id, ownerID)
	s, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	return s, err
}

// ListByOwner returns all slots belonging to a user ordered by start
// time ascending.  An empty slice is returned when the user has no
// slots.
func (r *SlotRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Slot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE user_id = ? ORDER BY starts_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	slots := make([]model.Slot, 0)
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

// SlotOwner carries the public identity of a slot's owner for browse
// listings.
type SlotOwner struct {
	ID       uint64 `json:"id"`
	FullName string `json:"name"`
	Email    string `json:"email"`
}

// SwappableSlot is a slot offered for swapping together with its
// owner's identity.  It is returned by ListSwappableExcluding for the
// browse endpoint.
type SwappableSlot struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Status      string    `json:"status"`
	Owner       SlotOwner `json:"owner"`
}

// ListSwappableExcluding returns every SWAPPABLE slot that does not
// belong to the given user, joined with the owner's name and email,
// ordered by start time ascending.
func (r *SlotRepo) ListSwappableExcluding(ctx context.Context, userID uint64) ([]SwappableSlot, error) {
	const q = `SELECT s.id, s.title, s.description, s.starts_at, s.ends_at, s.status,
	                  u.id, u.full_name, u.email
	           FROM slots s
	           JOIN users u ON u.id = s.user_id
	           WHERE s.status = ? AND s.user_id <> ?
	           ORDER BY s.starts_at`
	rows, err := r.db.QueryContext(ctx, q, model.SlotStatusSwappable, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	slots := make([]SwappableSlot, 0)
	for rows.Next() {
		var s SwappableSlot
		var desc sql.NullString
		if err := rows.Scan(&s.ID, &s.Title, &desc, &s.StartsAt, &s.EndsAt, &s.Status,
			&s.Owner.ID, &s.Owner.FullName, &s.Owner.Email); err != nil {
			return nil, err
		}
		s.Description = desc.String
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// Update persists owner-editable fields of a slot.  The handler refuses
// a manual transition into SWAP_PENDING before calling this; the status
// guard on the WHERE clause protects the other direction, so a slot a
// concurrent swap just locked cannot be clobbered between the handler's
// read and this write.  Zero affected rows means the slot entered a
// pending swap and the edit is reported as ErrSlotLocked.
func (r *SlotRepo) Update(ctx context.Context, s *model.Slot) error {
	s.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE slots SET title = ?, description = ?, starts_at = ?, ends_at = ?, status = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND status <> ?`,
		s.Title, s.Description, s.StartsAt.UTC(), s.EndsAt.UTC(), s.Status, s.UpdatedAt, s.ID, s.UserID,
		model.SlotStatusSwapPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSlotLocked
	}
	return nil
}

// Delete removes a slot owned by the given user.  It returns
// ErrSlotNotFound when the slot does not exist or belongs to someone
// else, and ErrSlotLocked when the slot is part of a pending swap.  The
// DELETE itself carries the status guard: deleting a SWAP_PENDING slot
// would strand its counterpart mid-negotiation, so a swap that claims
// the slot between the status read and the delete wins the row and the
// delete reports ErrSlotLocked, same as the up-front check.
func (r *SlotRepo) Delete(ctx context.Context, id, ownerID uint64) error {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM slots WHERE id = ? AND user_id = ?`, id, ownerID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSlotNotFound
	}
	if err != nil {
		return err
	}
	if status == model.SlotStatusSwapPending {
		return ErrSlotLocked
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM slots WHERE id = ? AND user_id = ? AND status <> ?`,
		id, ownerID, model.SlotStatusSwapPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSlotLocked
	}
	return nil
}

// GetByIDTx loads a slot within a transaction and locks the row with
// FOR UPDATE so that concurrent swap operations touching the same slot
// serialize on it.  It returns ErrSlotNotFound when the row is absent.
func (r *SlotRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Slot, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ? FOR UPDATE`, id)
	s, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	return s, err
}

// MarkSwapPendingTx conditionally transitions a slot from SWAPPABLE to
// SWAP_PENDING inside the given transaction.  The WHERE clause is the
// concurrency guard: it reports false when the slot was not SWAPPABLE
// anymore, i.e. when a racing swap won the row first.  The caller must
// roll back the whole transaction in that case.
func (r *SlotRepo) MarkSwapPendingTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE slots SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.SlotStatusSwapPending, time.Now().UTC(), id, model.SlotStatusSwappable)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetStatusTx sets a slot's status unconditionally inside the given
// transaction.  It is used by the swap engine to release slots back to
// BUSY or SWAPPABLE when a negotiation resolves.
func (r *SlotRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE slots SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	return err
}

// SetOwnerAndStatusTx reassigns a slot to a new owner and sets its
// status in one statement.  Two calls under the same transaction
// implement the atomic ownership exchange of an accepted swap.
func (r *SlotRepo) SetOwnerAndStatusTx(ctx context.Context, tx *sql.Tx, id, newOwnerID uint64, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE slots SET user_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		newOwnerID, status, time.Now().UTC(), id)
	return err
}
