// Package service implements the swap negotiation engine: the state
// machine that moves a pair of slots and a swap request through
// creation, acceptance and rejection under concurrent access.
package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/slotswap/slot-swap-api/internal/model"
	"github.com/slotswap/slot-swap-api/internal/notify"
	"github.com/slotswap/slot-swap-api/internal/repository"
)

// maxTxAttempts bounds how often a transaction is retried after the
// database reports a deadlock or lock-wait timeout before the operation
// fails with repository.ErrConflict.
const maxTxAttempts = 3

// SwapEngine enforces the swap state machine.  Every operation runs as
// a single database transaction: the precondition checks and all writes
// to slots and swap_requests either commit together or leave no trace.
// Only the engine moves a slot into or out of SWAP_PENDING, and only
// the engine resolves a request's status.
//
// Slot rows are locked FOR UPDATE in ascending id order to keep InnoDB
// deadlocks rare; correctness does not depend on the order, because the
// SWAPPABLE→SWAP_PENDING transition is a conditional update that only
// the first writer can win.
type SwapEngine struct {
	db         *sql.DB
	slots      *repository.SlotRepo
	requests   *repository.SwapRequestRepo
	users      *repository.UserRepo
	dispatcher notify.Dispatcher
	logger     *zap.Logger
}

// NewSwapEngine constructs a SwapEngine.  All dependencies must be
// non-nil; the dispatcher may be a no-op implementation in tests.
func NewSwapEngine(db *sql.DB, slots *repository.SlotRepo, requests *repository.SwapRequestRepo, users *repository.UserRepo, dispatcher notify.Dispatcher, logger *zap.Logger) *SwapEngine {
	if db == nil || slots == nil || requests == nil || users == nil || dispatcher == nil {
		panic("nil dependency passed to NewSwapEngine")
	}
	return &SwapEngine{
		db:         db,
		slots:      slots,
		requests:   requests,
		users:      users,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// isRetryableTxErr reports whether the error is a MySQL deadlock (1213)
// or lock-wait timeout (1205), the only failures worth retrying.
func isRetryableTxErr(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1213 || me.Number == 1205
	}
	return false
}

// runInTx executes fn inside a transaction, retrying bounded times on
// deadlock.  fn must perform all reads and writes through the provided
// tx; any error from fn rolls the whole transaction back.  When the
// retry budget is exhausted the caller sees repository.ErrConflict,
// never a half-applied state.
func (e *SwapEngine) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		tx, err := e.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		err = func() error {
			defer func() {
				if !committed {
					_ = tx.Rollback()
				}
			}()
			if err := fn(tx); err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			committed = true
			return nil
		}()
		if err == nil {
			return nil
		}
		if !isRetryableTxErr(err) {
			return err
		}
		lastErr = err
		e.logger.Warn("swap engine: transaction conflict, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	e.logger.Warn("swap engine: retry budget exhausted", zap.Error(lastErr))
	return repository.ErrConflict
}

// lockSlotPair locks both slot rows FOR UPDATE in ascending id order
// and returns them keyed by the caller's ids.
func (e *SwapEngine) lockSlotPair(ctx context.Context, tx *sql.Tx, idA, idB uint64) (a, b *model.Slot, err error) {
	first, second := idA, idB
	if second < first {
		first, second = second, first
	}
	sFirst, err := e.slots.GetByIDTx(ctx, tx, first)
	if err != nil {
		return nil, nil, err
	}
	var sSecond *model.Slot
	if second != first {
		sSecond, err = e.slots.GetByIDTx(ctx, tx, second)
		if err != nil {
			return nil, nil, err
		}
	} else {
		sSecond = sFirst
	}
	if sFirst.ID == idA {
		return sFirst, sSecond, nil
	}
	return sSecond, sFirst, nil
}

// Initiate creates a swap request for the requester's slot against a
// slot owned by someone else.  On success both slots are SWAP_PENDING,
// exactly one new PENDING request references them, and the target user
// is notified.  Preconditions are checked under row locks so that two
// racing initiations for the same slot cannot both succeed: the loser
// fails with repository.ErrConflict and leaves no partial writes.
func (e *SwapEngine) Initiate(ctx context.Context, requesterID, mySlotID, theirSlotID uint64) (*model.SwapRequest, error) {
	var (
		sr     model.SwapRequest
		mine   *model.Slot
		theirs *model.Slot
	)
	err := e.runInTx(ctx, func(tx *sql.Tx) error {
		var err error
		mine, theirs, err = e.lockSlotPair(ctx, tx, mySlotID, theirSlotID)
		if err != nil {
			return err
		}
		if mine.UserID != requesterID {
			return repository.ErrForbidden
		}
		if mine.Status != model.SlotStatusSwappable {
			return repository.ErrInvalidState
		}
		if theirs.Status != model.SlotStatusSwappable {
			return repository.ErrInvalidState
		}
		if theirs.UserID == requesterID {
			return repository.ErrSelfSwap
		}
		pending, err := e.requests.HasPendingForSlotsTx(ctx, tx, mySlotID, theirSlotID)
		if err != nil {
			return err
		}
		if pending {
			return repository.ErrConflict
		}

		sr = model.SwapRequest{
			RequesterID:     requesterID,
			RequesterSlotID: mySlotID,
			TargetUserID:    theirs.UserID,
			TargetSlotID:    theirSlotID,
		}
		if err := e.requests.CreateTx(ctx, tx, &sr); err != nil {
			return err
		}
		for _, id := range []uint64{mySlotID, theirSlotID} {
			won, err := e.slots.MarkSwapPendingTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if !won {
				// Someone else claimed the slot between our lock and
				// the conditional update; abort the whole initiation.
				return repository.ErrConflict
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("swap request created",
		zap.Uint64("request_id", sr.ID),
		zap.Uint64("requester_id", requesterID),
		zap.Uint64("requester_slot_id", mySlotID),
		zap.Uint64("target_user_id", sr.TargetUserID),
		zap.Uint64("target_slot_id", theirSlotID))

	// The requester's name only decorates the notification, so a failed
	// lookup after commit must not fail the initiation.
	var requesterName string
	if requester, err := e.users.GetByID(ctx, requesterID); err != nil {
		e.logger.Warn("swap engine: requester lookup failed, notifying without name",
			zap.Uint64("requester_id", requesterID), zap.Error(err))
	} else if requester.FullName != "" {
		requesterName = requester.FullName
	} else {
		requesterName = requester.Email
	}
	e.dispatcher.SwapRequestCreated(ctx, sr.TargetUserID, sr.ID, requesterName, mine.Title, theirs.Title)
	return &sr, nil
}

// Resolve applies the target user's decision to a pending request.  On
// accept the two slots exchange owners and return to BUSY; on reject
// both return to SWAPPABLE with ownership unchanged.  Either way the
// request reaches a terminal status and the original requester is
// notified.  A request that is no longer PENDING fails with
// repository.ErrInvalidState and changes nothing.
func (e *SwapEngine) Resolve(ctx context.Context, responderID, requestID uint64, accepted bool) (*model.SwapRequest, error) {
	var (
		sr            *model.SwapRequest
		requesterSlot *model.Slot
		targetSlot    *model.Slot
	)
	err := e.runInTx(ctx, func(tx *sql.Tx) error {
		var err error
		sr, err = e.requests.GetByIDTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if sr.TargetUserID != responderID {
			return repository.ErrForbidden
		}
		if sr.Status != model.SwapStatusPending {
			return repository.ErrInvalidState
		}
		requesterSlot, targetSlot, err = e.lockSlotPair(ctx, tx, sr.RequesterSlotID, sr.TargetSlotID)
		if err != nil {
			return err
		}

		if accepted {
			// Exchange ownership and settle both slots as BUSY.
			if err := e.slots.SetOwnerAndStatusTx(ctx, tx, requesterSlot.ID, targetSlot.UserID, model.SlotStatusBusy); err != nil {
				return err
			}
			if err := e.slots.SetOwnerAndStatusTx(ctx, tx, targetSlot.ID, requesterSlot.UserID, model.SlotStatusBusy); err != nil {
				return err
			}
			sr.Status = model.SwapStatusAccepted
		} else {
			// Ownership unchanged; both slots become offerable again.
			if err := e.slots.SetStatusTx(ctx, tx, requesterSlot.ID, model.SlotStatusSwappable); err != nil {
				return err
			}
			if err := e.slots.SetStatusTx(ctx, tx, targetSlot.ID, model.SlotStatusSwappable); err != nil {
				return err
			}
			sr.Status = model.SwapStatusRejected
		}
		return e.requests.UpdateStatusTx(ctx, tx, sr.ID, sr.Status)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("swap request resolved",
		zap.Uint64("request_id", sr.ID),
		zap.Uint64("responder_id", responderID),
		zap.String("status", sr.Status))

	if accepted {
		e.dispatcher.SwapRequestAccepted(ctx, sr.RequesterID, sr.ID, requesterSlot.Title, targetSlot.Title)
	} else {
		e.dispatcher.SwapRequestRejected(ctx, sr.RequesterID, sr.ID, requesterSlot.Title, targetSlot.Title)
	}
	return sr, nil
}
