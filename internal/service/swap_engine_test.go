package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotswap/slot-swap-api/internal/model"
	"github.com/slotswap/slot-swap-api/internal/repository"
)

// recordingDispatcher captures dispatched events for assertions.
type recordingDispatcher struct {
	created      []uint64
	createdNames []string
	accepted     []uint64
	rejected     []uint64
}

func (d *recordingDispatcher) SwapRequestCreated(_ context.Context, _, requestID uint64, requesterName, _, _ string) {
	d.created = append(d.created, requestID)
	d.createdNames = append(d.createdNames, requesterName)
}
func (d *recordingDispatcher) SwapRequestAccepted(_ context.Context, _, requestID uint64, _, _ string) {
	d.accepted = append(d.accepted, requestID)
}
func (d *recordingDispatcher) SwapRequestRejected(_ context.Context, _, requestID uint64, _, _ string) {
	d.rejected = append(d.rejected, requestID)
}

func newTestEngine(t *testing.T) (*SwapEngine, sqlmock.Sqlmock, *recordingDispatcher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	disp := &recordingDispatcher{}
	eng := NewSwapEngine(db,
		repository.NewSlotRepo(db),
		repository.NewSwapRequestRepo(db),
		repository.NewUserRepo(db),
		disp,
		zap.NewNop())
	return eng, mock, disp
}

var (
	slotCols        = []string{"id", "user_id", "title", "description", "starts_at", "ends_at", "status", "created_at", "updated_at"}
	userCols        = []string{"id", "full_name", "email", "password_hash", "is_active", "created_at", "updated_at"}
	swapRequestCols = []string{"id", "requester_id", "requester_slot_id", "target_user_id", "target_slot_id", "status", "created_at"}
)

func slotRow(id, userID uint64, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(slotCols).
		AddRow(id, userID, "slot", "desc", now, now.Add(time.Hour), status, now, now)
}

func userRow(id uint64, name, email string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(userCols).
		AddRow(id, name, email, "hash", true, now, now)
}

func expectUserLookup(mock sqlmock.Sqlmock, id uint64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id,full_name,email,password_hash,is_active,created_at,updated_at FROM users WHERE id=? LIMIT 1")).
		WithArgs(id).
		WillReturnRows(userRow(id, "Dana", "dana@example.com"))
}

func expectSlotLock(mock sqlmock.Sqlmock, rows *sqlmock.Rows, id uint64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, title, description, starts_at, ends_at, status, created_at, updated_at FROM slots WHERE id = ? FOR UPDATE")).
		WithArgs(id).
		WillReturnRows(rows)
}

func expectPendingCheck(mock sqlmock.Sqlmock, slotA, slotB uint64, exists bool) {
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(model.SwapStatusPending, slotA, slotB, slotA, slotB).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func expectMarkPending(mock sqlmock.Sqlmock, id uint64, won bool) {
	affected := int64(0)
	if won {
		affected = 1
	}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET status = ?, updated_at = ? WHERE id = ? AND status = ?")).
		WithArgs(model.SlotStatusSwapPending, sqlmock.AnyArg(), id, model.SlotStatusSwappable).
		WillReturnResult(sqlmock.NewResult(0, affected))
}

func TestInitiateSuccess(t *testing.T) {
	eng, mock, disp := newTestEngine(t)

	// requester 10 offers slot 2 against slot 1 owned by user 20;
	// locks are taken in ascending id order.
	mock.ExpectBegin()
	expectSlotLock(mock, slotRow(1, 20, model.SlotStatusSwappable), 1)
	expectSlotLock(mock, slotRow(2, 10, model.SlotStatusSwappable), 2)
	expectPendingCheck(mock, 2, 1, false)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO swap_requests")).
		WithArgs(uint64(10), uint64(2), uint64(20), uint64(1), model.SwapStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(77, 1))
	expectMarkPending(mock, 2, true)
	expectMarkPending(mock, 1, true)
	mock.ExpectCommit()
	// requester name resolved after commit, for the notification only
	expectUserLookup(mock, 10)

	sr, err := eng.Initiate(context.Background(), 10, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), sr.ID)
	assert.Equal(t, uint64(10), sr.RequesterID)
	assert.Equal(t, uint64(20), sr.TargetUserID)
	assert.Equal(t, model.SwapStatusPending, sr.Status)
	assert.Equal(t, []uint64{77}, disp.created)
	assert.Equal(t, []string{"Dana"}, disp.createdNames)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateSucceedsWhenRequesterLookupFails(t *testing.T) {
	eng, mock, disp := newTestEngine(t)

	mock.ExpectBegin()
	expectSlotLock(mock, slotRow(1, 20, model.SlotStatusSwappable), 1)
	expectSlotLock(mock, slotRow(2, 10, model.SlotStatusSwappable), 2)
	expectPendingCheck(mock, 2, 1, false)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO swap_requests")).
		WithArgs(uint64(10), uint64(2), uint64(20), uint64(1), model.SwapStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(77, 1))
	expectMarkPending(mock, 2, true)
	expectMarkPending(mock, 1, true)
	mock.ExpectCommit()
	// the committed swap must survive a failed name lookup
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).
		WithArgs(uint64(10)).
		WillReturnRows(sqlmock.NewRows(userCols))

	sr, err := eng.Initiate(context.Background(), 10, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), sr.ID)
	assert.Equal(t, []uint64{77}, disp.created)
	assert.Equal(t, []string{""}, disp.createdNames)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateNotOwner(t *testing.T) {
	eng, mock, disp := newTestEngine(t)

	mock.ExpectBegin()
	// slot 2 belongs to user 30, not the requester
	expectSlotLock(mock, slotRow(1, 20, model.SlotStatusSwappable), 1)
	expectSlotLock(mock, slotRow(2, 30, model.SlotStatusSwappable), 2)
	mock.ExpectRollback()

	_, err := eng.Initiate(context.Background(), 10, 2, 1)
	assert.ErrorIs(t, err, repository.ErrForbidden)
	assert.Empty(t, disp.created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateSlotNotSwappable(t *testing.T) {
	eng, mock, _ := newTestEngine(t)

	mock.ExpectBegin()
	expectSlotLock(mock, slotRow(1, 20, model.SlotStatusSwappable), 1)
	expectSlotLock(mock, slotRow(2, 10, model.SlotStatusBusy), 2)
	mock.ExpectRollback()

	_, err := eng.Initiate(context.Background(), 10, 2, 1)
	assert.ErrorIs(t, err, repository.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateTargetPending(t *testing.T) {
	eng, mock, _ := newTestEngine(t)

	mock.ExpectBegin()
	expectSlotLock(mock, slotRow(1, 20, model.SlotStatusSwapPending), 1)
	expectSlotLock(mock, slotRow(2, 10, model.SlotStatusSwappable), 2)
	mock.ExpectRollback()

	_, err := eng.Initiate(context.Background(), 10, 2, 1)
	assert.ErrorIs(t, err, repository.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateSelfSwap(t *testing.T) {
	eng, mock, _ := newTestEngine(t)

	mock.ExpectBegin()
	expectSlotLock(mock, slotRow(1, 10, model.SlotStatusSwappable), 1)
	expectSlotLock(mock, slotRow(2, 10, model.SlotStatusSwappable), 2)
	mock.ExpectRollback()

	_, err := eng.Initiate(context.Background(), 10, 2, 1)
	assert.ErrorIs(t, err, repository.ErrSelfSwap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateExistingPendingRequest(t *testing.T) {
	eng, mock, _ := newTestEngine(t)

	mock.ExpectBegin()
	expectSlotLock(mock, slotRow(1, 20, model.SlotStatusSwappable), 1)
	expectSlotLock(mock, slotRow(2, 10, model.SlotStatusSwappable), 2)
	expectPendingCheck(mock, 2, 1, true)
	mock.ExpectRollback()

	_, err := eng.Initiate(context.Background(), 10, 2, 1)
	assert.ErrorIs(t, err, repository.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateLostRace(t *testing.T) {
	eng, mock, disp := newTestEngine(t)

	// The conditional update affects zero rows when a concurrent swap
	// claimed the slot first; the whole transaction rolls back.
	mock.ExpectBegin()
	expectSlotLock(mock, slotRow(1, 20, model.SlotStatusSwappable), 1)
	expectSlotLock(mock, slotRow(2, 10, model.SlotStatusSwappable), 2)
	expectPendingCheck(mock, 2, 1, false)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO swap_requests")).
		WithArgs(uint64(10), uint64(2), uint64(20), uint64(1), model.SwapStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(78, 1))
	expectMarkPending(mock, 2, false)
	mock.ExpectRollback()

	_, err := eng.Initiate(context.Background(), 10, 2, 1)
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Empty(t, disp.created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateSlotNotFound(t *testing.T) {
	eng, mock, _ := newTestEngine(t)

	mock.ExpectBegin()
	expectSlotLock(mock, sqlmock.NewRows(slotCols), 1)
	mock.ExpectRollback()

	_, err := eng.Initiate(context.Background(), 10, 2, 1)
	assert.ErrorIs(t, err, repository.ErrSlotNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateDeadlockRetryExhausted(t *testing.T) {
	eng, mock, _ := newTestEngine(t)

	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	for i := 0; i < maxTxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs(uint64(1)).WillReturnError(deadlock)
		mock.ExpectRollback()
	}

	_, err := eng.Initiate(context.Background(), 10, 2, 1)
	assert.ErrorIs(t, err, repository.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectRequestLock(mock sqlmock.Sqlmock, rows *sqlmock.Rows, id uint64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, requester_id, requester_slot_id, target_user_id, target_slot_id, status, created_at FROM swap_requests WHERE id = ? FOR UPDATE")).
		WithArgs(id).
		WillReturnRows(rows)
}

func pendingRequestRow(id, requesterID, requesterSlot, targetUserID, targetSlot uint64) *sqlmock.Rows {
	return sqlmock.NewRows(swapRequestCols).
		AddRow(id, requesterID, requesterSlot, targetUserID, targetSlot, model.SwapStatusPending, time.Now().UTC())
}

func TestResolveAccept(t *testing.T) {
	eng, mock, disp := newTestEngine(t)

	// request 5: user 10 offered slot 1 against slot 2 owned by user 20
	mock.ExpectBegin()
	expectRequestLock(mock, pendingRequestRow(5, 10, 1, 20, 2), 5)
	expectSlotLock(mock, slotRow(1, 10, model.SlotStatusSwapPending), 1)
	expectSlotLock(mock, slotRow(2, 20, model.SlotStatusSwapPending), 2)
	// ownership crosses, both slots settle as BUSY
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET user_id = ?, status = ?, updated_at = ? WHERE id = ?")).
		WithArgs(uint64(20), model.SlotStatusBusy, sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET user_id = ?, status = ?, updated_at = ? WHERE id = ?")).
		WithArgs(uint64(10), model.SlotStatusBusy, sqlmock.AnyArg(), uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE swap_requests SET status = ? WHERE id = ?")).
		WithArgs(model.SwapStatusAccepted, uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sr, err := eng.Resolve(context.Background(), 20, 5, true)
	require.NoError(t, err)
	assert.Equal(t, model.SwapStatusAccepted, sr.Status)
	assert.Equal(t, []uint64{5}, disp.accepted)
	assert.Empty(t, disp.rejected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveReject(t *testing.T) {
	eng, mock, disp := newTestEngine(t)

	mock.ExpectBegin()
	expectRequestLock(mock, pendingRequestRow(5, 10, 1, 20, 2), 5)
	expectSlotLock(mock, slotRow(1, 10, model.SlotStatusSwapPending), 1)
	expectSlotLock(mock, slotRow(2, 20, model.SlotStatusSwapPending), 2)
	// ownership unchanged, both slots offerable again
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET status = ?, updated_at = ? WHERE id = ?")).
		WithArgs(model.SlotStatusSwappable, sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET status = ?, updated_at = ? WHERE id = ?")).
		WithArgs(model.SlotStatusSwappable, sqlmock.AnyArg(), uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE swap_requests SET status = ? WHERE id = ?")).
		WithArgs(model.SwapStatusRejected, uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sr, err := eng.Resolve(context.Background(), 20, 5, false)
	require.NoError(t, err)
	assert.Equal(t, model.SwapStatusRejected, sr.Status)
	assert.Equal(t, []uint64{5}, disp.rejected)
	assert.Empty(t, disp.accepted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveWrongResponder(t *testing.T) {
	eng, mock, _ := newTestEngine(t)

	mock.ExpectBegin()
	expectRequestLock(mock, pendingRequestRow(5, 10, 1, 20, 2), 5)
	mock.ExpectRollback()

	_, err := eng.Resolve(context.Background(), 99, 5, true)
	assert.ErrorIs(t, err, repository.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAlreadyResolved(t *testing.T) {
	eng, mock, disp := newTestEngine(t)

	resolved := sqlmock.NewRows(swapRequestCols).
		AddRow(5, 10, 1, 20, 2, model.SwapStatusAccepted, time.Now().UTC())

	mock.ExpectBegin()
	expectRequestLock(mock, resolved, 5)
	mock.ExpectRollback()

	_, err := eng.Resolve(context.Background(), 20, 5, false)
	assert.ErrorIs(t, err, repository.ErrInvalidState)
	assert.Empty(t, disp.accepted)
	assert.Empty(t, disp.rejected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveRequestNotFound(t *testing.T) {
	eng, mock, _ := newTestEngine(t)

	mock.ExpectBegin()
	expectRequestLock(mock, sqlmock.NewRows(swapRequestCols), 5)
	mock.ExpectRollback()

	_, err := eng.Resolve(context.Background(), 20, 5, true)
	assert.ErrorIs(t, err, repository.ErrSwapRequestNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
