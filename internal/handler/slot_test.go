package handler

import (
	"fmt"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotswap/slot-swap-api/internal/model"
	"github.com/slotswap/slot-swap-api/internal/repository"
)

func newSlotHandler(t *testing.T) (*SlotHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSlotHandler(repository.NewSlotRepo(db)), mock
}

func TestSlotCreateValidation(t *testing.T) {
	h, _ := newSlotHandler(t)
	start := time.Now().UTC().Format(time.RFC3339)
	end := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	cases := []struct {
		name string
		body string
	}{
		{"missing title", fmt.Sprintf(`{"starts_at": %q, "ends_at": %q}`, start, end)},
		{"missing times", `{"title": "standup"}`},
		{"end before start", fmt.Sprintf(`{"title": "standup", "starts_at": %q, "ends_at": %q}`, end, start)},
		{"end equals start", fmt.Sprintf(`{"title": "standup", "starts_at": %q, "ends_at": %q}`, start, start)},
		{"pending status rejected", fmt.Sprintf(`{"title": "standup", "starts_at": %q, "ends_at": %q, "status": "SWAP_PENDING"}`, start, end)},
		{"unknown status", fmt.Sprintf(`{"title": "standup", "starts_at": %q, "ends_at": %q, "status": "FREE"}`, start, end)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := authedContext(http.MethodPost, "/v1/slots", tc.body, 7)
			require.NoError(t, h.Create(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSlotCreateDefaultsToBusy(t *testing.T) {
	h, mock := newSlotHandler(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slots")).
		WithArgs(uint64(7), "standup", "", sqlmock.AnyArg(), sqlmock.AnyArg(),
			model.SlotStatusBusy, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	start := time.Now().UTC().Format(time.RFC3339)
	end := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	body := fmt.Sprintf(`{"title": "standup", "starts_at": %q, "ends_at": %q}`, start, end)

	c, rec := authedContext(http.MethodPost, "/v1/slots", body, 7)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), model.SlotStatusBusy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotUpdateRejectsPendingSlot(t *testing.T) {
	h, mock := newSlotHandler(t)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM slots WHERE id = ? AND user_id = ?")).
		WithArgs(uint64(4), uint64(7)).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "user_id", "title", "description", "starts_at", "ends_at", "status", "created_at", "updated_at"}).
			AddRow(4, 7, "standup", "", now, now.Add(time.Hour), model.SlotStatusSwapPending, now, now))

	start := now.Format(time.RFC3339)
	end := now.Add(time.Hour).Format(time.RFC3339)
	body := fmt.Sprintf(`{"title": "standup", "starts_at": %q, "ends_at": %q, "status": "BUSY"}`, start, end)

	c, rec := authedContext(http.MethodPut, "/v1/slots/4", body, 7)
	c.SetParamNames("id")
	c.SetParamValues("4")
	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotUpdateLostRaceMapsTo409(t *testing.T) {
	h, mock := newSlotHandler(t)

	// The read sees an editable slot, but a swap locks it before the
	// UPDATE lands; the guarded write matches no rows.
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM slots WHERE id = ? AND user_id = ?")).
		WithArgs(uint64(4), uint64(7)).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "user_id", "title", "description", "starts_at", "ends_at", "status", "created_at", "updated_at"}).
			AddRow(4, 7, "standup", "", now, now.Add(time.Hour), model.SlotStatusBusy, now, now))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND user_id = ? AND status <> ?")).
		WithArgs("standup", "", sqlmock.AnyArg(), sqlmock.AnyArg(), model.SlotStatusBusy,
			sqlmock.AnyArg(), uint64(4), uint64(7), model.SlotStatusSwapPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	start := now.Format(time.RFC3339)
	end := now.Add(time.Hour).Format(time.RFC3339)
	body := fmt.Sprintf(`{"title": "standup", "starts_at": %q, "ends_at": %q, "status": "BUSY"}`, start, end)

	c, rec := authedContext(http.MethodPut, "/v1/slots/4", body, 7)
	c.SetParamNames("id")
	c.SetParamValues("4")
	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotDeleteLockedMapsTo409(t *testing.T) {
	h, mock := newSlotHandler(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM slots WHERE id = ? AND user_id = ?")).
		WithArgs(uint64(4), uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(model.SlotStatusSwapPending))

	c, rec := authedContext(http.MethodDelete, "/v1/slots/4", "", 7)
	c.SetParamNames("id")
	c.SetParamValues("4")
	require.NoError(t, h.Delete(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotGetOtherOwnerIs404(t *testing.T) {
	h, mock := newSlotHandler(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM slots WHERE id = ? AND user_id = ?")).
		WithArgs(uint64(4), uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	c, rec := authedContext(http.MethodGet, "/v1/slots/4", "", 7)
	c.SetParamNames("id")
	c.SetParamValues("4")
	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
