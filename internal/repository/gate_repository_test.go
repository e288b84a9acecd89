package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempora/schedgate/internal/model"
)

func gateRows(t *testing.T, g model.Gate) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows([]string{
		"id", "gate_token", "action_id", "display_mode", "preview_data",
		"status", "expires_at", "created_at", "resolved_at", "cancel_reason",
	})
	var preview any
	if len(g.PreviewData) > 0 {
		preview = string(g.PreviewData)
	}
	var resolved any
	if g.ResolvedAt != nil {
		resolved = *g.ResolvedAt
	}
	var reason any
	if g.CancelReason != "" {
		reason = g.CancelReason
	}
	rows.AddRow(g.ID, g.GateToken, g.ActionID, g.DisplayMode, preview,
		string(g.Status), g.ExpiresAt, g.CreatedAt, resolved, reason)
	return rows
}

func TestGetByToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expires := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	want := model.Gate{
		ID:          3,
		GateToken:   "gt_abc",
		ActionID:    "act_9",
		DisplayMode: "timeline",
		PreviewData: []byte(`{"blocks":[]}`),
		Status:      model.GateStatusPending,
		ExpiresAt:   expires,
		CreatedAt:   expires.Add(-time.Hour),
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM gates WHERE gate_token = ?")).
		WithArgs("gt_abc").
		WillReturnRows(gateRows(t, want))

	repo := NewGateRepo(db)
	got, err := repo.GetByToken(context.Background(), "gt_abc")
	require.NoError(t, err)
	assert.Equal(t, want.GateToken, got.GateToken)
	assert.Equal(t, want.Status, got.Status)
	assert.JSONEq(t, string(want.PreviewData), string(got.PreviewData))
	assert.Nil(t, got.ResolvedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByTokenNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM gates WHERE gate_token = ?")).
		WithArgs("gt_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewGateRepo(db)
	_, err = repo.GetByToken(context.Background(), "gt_missing")
	assert.ErrorIs(t, err, ErrGateNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireDueTxFlipsOverdueGates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT gate_token, action_id FROM gates WHERE status = 'PENDING' AND expires_at <= UTC_TIMESTAMP() FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"gate_token", "action_id"}).
			AddRow("gt_1", "act_1").
			AddRow("gt_2", "act_2"))
	// The flip targets the tokens the locking SELECT returned, so a gate
	// crossing expiry in between is never updated without an event.
	mock.ExpectExec(regexp.QuoteMeta("WHERE gate_token IN (?, ?)")).
		WithArgs("gt_1", "gt_2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	repo := NewGateRepo(db)
	tx, err := db.Begin()
	require.NoError(t, err)
	due, err := repo.ExpireDueTx(context.Background(), tx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, due, 2)
	assert.Equal(t, "gt_1", due[0].GateToken)
	assert.Equal(t, model.GateStatusExpired, due[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireDueTxNothingDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT gate_token, action_id FROM gates")).
		WillReturnRows(sqlmock.NewRows([]string{"gate_token", "action_id"}))
	mock.ExpectCommit()

	repo := NewGateRepo(db)
	tx, err := db.Begin()
	require.NoError(t, err)
	due, err := repo.ExpireDueTx(context.Background(), tx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Empty(t, due)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvableTx(t *testing.T) {
	cases := []struct {
		status  string
		wantErr error
	}{
		{"PENDING", nil},
		{"EXPIRED", ErrGateExpired},
		{"CONFIRMED", ErrGateResolved},
		{"CANCELLED", ErrGateResolved},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			expires := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
			g := model.Gate{
				ID:        5,
				GateToken: "gt_1",
				ActionID:  "act_1",
				Status:    model.GateStatus(tc.status),
				ExpiresAt: expires,
				CreatedAt: expires.Add(-time.Hour),
			}
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
				WithArgs("gt_1").
				WillReturnRows(gateRows(t, g))

			repo := NewGateRepo(db)
			tx, err := db.Begin()
			require.NoError(t, err)
			got, err := repo.ResolvableTx(context.Background(), tx, "gt_1")
			if tc.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			// The gate is returned even on error so callers can
			// derive detail text from its status.
			assert.Equal(t, model.GateStatus(tc.status), got.Status)
		})
	}
}

func TestModificationsByGate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM gate_modifications WHERE gate_id = ?")).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"timeblock_id", "new_start_time", "new_duration_minutes"}).
			AddRow("tb_1", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), nil).
			AddRow("tb_2", nil, 45))

	repo := NewGateRepo(db)
	mods, err := repo.ModificationsByGate(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, "tb_1", mods[0].TimeblockID)
	assert.Equal(t, "2025-01-01T10:00:00Z", mods[0].NewStartTime)
	assert.Zero(t, mods[0].NewDurationMinutes)
	assert.Equal(t, 45, mods[1].NewDurationMinutes)
	assert.Empty(t, mods[1].NewStartTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmTxRecordsModifications(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE gates SET status = 'CONFIRMED', resolved_at = UTC_TIMESTAMP() WHERE id = ?")).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO gate_modifications")).
		WithArgs(uint64(5), "tb_1", "2025-01-01 10:00:00", nil,
			uint64(5), "tb_2", nil, 45).
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectCommit()

	repo := NewGateRepo(db)
	tx, err := db.Begin()
	require.NoError(t, err)
	mods := []model.Modification{
		{TimeblockID: "tb_1", NewStartTime: "2025-01-01T10:00:00Z"},
		{TimeblockID: "tb_2", NewDurationMinutes: 45},
	}
	require.NoError(t, repo.ConfirmTx(context.Background(), tx, 5, mods))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmTxWithoutModifications(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE gates SET status = 'CONFIRMED'")).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewGateRepo(db)
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.ConfirmTx(context.Background(), tx, 5, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE gates SET status = 'CANCELLED'")).
		WithArgs("changed plans", uint64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewGateRepo(db)
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.CancelTx(context.Background(), tx, 8, "changed plans"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFillsGeneratedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO gates")).
		WillReturnResult(sqlmock.NewResult(42, 1))

	repo := NewGateRepo(db)
	g := model.Gate{
		GateToken: "gt_new",
		ActionID:  "act_1",
		ExpiresAt: time.Now().UTC().Add(30 * time.Minute),
	}
	require.NoError(t, repo.Create(context.Background(), &g))
	assert.Equal(t, uint64(42), g.ID)
	assert.Equal(t, model.GateStatusPending, g.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateGateToken(t *testing.T) {
	a, err := GenerateGateToken()
	require.NoError(t, err)
	b, err := GenerateGateToken()
	require.NoError(t, err)

	assert.True(t, len(a) == len("gt_")+64)
	assert.Contains(t, a, "gt_")
	assert.NotEqual(t, a, b)
}
