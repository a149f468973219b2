package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestcare/backend/internal/session/domain"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresRepository(db)
}

func sessionRows(id string, status string, sitterID any) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "parent_id", "sitter_id", "child_ids", "status", "start_time", "end_time", "time_slots",
		"search_scope", "max_distance_km", "location", "gps_tracking_enabled", "cry_detection_enabled",
		"monitoring_enabled", "last_location_update", "last_cry_detection", "cry_alerts_count",
		"hourly_rate", "total_amount", "payment_status", "notes", "completed_at", "cancelled_at",
		"cancelled_by", "cancellation_reason", "cancellation_fee_eligible", "created_at", "updated_at",
	}).AddRow(
		id, "parent-1", sitterID, []byte(`["child-1"]`), status, now, nil, []byte(`[]`),
		"nearby", 10.0, []byte(`{"address":"12 Lake Rd","city":"Colombo"}`), false, false,
		false, nil, nil, 0,
		12.5, nil, nil, nil, nil, nil,
		nil, nil, false, now, now,
	)
}

func TestGetByID_Found(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(sessionRows("sess-1", "requested", nil))

	s, err := repo.GetByID(context.Background(), "sess-1")

	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, domain.StatusRequested, s.Status)
	assert.Equal(t, "", s.SitterID)
	assert.Equal(t, []string{"child-1"}, s.ChildIDs)
	assert.Equal(t, "Colombo", s.Location.City)
	require.NotNil(t, s.MaxDistanceKm)
	assert.Equal(t, 10.0, *s.MaxDistanceKm)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	s, err := repo.GetByID(context.Background(), "missing")

	require.NoError(t, err)
	assert.Nil(t, s)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBySitter_FirstWriterWins(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE sessions`).
		WithArgs("sess-1", "sitter-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.ClaimBySitter(context.Background(), "sess-1", "sitter-1", now)

	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBySitter_SecondWriterLoses(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE sessions`).
		WithArgs("sess-1", "sitter-2", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ClaimBySitter(context.Background(), "sess-1", "sitter-2", now)

	require.NoError(t, err)
	assert.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_ClearsMonitoringFlags(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE sessions\s+SET status = 'completed'`).
		WithArgs("sess-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	done, err := repo.Complete(context.Background(), "sess-1", now)

	require.NoError(t, err)
	assert.True(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListOpen(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM sessions\s+WHERE status = 'requested' AND sitter_id IS NULL AND search_scope <> 'invite'`).
		WithArgs(100).
		WillReturnRows(sessionRows("sess-1", "requested", nil))

	sessions, err := repo.ListOpen(context.Background(), 100)

	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Open())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRequest_GatedOnRequestedStatus(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	s := &domain.Session{
		ID:          "sess-1",
		ParentID:    "parent-1",
		ChildIDs:    []string{"child-1"},
		Status:      domain.StatusRequested,
		StartTime:   time.Now().UTC(),
		SearchScope: domain.ScopeNationwide,
		Notes:       "bring snacks",
	}

	mock.ExpectExec(`(?s)UPDATE sessions\s+SET sitter_id = \$2,.+WHERE id = \$1 AND status = 'requested'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.UpdateRequest(context.Background(), s, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	// A claim that landed first leaves zero matching rows.
	mock.ExpectExec(`(?s)UPDATE sessions\s+SET sitter_id = \$2,.+WHERE id = \$1 AND status = 'requested'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.UpdateRequest(context.Background(), s, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetGPSTracking_LeavesCryColumnAlone(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE sessions\s+SET gps_tracking_enabled = \$2,\s+monitoring_enabled = \$2 OR cry_detection_enabled`).
		WithArgs("sess-1", true, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetGPSTracking(context.Background(), "sess-1", true, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCryDetection_LeavesGPSColumnAlone(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE sessions\s+SET cry_detection_enabled = \$2,\s+monitoring_enabled = gps_tracking_enabled OR \$2`).
		WithArgs("sess-1", false, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetCryDetection(context.Background(), "sess-1", false, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCryDetection(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE sessions\s+SET cry_alerts_count = cry_alerts_count \+ 1`).
		WithArgs("sess-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordCryDetection(context.Background(), "sess-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}
