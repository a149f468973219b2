package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestcare/backend/internal/alert/domain"
)

func alertRows(t *testing.T, alerts ...*domain.Alert) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows([]string{
		"id", "session_id", "parent_id", "sitter_id", "type", "severity",
		"title", "message", "status", "viewed_at", "acknowledged_at", "resolved_at", "created_at",
	})
	for _, a := range alerts {
		rows.AddRow(a.ID, a.SessionID, a.ParentID, a.SitterID, string(a.Type), string(a.Severity),
			a.Title, a.Message, string(a.Status), a.ViewedAt, a.AcknowledgedAt, a.ResolvedAt, a.CreatedAt)
	}
	return rows
}

func TestAlertRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs("alert-1", "sess-1", "parent-1", sqlmock.AnyArg(), "cry_detection",
			"medium", "Crying detected", "Loud crying picked up by the sitter device", "new", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Create(context.Background(), &domain.Alert{
		ID:        "alert-1",
		SessionID: "sess-1",
		ParentID:  "parent-1",
		SitterID:  "sitter-1",
		Type:      domain.TypeCryDetection,
		Severity:  domain.SeverityMedium,
		Title:     "Crying detected",
		Message:   "Loud crying picked up by the sitter device",
		Status:    domain.StatusNew,
		CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE id").
		WithArgs("missing").
		WillReturnRows(alertRows(t))

	a, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryLastOfType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()
	stored := &domain.Alert{
		ID:        "alert-2",
		SessionID: "sess-1",
		ParentID:  "parent-1",
		SitterID:  "sitter-1",
		Type:      domain.TypeCryDetection,
		Severity:  domain.SeverityMedium,
		Title:     "Crying detected",
		Message:   "again",
		Status:    domain.StatusNew,
		CreatedAt: now,
	}

	mock.ExpectQuery("SELECT (.+) FROM alerts\\s+WHERE session_id = \\$1 AND type = \\$2").
		WithArgs("sess-1", "cry_detection").
		WillReturnRows(alertRows(t, stored))

	a, err := repo.LastOfType(context.Background(), "sess-1", domain.TypeCryDetection)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "alert-2", a.ID)
	assert.Equal(t, domain.TypeCryDetection, a.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryListBySessionFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()
	stored := &domain.Alert{
		ID:        "alert-3",
		SessionID: "sess-1",
		ParentID:  "parent-1",
		Type:      domain.TypeGPSAnomaly,
		Severity:  domain.SeverityHigh,
		Title:     "Sitter far from expected location",
		Message:   "moved 4.2 km",
		Status:    domain.StatusNew,
		CreatedAt: now,
	}

	status := domain.StatusNew
	severity := domain.SeverityHigh
	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE (.+) session_id = \\$1 AND status = \\$2 AND severity = \\$3").
		WithArgs("sess-1", "new", "high", 100).
		WillReturnRows(alertRows(t, stored))

	out, err := repo.ListBySession(context.Background(), "sess-1", Filters{Status: &status, Severity: &severity}, 100)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "alert-3", out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryListByParent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()
	stored := &domain.Alert{
		ID:        "alert-4",
		SessionID: "sess-2",
		ParentID:  "parent-1",
		Type:      domain.TypeCryDetection,
		Severity:  domain.SeverityMedium,
		Title:     "Crying detected",
		Message:   "score 0.91",
		Status:    domain.StatusNew,
		CreatedAt: now,
	}

	sessionID := "sess-2"
	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE (.+) parent_id = \\$1 AND session_id = \\$2").
		WithArgs("parent-1", "sess-2", 100).
		WillReturnRows(alertRows(t, stored))

	out, err := repo.ListByParent(context.Background(), "parent-1", Filters{SessionID: &sessionID}, 100)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "alert-4", out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryListAllIsUnscoped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	status := domain.StatusNew
	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE (.+) status = \\$1").
		WithArgs("new", 100).
		WillReturnRows(alertRows(t))

	out, err := repo.ListAll(context.Background(), Filters{Status: &status}, 100)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositorySetStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE alerts SET status = \\$2, acknowledged_at = \\$3 WHERE id = \\$1 AND status IN").
		WithArgs("alert-1", "acknowledged", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.SetStatus(context.Background(), "alert-1", domain.StatusAcknowledged, at)
	require.NoError(t, err)
	assert.True(t, updated)

	// A resolved alert matches no prior status and leaves the row untouched.
	mock.ExpectExec("UPDATE alerts SET status = \\$2, viewed_at = \\$3").
		WithArgs("alert-1", "viewed", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err = repo.SetStatus(context.Background(), "alert-1", domain.StatusViewed, at)
	require.NoError(t, err)
	assert.False(t, updated)

	_, err = repo.SetStatus(context.Background(), "alert-1", domain.StatusNew, at)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
