package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestcare/backend/internal/tracking/domain"
)

func sampleRows(samples ...*domain.Sample) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "session_id", "latitude", "longitude", "accuracy", "altitude", "speed", "heading", "recorded_at",
	})
	for _, s := range samples {
		rows.AddRow(s.ID, s.SessionID, s.Latitude, s.Longitude,
			s.AccuracyM, s.AltitudeM, s.SpeedMps, s.Heading, s.RecordedAt)
	}
	return rows
}

func TestSampleRepositoryInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()
	accuracy := 12.5

	mock.ExpectExec("INSERT INTO location_samples").
		WithArgs("sample-1", "sess-1", 6.9271, 79.8612,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Insert(context.Background(), &domain.Sample{
		ID:         "sample-1",
		SessionID:  "sess-1",
		Latitude:   6.9271,
		Longitude:  79.8612,
		AccuracyM:  &accuracy,
		RecordedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRepositoryListBySession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now().UTC()
	newer := &domain.Sample{ID: "s2", SessionID: "sess-1", Latitude: 6.93, Longitude: 79.87, RecordedAt: now}
	older := &domain.Sample{ID: "s1", SessionID: "sess-1", Latitude: 6.92, Longitude: 79.86, RecordedAt: now.Add(-30 * time.Second)}

	mock.ExpectQuery("SELECT (.+) FROM location_samples\\s+WHERE session_id = \\$1\\s+ORDER BY recorded_at DESC LIMIT \\$2").
		WithArgs("sess-1", 1000).
		WillReturnRows(sampleRows(newer, older))

	out, err := repo.ListBySession(context.Background(), "sess-1", 1000)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "s2", out[0].ID)
	assert.Equal(t, "s1", out[1].ID)
	assert.Nil(t, out[0].AccuracyM)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRepositoryLatestNone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM location_samples").
		WithArgs("sess-1").
		WillReturnRows(sampleRows())

	s, err := repo.Latest(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, mock.ExpectationsWereMet())
}
