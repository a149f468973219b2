package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"nestcare/backend/internal/tracking/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a sample repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sampleColumns = `id, session_id, latitude, longitude, accuracy, altitude, speed, heading, recorded_at`

// Insert persists one GPS sample.
func (r *PostgresRepository) Insert(ctx context.Context, s *domain.Sample) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO location_samples (id, session_id, latitude, longitude, accuracy, altitude, speed, heading, recorded_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.SessionID, s.Latitude, s.Longitude,
		ptrToNullFloat(s.AccuracyM), ptrToNullFloat(s.AltitudeM),
		ptrToNullFloat(s.SpeedMps), ptrToNullFloat(s.Heading),
		s.RecordedAt, time.Now().UTC(),
	)
	return err
}

// ListBySession returns the session's samples newest first.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.Sample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sampleColumns+` FROM location_samples
		WHERE session_id = $1
		ORDER BY recorded_at DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Latest returns the most recent sample for the session, or nil.
func (r *PostgresRepository) Latest(ctx context.Context, sessionID string) (*domain.Sample, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sampleColumns+` FROM location_samples
		WHERE session_id = $1
		ORDER BY recorded_at DESC LIMIT 1`, sessionID)
	s, err := scanSample(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (*domain.Sample, error) {
	var (
		s        domain.Sample
		accuracy sql.NullFloat64
		altitude sql.NullFloat64
		speed    sql.NullFloat64
		heading  sql.NullFloat64
	)
	err := row.Scan(&s.ID, &s.SessionID, &s.Latitude, &s.Longitude,
		&accuracy, &altitude, &speed, &heading, &s.RecordedAt)
	if err != nil {
		return nil, err
	}
	s.AccuracyM = nullFloatToPtr(accuracy)
	s.AltitudeM = nullFloatToPtr(altitude)
	s.SpeedMps = nullFloatToPtr(speed)
	s.Heading = nullFloatToPtr(heading)
	return &s, nil
}

func ptrToNullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullFloatToPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}
