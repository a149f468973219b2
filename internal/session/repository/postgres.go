package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nestcare/backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, parent_id, sitter_id, child_ids, status, start_time, end_time, time_slots,
	search_scope, max_distance_km, location, gps_tracking_enabled, cry_detection_enabled,
	monitoring_enabled, last_location_update, last_cry_detection, cry_alerts_count,
	hourly_rate, total_amount, payment_status, notes, completed_at, cancelled_at,
	cancelled_by, cancellation_reason, cancellation_fee_eligible, created_at, updated_at`

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	childIDs, err := json.Marshal(s.ChildIDs)
	if err != nil {
		return fmt.Errorf("marshal child ids: %w", err)
	}
	timeSlots, err := json.Marshal(s.TimeSlots)
	if err != nil {
		return fmt.Errorf("marshal time slots: %w", err)
	}
	location, err := json.Marshal(s.Location)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, parent_id, sitter_id, child_ids, status, start_time, time_slots,
			search_scope, max_distance_km, location, hourly_rate, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		s.ID, s.ParentID, nullString(s.SitterID), childIDs, string(s.Status), s.StartTime,
		timeSlots, string(s.SearchScope), nullFloat(s.MaxDistanceKm), location,
		nullFloat(s.HourlyRate), nullString(s.Notes), s.CreatedAt,
	)
	return err
}

// UpdateRequest rewrites a request's editable fields while it is still in
// requested status. The status condition is the guard against a concurrent
// claim; UpdateRequest reports whether a row was changed.
func (r *PostgresRepository) UpdateRequest(ctx context.Context, s *domain.Session, now time.Time) (bool, error) {
	childIDs, err := json.Marshal(s.ChildIDs)
	if err != nil {
		return false, fmt.Errorf("marshal child ids: %w", err)
	}
	timeSlots, err := json.Marshal(s.TimeSlots)
	if err != nil {
		return false, fmt.Errorf("marshal time slots: %w", err)
	}
	location, err := json.Marshal(s.Location)
	if err != nil {
		return false, fmt.Errorf("marshal location: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET sitter_id = $2, child_ids = $3, start_time = $4, time_slots = $5,
		    search_scope = $6, max_distance_km = $7, location = $8,
		    hourly_rate = $9, notes = $10, updated_at = $11
		WHERE id = $1 AND status = 'requested'`,
		s.ID, nullString(s.SitterID), childIDs, s.StartTime, timeSlots,
		string(s.SearchScope), nullFloat(s.MaxDistanceKm), location,
		nullFloat(s.HourlyRate), nullString(s.Notes), now,
	)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListOpen returns unclaimed requests whose scope is not invite, newest first with
// ties broken by id. Geographic filtering happens in the dispatcher.
func (r *PostgresRepository) ListOpen(ctx context.Context, limit int) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = 'requested' AND sitter_id IS NULL AND search_scope <> 'invite'
		ORDER BY created_at DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListByParent returns the parent's sessions, optionally filtered by status, start_time desc.
func (r *PostgresRepository) ListByParent(ctx context.Context, parentID string, status *domain.Status, limit int) ([]*domain.Session, error) {
	return r.listByParty(ctx, "parent_id", parentID, status, limit)
}

// ListBySitter returns the sitter's sessions, including invite-scope requests
// addressed to them, optionally filtered by status, start_time desc.
func (r *PostgresRepository) ListBySitter(ctx context.Context, sitterID string, status *domain.Status, limit int) ([]*domain.Session, error) {
	return r.listByParty(ctx, "sitter_id", sitterID, status, limit)
}

// ListAll returns sessions across all parties (admin view), start_time desc.
func (r *PostgresRepository) ListAll(ctx context.Context, status *domain.Status, limit int) ([]*domain.Session, error) {
	if status != nil {
		rows, err := r.db.QueryContext(ctx, `
			SELECT `+sessionColumns+` FROM sessions
			WHERE status = $1 ORDER BY start_time DESC LIMIT $2`, string(*status), limit)
		if err != nil {
			return nil, err
		}
		return collectSessions(rows)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions ORDER BY start_time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PostgresRepository) listByParty(ctx context.Context, column, id string, status *domain.Status, limit int) ([]*domain.Session, error) {
	if status != nil {
		rows, err := r.db.QueryContext(ctx, `
			SELECT `+sessionColumns+` FROM sessions
			WHERE `+column+` = $1 AND status = $2 ORDER BY start_time DESC LIMIT $3`,
			id, string(*status), limit)
		if err != nil {
			return nil, err
		}
		return collectSessions(rows)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE `+column+` = $1 ORDER BY start_time DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ClaimBySitter performs the conditional accept update. The WHERE clause is the
// single-writer guard: the row binds at most once, and an invite-scope request
// binds only to the invited sitter.
func (r *PostgresRepository) ClaimBySitter(ctx context.Context, id, sitterID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET sitter_id = $2, status = 'accepted', updated_at = $3
		WHERE id = $1 AND status = 'requested' AND (sitter_id IS NULL OR sitter_id = $2)`,
		id, sitterID, now)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// Start moves an accepted session to active.
func (r *PostgresRepository) Start(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'active', updated_at = $2
		WHERE id = $1 AND status = 'accepted'`, id, now)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// Complete terminalizes an active session and clears all monitoring flags in the
// same write, so no flag can remain true on a terminal session.
func (r *PostgresRepository) Complete(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = 'completed', end_time = $2, completed_at = $2,
		    gps_tracking_enabled = FALSE, cry_detection_enabled = FALSE,
		    monitoring_enabled = FALSE, updated_at = $2
		WHERE id = $1 AND status = 'active'`, id, now)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// Cancel terminalizes a non-terminal session, recording who cancelled and why.
func (r *PostgresRepository) Cancel(ctx context.Context, id string, by domain.CancelParty, reason string, feeEligible bool, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = 'cancelled', end_time = $4, cancelled_at = $4, cancelled_by = $2,
		    cancellation_reason = $3, cancellation_fee_eligible = $5,
		    gps_tracking_enabled = FALSE, cry_detection_enabled = FALSE,
		    monitoring_enabled = FALSE, updated_at = $4
		WHERE id = $1 AND status IN ('requested', 'accepted', 'active')`,
		id, string(by), reason, now, feeEligible)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// SetGPSTracking writes the GPS toggle. monitoring_enabled is derived in SQL
// from the stored cry column, so a concurrent cry toggle is never overwritten.
func (r *PostgresRepository) SetGPSTracking(ctx context.Context, id string, enabled bool, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET gps_tracking_enabled = $2,
		    monitoring_enabled = $2 OR cry_detection_enabled, updated_at = $3
		WHERE id = $1`, id, enabled, now)
	return err
}

// SetCryDetection writes the cry-detection toggle, deriving monitoring_enabled
// from the stored GPS column.
func (r *PostgresRepository) SetCryDetection(ctx context.Context, id string, enabled bool, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET cry_detection_enabled = $2,
		    monitoring_enabled = gps_tracking_enabled OR $2, updated_at = $3
		WHERE id = $1`, id, enabled, now)
	return err
}

// RecordLocationPing sets the session's last location-update timestamp.
func (r *PostgresRepository) RecordLocationPing(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET last_location_update = $2, updated_at = $2 WHERE id = $1`, id, at)
	return err
}

// RecordCryDetection bumps the cry counter and last-detection timestamp.
func (r *PostgresRepository) RecordCryDetection(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET cry_alerts_count = cry_alerts_count + 1, last_cry_detection = $2, updated_at = $2
		WHERE id = $1`, id, at)
	return err
}

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s            domain.Session
		sitterID     sql.NullString
		childIDs     []byte
		timeSlots    []byte
		location     []byte
		endTime      sql.NullTime
		maxDistance  sql.NullFloat64
		lastLocation sql.NullTime
		lastCry      sql.NullTime
		hourlyRate   sql.NullFloat64
		totalAmount  sql.NullFloat64
		payment      sql.NullString
		notes        sql.NullString
		completedAt  sql.NullTime
		cancelledAt  sql.NullTime
		cancelledBy  sql.NullString
		cancelReason sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.ParentID, &sitterID, &childIDs, &s.Status, &s.StartTime, &endTime, &timeSlots,
		&s.SearchScope, &maxDistance, &location, &s.GPSTrackingEnabled, &s.CryDetectionEnabled,
		&s.MonitoringEnabled, &lastLocation, &lastCry, &s.CryAlertsCount,
		&hourlyRate, &totalAmount, &payment, &notes, &completedAt, &cancelledAt,
		&cancelledBy, &cancelReason, &s.CancellationFeeEligible, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(childIDs) > 0 {
		if err := json.Unmarshal(childIDs, &s.ChildIDs); err != nil {
			return nil, fmt.Errorf("unmarshal child ids: %w", err)
		}
	}
	if len(timeSlots) > 0 {
		if err := json.Unmarshal(timeSlots, &s.TimeSlots); err != nil {
			return nil, fmt.Errorf("unmarshal time slots: %w", err)
		}
	}
	if len(location) > 0 {
		if err := json.Unmarshal(location, &s.Location); err != nil {
			return nil, fmt.Errorf("unmarshal location: %w", err)
		}
	}

	s.SitterID = sitterID.String
	s.EndTime = nullTimeToPtr(endTime)
	s.MaxDistanceKm = nullFloatToPtr(maxDistance)
	s.LastLocationUpdate = nullTimeToPtr(lastLocation)
	s.LastCryDetection = nullTimeToPtr(lastCry)
	s.HourlyRate = nullFloatToPtr(hourlyRate)
	s.TotalAmount = nullFloatToPtr(totalAmount)
	s.PaymentStatus = payment.String
	s.Notes = notes.String
	s.CompletedAt = nullTimeToPtr(completedAt)
	s.CancelledAt = nullTimeToPtr(cancelledAt)
	s.CancelledBy = domain.CancelParty(cancelledBy.String)
	s.CancellationReason = cancelReason.String
	return &s, nil
}

func collectSessions(rows *sql.Rows) ([]*domain.Session, error) {
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

func nullFloatToPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}
