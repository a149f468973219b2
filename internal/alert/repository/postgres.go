package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nestcare/backend/internal/alert/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an alert repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const alertColumns = `id, session_id, parent_id, sitter_id, type, severity, title, message,
	status, viewed_at, acknowledged_at, resolved_at, created_at`

// Create persists the alert. The alert must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Alert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, session_id, parent_id, sitter_id, type, severity, title, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.SessionID, a.ParentID, nullString(a.SitterID), string(a.Type),
		string(a.Severity), a.Title, a.Message, string(a.Status), a.CreatedAt,
	)
	return err
}

// GetByID returns the alert for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// LastOfType returns the session's most recent alert of the given type, or nil.
func (r *PostgresRepository) LastOfType(ctx context.Context, sessionID string, t domain.Type) (*domain.Alert, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE session_id = $1 AND type = $2
		ORDER BY created_at DESC LIMIT 1`, sessionID, string(t))
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListBySession returns the session's alerts newest first, narrowed by filters.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string, f Filters, limit int) ([]*domain.Alert, error) {
	return r.list(ctx, "session_id", sessionID, f, limit)
}

// ListByParent returns the parent's alerts across all their sessions, newest first.
func (r *PostgresRepository) ListByParent(ctx context.Context, parentID string, f Filters, limit int) ([]*domain.Alert, error) {
	return r.list(ctx, "parent_id", parentID, f, limit)
}

// ListBySitter returns the sitter's alerts across all their sessions, newest first.
func (r *PostgresRepository) ListBySitter(ctx context.Context, sitterID string, f Filters, limit int) ([]*domain.Alert, error) {
	return r.list(ctx, "sitter_id", sitterID, f, limit)
}

// ListAll returns alerts for every party, newest first.
func (r *PostgresRepository) ListAll(ctx context.Context, f Filters, limit int) ([]*domain.Alert, error) {
	return r.list(ctx, "", "", f, limit)
}

func (r *PostgresRepository) list(ctx context.Context, column, value string, f Filters, limit int) ([]*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1 = 1`
	var args []any
	if column != "" {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}
	if f.SessionID != nil {
		args = append(args, *f.SessionID)
		query += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Severity != nil {
		args = append(args, string(*f.Severity))
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if f.Type != nil {
		args = append(args, string(*f.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetStatus advances the alert to the given status and stamps the matching
// per-status timestamp column. The update is conditional on the stored status
// still being earlier in the lifecycle, so concurrent transitions cannot move
// an alert backwards.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status domain.Status, at time.Time) (bool, error) {
	var column, prior string
	switch status {
	case domain.StatusViewed:
		column, prior = "viewed_at", `('new')`
	case domain.StatusAcknowledged:
		column, prior = "acknowledged_at", `('new', 'viewed')`
	case domain.StatusResolved:
		column, prior = "resolved_at", `('new', 'viewed', 'acknowledged')`
	default:
		return false, fmt.Errorf("cannot set alert status to %q", status)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = $2, `+column+` = $3 WHERE id = $1 AND status IN `+prior,
		id, string(status), at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var (
		a        domain.Alert
		sitterID sql.NullString
		viewed   sql.NullTime
		acked    sql.NullTime
		resolved sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.SessionID, &a.ParentID, &sitterID, &a.Type, &a.Severity,
		&a.Title, &a.Message, &a.Status, &viewed, &acked, &resolved, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.SitterID = sitterID.String
	a.ViewedAt = nullTimeToPtr(viewed)
	a.AcknowledgedAt = nullTimeToPtr(acked)
	a.ResolvedAt = nullTimeToPtr(resolved)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
