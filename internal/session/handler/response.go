package handler

import (
	"time"

	"nestcare/backend/internal/session/domain"
)

// sessionResponse is the wire shape of a session. Field names follow the
// stored record so existing clients keep working.
type sessionResponse struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parent_id"`
	SitterID string   `json:"sitter_id,omitempty"`
	ChildIDs []string `json:"child_ids"`

	Status    string            `json:"status"`
	StartTime time.Time         `json:"start_time"`
	EndTime   *time.Time        `json:"end_time,omitempty"`
	TimeSlots []domain.TimeSlot `json:"time_slots"`

	SearchScope   string          `json:"search_scope"`
	MaxDistanceKm *float64        `json:"max_distance_km,omitempty"`
	Location      domain.Location `json:"location"`

	GPSTrackingEnabled  bool       `json:"gps_tracking_enabled"`
	CryDetectionEnabled bool       `json:"cry_detection_enabled"`
	MonitoringEnabled   bool       `json:"monitoring_enabled"`
	LastLocationUpdate  *time.Time `json:"last_location_update,omitempty"`
	LastCryDetection    *time.Time `json:"last_cry_detection,omitempty"`
	CryAlertsCount      int        `json:"cry_alerts_count"`

	HourlyRate    *float64 `json:"hourly_rate,omitempty"`
	TotalAmount   *float64 `json:"total_amount,omitempty"`
	PaymentStatus string   `json:"payment_status,omitempty"`
	Notes         string   `json:"notes,omitempty"`

	CompletedAt             *time.Time `json:"completed_at,omitempty"`
	CancelledAt             *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy             string     `json:"cancelled_by,omitempty"`
	CancellationReason      string     `json:"cancellation_reason,omitempty"`
	CancellationFeeEligible bool       `json:"cancellation_fee_eligible"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:                      s.ID,
		ParentID:                s.ParentID,
		SitterID:                s.SitterID,
		ChildIDs:                s.ChildIDs,
		Status:                  string(s.Status),
		StartTime:               s.StartTime,
		EndTime:                 s.EndTime,
		TimeSlots:               s.TimeSlots,
		SearchScope:             string(s.SearchScope),
		MaxDistanceKm:           s.MaxDistanceKm,
		Location:                s.Location,
		GPSTrackingEnabled:      s.GPSTrackingEnabled,
		CryDetectionEnabled:     s.CryDetectionEnabled,
		MonitoringEnabled:       s.MonitoringEnabled,
		LastLocationUpdate:      s.LastLocationUpdate,
		LastCryDetection:        s.LastCryDetection,
		CryAlertsCount:          s.CryAlertsCount,
		HourlyRate:              s.HourlyRate,
		TotalAmount:             s.TotalAmount,
		PaymentStatus:           s.PaymentStatus,
		Notes:                   s.Notes,
		CompletedAt:             s.CompletedAt,
		CancelledAt:             s.CancelledAt,
		CancelledBy:             string(s.CancelledBy),
		CancellationReason:      s.CancellationReason,
		CancellationFeeEligible: s.CancellationFeeEligible,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}

func toSessionResponses(sessions []*domain.Session) []sessionResponse {
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	return out
}
