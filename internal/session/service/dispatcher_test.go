package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"nestcare/backend/internal/apperr"
	"nestcare/backend/internal/session/domain"
)

// fakeDispatcherRepo implements DispatcherRepo for tests.
type fakeDispatcherRepo struct {
	created []*domain.Session
	stored  map[string]*domain.Session
	open    []*domain.Session
	updated int
	listErr error
}

func (f *fakeDispatcherRepo) Create(ctx context.Context, s *domain.Session) error {
	f.created = append(f.created, s)
	return nil
}

func (f *fakeDispatcherRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s, ok := f.stored[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeDispatcherRepo) UpdateRequest(ctx context.Context, s *domain.Session, now time.Time) (bool, error) {
	stored, ok := f.stored[s.ID]
	if !ok || stored.Status != domain.StatusRequested {
		return false, nil
	}
	copied := *s
	copied.UpdatedAt = now
	f.stored[s.ID] = &copied
	f.updated++
	return true, nil
}

func (f *fakeDispatcherRepo) ListOpen(ctx context.Context, limit int) ([]*domain.Session, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.open, nil
}

// fakeBus records published events.
type fakeBus struct {
	events []string
}

func (f *fakeBus) Publish(ctx context.Context, channel, eventType string, payload any) error {
	f.events = append(f.events, channel+"/"+eventType)
	return nil
}

type fakeNames struct{}

func (fakeNames) SessionChannel(id string) string { return "session:" + id }

func newTestDispatcher(repo *fakeDispatcherRepo) (*Dispatcher, *fakeBus) {
	bus := &fakeBus{}
	return NewDispatcher(repo, bus, fakeNames{}, zap.NewNop()), bus
}

func floatPtr(f float64) *float64 { return &f }

func validInput() CreateRequestInput {
	return CreateRequestInput{
		ParentID:    "parent-1",
		ChildIDs:    []string{"child-1"},
		StartTime:   time.Now().Add(24 * time.Hour),
		Location:    domain.Location{Address: "12 Lake Rd", City: "Colombo"},
		SearchScope: domain.ScopeNationwide,
	}
}

func TestCreateRequest_Valid(t *testing.T) {
	repo := &fakeDispatcherRepo{}
	d, bus := newTestDispatcher(repo)

	s, err := d.CreateRequest(context.Background(), validInput())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if s.Status != domain.StatusRequested {
		t.Errorf("status = %s, want requested", s.Status)
	}
	if s.ID == "" {
		t.Error("session should get an id")
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d sessions, want 1", len(repo.created))
	}
	if len(bus.events) != 1 || bus.events[0] != "session:"+s.ID+"/session.requested" {
		t.Errorf("bus events = %v, want one session.requested", bus.events)
	}
}

func TestCreateRequest_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateRequestInput)
	}{
		{"missing parent", func(in *CreateRequestInput) { in.ParentID = "" }},
		{"no children", func(in *CreateRequestInput) { in.ChildIDs = nil }},
		{"empty schedule", func(in *CreateRequestInput) { in.StartTime = time.Time{}; in.TimeSlots = nil }},
		{"bad slot", func(in *CreateRequestInput) {
			in.StartTime = time.Time{}
			in.TimeSlots = []domain.TimeSlot{{Date: time.Now(), Start: "", End: "17:00"}}
		}},
		{"unknown scope", func(in *CreateRequestInput) { in.SearchScope = "galaxy" }},
		{"nearby without distance", func(in *CreateRequestInput) { in.SearchScope = domain.ScopeNearby }},
		{"nearby with zero distance", func(in *CreateRequestInput) {
			in.SearchScope = domain.ScopeNearby
			in.MaxDistanceKm = floatPtr(0)
		}},
		{"invite without sitter", func(in *CreateRequestInput) { in.SearchScope = domain.ScopeInvite }},
		{"city without city", func(in *CreateRequestInput) {
			in.SearchScope = domain.ScopeCity
			in.Location.City = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDispatcher(&fakeDispatcherRepo{})
			in := validInput()
			tt.mutate(&in)

			_, err := d.CreateRequest(context.Background(), in)
			var verr *apperr.ValidationError
			if err == nil {
				t.Fatal("expected ValidationError, got nil")
			}
			if !asValidation(err, &verr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func requestedStored(id string) *domain.Session {
	return &domain.Session{
		ID:          id,
		ParentID:    "parent-1",
		ChildIDs:    []string{"child-1"},
		Status:      domain.StatusRequested,
		StartTime:   time.Now().Add(24 * time.Hour),
		SearchScope: domain.ScopeNationwide,
		Location:    domain.Location{Address: "12 Lake Rd", City: "Colombo"},
	}
}

func TestUpdateRequest_EditsWhileRequested(t *testing.T) {
	repo := &fakeDispatcherRepo{stored: map[string]*domain.Session{"sess-1": requestedStored("sess-1")}}
	d, bus := newTestDispatcher(repo)

	notes := "gate code is 4411"
	rate := 15.0
	s, err := d.UpdateRequest(context.Background(), UpdateRequestInput{
		SessionID:  "sess-1",
		ParentID:   "parent-1",
		ChildIDs:   []string{"child-1", "child-2"},
		HourlyRate: &rate,
		Notes:      &notes,
	})
	if err != nil {
		t.Fatalf("UpdateRequest: %v", err)
	}
	if len(s.ChildIDs) != 2 || s.Notes != notes || s.HourlyRate == nil || *s.HourlyRate != rate {
		t.Fatalf("session = %+v, edits not applied", s)
	}
	if s.StartTime.IsZero() || s.SearchScope != domain.ScopeNationwide {
		t.Fatal("untouched fields must keep their stored values")
	}
	if repo.updated != 1 {
		t.Fatalf("updated %d times, want 1", repo.updated)
	}
	if len(bus.events) != 1 || bus.events[0] != "session:sess-1/session.updated" {
		t.Fatalf("events = %v, want one session.updated", bus.events)
	}
}

func TestUpdateRequest_FrozenOnceClaimed(t *testing.T) {
	stored := requestedStored("sess-1")
	stored.Status = domain.StatusAccepted
	stored.SitterID = "sitter-1"
	repo := &fakeDispatcherRepo{stored: map[string]*domain.Session{"sess-1": stored}}
	d, _ := newTestDispatcher(repo)

	notes := "too late"
	_, err := d.UpdateRequest(context.Background(), UpdateRequestInput{
		SessionID: "sess-1",
		ParentID:  "parent-1",
		Notes:     &notes,
	})
	var ise *apperr.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
	if repo.updated != 0 {
		t.Fatal("a claimed session must not be rewritten")
	}
}

func TestUpdateRequest_OnlyOwningParent(t *testing.T) {
	repo := &fakeDispatcherRepo{stored: map[string]*domain.Session{"sess-1": requestedStored("sess-1")}}
	d, _ := newTestDispatcher(repo)

	notes := "not mine"
	_, err := d.UpdateRequest(context.Background(), UpdateRequestInput{
		SessionID: "sess-1",
		ParentID:  "parent-2",
		Notes:     &notes,
	})
	var pde *apperr.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("err = %v, want PermissionDeniedError", err)
	}
}

func TestUpdateRequest_UnknownSession(t *testing.T) {
	repo := &fakeDispatcherRepo{stored: map[string]*domain.Session{}}
	d, _ := newTestDispatcher(repo)

	_, err := d.UpdateRequest(context.Background(), UpdateRequestInput{SessionID: "gone", ParentID: "parent-1"})
	var nfe *apperr.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestUpdateRequest_LeavingInviteReleasesSitter(t *testing.T) {
	stored := requestedStored("sess-1")
	stored.SearchScope = domain.ScopeInvite
	stored.SitterID = "sitter-1"
	repo := &fakeDispatcherRepo{stored: map[string]*domain.Session{"sess-1": stored}}
	d, _ := newTestDispatcher(repo)

	scope := domain.ScopeCity
	s, err := d.UpdateRequest(context.Background(), UpdateRequestInput{
		SessionID:   "sess-1",
		ParentID:    "parent-1",
		SearchScope: &scope,
	})
	if err != nil {
		t.Fatalf("UpdateRequest: %v", err)
	}
	if s.SitterID != "" {
		t.Fatal("moving off invite scope must release the invited sitter")
	}
	if s.SearchScope != domain.ScopeCity {
		t.Fatalf("scope = %s, want city", s.SearchScope)
	}
}

func TestUpdateRequest_RejectsInvalidShape(t *testing.T) {
	repo := &fakeDispatcherRepo{stored: map[string]*domain.Session{"sess-1": requestedStored("sess-1")}}
	d, _ := newTestDispatcher(repo)

	_, err := d.UpdateRequest(context.Background(), UpdateRequestInput{
		SessionID: "sess-1",
		ParentID:  "parent-1",
		ChildIDs:  []string{},
	})
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if repo.updated != 0 {
		t.Fatal("invalid edits must not reach the store")
	}
}

func asValidation(err error, target **apperr.ValidationError) bool {
	v, ok := err.(*apperr.ValidationError)
	if ok {
		*target = v
	}
	return ok
}

func openSession(id string, scope domain.SearchScope, loc domain.Location, maxKm *float64) *domain.Session {
	return &domain.Session{
		ID:            id,
		Status:        domain.StatusRequested,
		SearchScope:   scope,
		Location:      loc,
		MaxDistanceKm: maxKm,
	}
}

func TestDiscoverAvailable_NearbyDistanceFilter(t *testing.T) {
	// Request at Colombo (6.9271, 79.8612), 10 km radius.
	colombo := domain.Location{Address: "x", Latitude: floatPtr(6.9271), Longitude: floatPtr(79.8612)}
	repo := &fakeDispatcherRepo{open: []*domain.Session{
		openSession("near", domain.ScopeNearby, colombo, floatPtr(10)),
	}}
	d, _ := newTestDispatcher(repo)

	// Candidate roughly 3 km away sees it.
	near := Candidate{SitterID: "s1", Latitude: floatPtr(6.9000), Longitude: floatPtr(79.8612)}
	got, err := d.DiscoverAvailable(context.Background(), near)
	if err != nil {
		t.Fatalf("DiscoverAvailable: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidate 3 km away should see the request, got %d", len(got))
	}

	// Candidate roughly 50 km away does not.
	far := Candidate{SitterID: "s2", Latitude: floatPtr(7.3775), Longitude: floatPtr(79.8612)}
	got, err = d.DiscoverAvailable(context.Background(), far)
	if err != nil {
		t.Fatalf("DiscoverAvailable: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("candidate 50 km away should not see the request, got %d", len(got))
	}
}

func TestDiscoverAvailable_InviteNeverVisible(t *testing.T) {
	repo := &fakeDispatcherRepo{open: []*domain.Session{
		openSession("invited", domain.ScopeInvite, domain.Location{}, nil),
		openSession("open", domain.ScopeNationwide, domain.Location{}, nil),
	}}
	d, _ := newTestDispatcher(repo)

	got, err := d.DiscoverAvailable(context.Background(), Candidate{SitterID: "s1"})
	if err != nil {
		t.Fatalf("DiscoverAvailable: %v", err)
	}
	if len(got) != 1 || got[0].ID != "open" {
		t.Fatalf("invite-scope session leaked into discovery: %v", got)
	}
}

func TestDiscoverAvailable_CityMatch(t *testing.T) {
	repo := &fakeDispatcherRepo{open: []*domain.Session{
		openSession("colombo", domain.ScopeCity, domain.Location{City: "Colombo"}, nil),
		openSession("kandy", domain.ScopeCity, domain.Location{City: "Kandy"}, nil),
	}}
	d, _ := newTestDispatcher(repo)

	got, err := d.DiscoverAvailable(context.Background(), Candidate{SitterID: "s1", City: "colombo"})
	if err != nil {
		t.Fatalf("DiscoverAvailable: %v", err)
	}
	if len(got) != 1 || got[0].ID != "colombo" {
		t.Fatalf("city filter should match case-insensitively, got %v", got)
	}
}

func TestDiscoverAvailable_NearbyWithoutCandidateCoords(t *testing.T) {
	colombo := domain.Location{Latitude: floatPtr(6.9271), Longitude: floatPtr(79.8612)}
	repo := &fakeDispatcherRepo{open: []*domain.Session{
		openSession("near", domain.ScopeNearby, colombo, floatPtr(10)),
	}}
	d, _ := newTestDispatcher(repo)

	got, err := d.DiscoverAvailable(context.Background(), Candidate{SitterID: "s1"})
	if err != nil {
		t.Fatalf("DiscoverAvailable: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("nearby session should be hidden from a candidate without coordinates")
	}
}

func TestDiscoverAvailable_OrderPreserved(t *testing.T) {
	repo := &fakeDispatcherRepo{open: []*domain.Session{
		openSession("newest", domain.ScopeNationwide, domain.Location{}, nil),
		openSession("older", domain.ScopeNationwide, domain.Location{}, nil),
	}}
	d, _ := newTestDispatcher(repo)

	got, err := d.DiscoverAvailable(context.Background(), Candidate{SitterID: "s1"})
	if err != nil {
		t.Fatalf("DiscoverAvailable: %v", err)
	}
	if len(got) != 2 || got[0].ID != "newest" || got[1].ID != "older" {
		t.Fatalf("store ordering should be preserved, got %v", got)
	}
}
