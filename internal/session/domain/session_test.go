package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusRequested, StatusAccepted, true},
		{StatusRequested, StatusCancelled, true},
		{StatusAccepted, StatusActive, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusCancelled, true},

		{StatusRequested, StatusActive, false},
		{StatusRequested, StatusCompleted, false},
		{StatusAccepted, StatusCompleted, false},
		{StatusAccepted, StatusRequested, false},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusRequested, false},
		{StatusCancelled, StatusCompleted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusRequested, StatusAccepted, StatusActive} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestSearchScopeValid(t *testing.T) {
	for _, s := range []SearchScope{ScopeInvite, ScopeNearby, ScopeCity, ScopeNationwide} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if SearchScope("galaxy").Valid() {
		t.Error("unknown scope should be invalid")
	}
}

func TestSessionOpen(t *testing.T) {
	s := &Session{Status: StatusRequested}
	if !s.Open() {
		t.Error("requested session with no sitter should be open")
	}
	s.SitterID = "sitter-1"
	if s.Open() {
		t.Error("session with bound sitter should not be open")
	}
	s = &Session{Status: StatusAccepted}
	if s.Open() {
		t.Error("accepted session should not be open")
	}
}
