package retry

import (
	"context"
	"errors"
	"testing"

	"nestcare/backend/internal/apperr"
)

func TestTransitionRetriesTransportErrors(t *testing.T) {
	calls := 0
	got, err := Transition(context.Background(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &apperr.TransportError{Op: "accept session", Err: errors.New("connection refused")}
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got != "done" || calls != 3 {
		t.Fatalf("got %q after %d calls, want done after 3", got, calls)
	}
}

func TestTransitionDoesNotRetryContractErrors(t *testing.T) {
	calls := 0
	_, err := Transition(context.Background(), func() (string, error) {
		calls++
		return "", &apperr.AlreadyClaimedError{SessionID: "sess-1"}
	})
	var claimed *apperr.AlreadyClaimedError
	if !errors.As(err, &claimed) {
		t.Fatalf("err = %v, want AlreadyClaimedError", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on contract errors)", calls)
	}
}

func TestTransitionGivesUpAfterMaxTries(t *testing.T) {
	calls := 0
	_, err := Transition(context.Background(), func() (int, error) {
		calls++
		return 0, &apperr.TransportError{Op: "start session", Err: errors.New("timeout")}
	})
	var te *apperr.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if calls != maxTries {
		t.Fatalf("calls = %d, want %d", calls, maxTries)
	}
}
