package classify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"nestcare/backend/internal/apperr"
)

func TestClassifyDecodesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("path = %q, want /predict", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"label":"crying","score":0.91}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Classify(context.Background(), []byte("chunk"))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Label != "crying" || got.Score != 0.91 {
		t.Fatalf("verdict = %+v", got)
	}
}

func TestClassifyServerErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Classify(context.Background(), []byte("chunk"))
	var ce *apperr.ClassificationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ClassificationError", err)
	}
}
