package reorder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func TestCommitSuccess(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != Path {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get(csrfHeader) != "tok" {
			t.Errorf("csrf header = %q", r.Header.Get(csrfHeader))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	c.CSRFToken = "tok"
	s, _ := Start("day-2", []string{"museum", "lunch", "walk"}, "walk")
	s.Enter("museum")

	n, err := c.Commit(context.Background(), s, Before)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if n.Level != LevelSuccess || n.Message != "Itinerary updated successfully" {
		t.Fatalf("notification = %+v", n)
	}
	if got.DayID != "day-2" || !slices.Equal(got.ActivityOrder, []string{"walk", "museum", "lunch"}) {
		t.Fatalf("payload = %+v", got)
	}
}

func TestCommitFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"ServerError", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"Forbidden", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}},
		{"NotJSON", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			s, _ := Start("day-1", []string{"a", "b"}, "a")
			n, err := NewClient(srv.URL).Commit(context.Background(), s, After)
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("err = %v, want ErrRejected", err)
			}
			if n.Level != LevelError || n.Message != "Failed to update activity order" {
				t.Fatalf("notification = %+v", n)
			}
		})
	}
}

func TestCommitTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, _ := Start("day-1", []string{"a", "b"}, "a")
	n, err := NewClient(url).Commit(context.Background(), s, After)
	if err == nil || n.Level != LevelError {
		t.Fatalf("got %+v, %v", n, err)
	}
}
