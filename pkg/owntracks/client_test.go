package owntracks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/track"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var query = track.Query{
	User:   "anna",
	Device: "phone",
	From:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	To:     time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
}

func TestFetchPoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/0/locations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		for k, want := range map[string]string{
			"user": "anna", "device": "phone", "format": "json",
			"from": "2025-03-01T00:00:00", "to": "2025-03-02T00:00:00",
		} {
			if got := q.Get(k); got != want {
				t.Errorf("query %s = %q, want %q", k, got, want)
			}
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "recorder" || pass != "s3cret" {
			t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"count": 2, "data": [
			{"_type": "location", "lat": 51.5, "lon": -0.12, "tst": 1740819600, "alt": 35, "acc": 10, "tid": "ph"},
			{"_type": "location", "lat": 51.501, "lon": -0.121, "tst": 1740819630}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client(), quietLogger(), WithBasicAuth("recorder", "s3cret"))
	points, err := c.FetchPoints(context.Background(), query)
	if err != nil {
		t.Fatalf("FetchPoints() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].Alt == nil || *points[0].Alt != 35 || points[1].Alt != nil {
		t.Errorf("altitude not decoded as optional: %+v", points)
	}
	if points[0].Tst != 1740819600 {
		t.Errorf("tst = %d", points[0].Tst)
	}
}

func TestFetchPointsErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
	}{
		{"server error", http.StatusBadGateway, "bad gateway", true},
		{"rate limited", http.StatusTooManyRequests, "slow down", true},
		{"not found", http.StatusNotFound, "no such user", false},
		{"unauthorized", http.StatusUnauthorized, "", false},
		{"malformed json", http.StatusOK, `{"data": [`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, srv.Client(), quietLogger()).FetchPoints(context.Background(), query)
			var se *track.SourceError
			if !errors.As(err, &se) {
				t.Fatalf("error %v is not a *track.SourceError", err)
			}
			if se.Transient != tt.wantTransient {
				t.Errorf("Transient = %v, want %v (%v)", se.Transient, tt.wantTransient, err)
			}
			if track.IsTransient(err) != tt.wantTransient {
				t.Errorf("IsTransient() disagrees with the error")
			}
		})
	}
}

func TestFetchPointsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, nil, quietLogger()).FetchPoints(context.Background(), query)
	if !track.IsTransient(err) {
		t.Errorf("connection refused should be transient, got %v", err)
	}
}

func TestFetchPointsRequiresIdentity(t *testing.T) {
	_, err := NewClient("http://recorder.invalid", nil, quietLogger()).FetchPoints(context.Background(), track.Query{})
	if err == nil || track.IsTransient(err) {
		t.Errorf("missing user/device should be a permanent error, got %v", err)
	}
}
