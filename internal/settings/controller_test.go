package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/billtrack/bff/internal/config"
	"github.com/billtrack/bff/internal/gateway"
	"github.com/billtrack/bff/model"
)

func newController(t *testing.T, handler http.HandlerFunc) *Controller {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(gateway.NewSettings(gateway.NewClient(config.BackendConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
		Retry:   config.RetryConfig{MaxAttempts: 1},
	})))
}

func profileHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
				"id":          1,
				"fullName":    "Jordan Reyes",
				"email":       "jordan@billtrack.example",
				"companyName": "BillTrack",
				"country":     "US",
			}})
		case http.MethodPut:
			var sent model.UserProfile
			if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
				t.Errorf("decoding PUT body: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]any{"data": sent})
		}
	}
}

func TestController_FetchProfile(t *testing.T) {
	c := newController(t, profileHandler(t))

	if !c.FetchProfile(context.Background()) {
		t.Fatal("fetch failed")
	}
	snap := c.Snapshot()
	if snap.Profile == nil || snap.Profile.FullName != "Jordan Reyes" {
		t.Errorf("profile = %+v", snap.Profile)
	}
	if snap.Loading || snap.Error != "" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestController_FetchProfile_error(t *testing.T) {
	c := newController(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("settings unavailable"))
	})

	if c.FetchProfile(context.Background()) {
		t.Fatal("expected failure")
	}
	snap := c.Snapshot()
	if snap.Error != "settings unavailable" {
		t.Errorf("error = %q", snap.Error)
	}
	if snap.Profile != nil {
		t.Errorf("profile = %+v, want nil", snap.Profile)
	}
}

func TestController_UpdateProfile_mergesOverCurrent(t *testing.T) {
	var received model.UserProfile
	c := newController(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			profileHandler(t)(w, r)
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&received)
			json.NewEncoder(w).Encode(map[string]any{"data": received})
		}
	})

	if !c.FetchProfile(context.Background()) {
		t.Fatal("fetch failed")
	}
	if !c.UpdateProfile(context.Background(), map[string]any{"companyName": "BillTrack Pro"}) {
		t.Fatal("update failed")
	}

	// Untouched fields ride along; the patched one is replaced.
	if received.FullName != "Jordan Reyes" {
		t.Errorf("FullName = %q, want preserved from current profile", received.FullName)
	}
	if received.CompanyName != "BillTrack Pro" {
		t.Errorf("CompanyName = %q, want patched", received.CompanyName)
	}

	snap := c.Snapshot()
	if snap.Profile.CompanyName != "BillTrack Pro" {
		t.Errorf("stored profile = %+v", snap.Profile)
	}
}

func TestController_UpdateProfile_withoutFetchIsNoop(t *testing.T) {
	var called bool
	c := newController(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	if c.UpdateProfile(context.Background(), map[string]any{"city": "Austin"}) {
		t.Fatal("update without a loaded profile should fail")
	}
	if called {
		t.Error("backend called before any profile was loaded")
	}
}

func TestController_UpdateProfile_failureKeepsProfile(t *testing.T) {
	fail := false
	c := newController(t, func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte("profile version conflict"))
			return
		}
		profileHandler(t)(w, r)
	})

	if !c.FetchProfile(context.Background()) {
		t.Fatal("fetch failed")
	}
	fail = true

	if c.UpdateProfile(context.Background(), map[string]any{"city": "Austin"}) {
		t.Fatal("expected update failure")
	}
	snap := c.Snapshot()
	if snap.Error != "profile version conflict" {
		t.Errorf("error = %q", snap.Error)
	}
	if snap.Profile == nil || snap.Profile.City != "" {
		t.Errorf("profile = %+v, want previous copy untouched", snap.Profile)
	}
}
