// Package settings owns the account settings screen state: the profile
// record, its loading flag, and the single error slot the page renders.
package settings

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/billtrack/bff/internal/gateway"
	"github.com/billtrack/bff/model"
)

// Snapshot is the settings state as served to the browser.
type Snapshot struct {
	Profile *model.UserProfile `json:"profile"`
	Loading bool               `json:"isLoading"`
	Error   string             `json:"error,omitempty"`
}

// Controller coordinates profile reads and updates against the backend.
// Like the list controllers, it converts every failure into the error
// string slot rather than propagating it to the view.
type Controller struct {
	gw *gateway.Settings

	mu      sync.Mutex
	profile *model.UserProfile
	loading bool
	lastErr string
}

// New creates a settings controller.
func New(gw *gateway.Settings) *Controller {
	return &Controller{gw: gw}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Loading: c.loading, Error: c.lastErr}
	if c.profile != nil {
		p := *c.profile
		snap.Profile = &p
	}
	return snap
}

// FetchProfile loads the profile from the backend.
func (c *Controller) FetchProfile(ctx context.Context) bool {
	c.setLoading()

	profile, err := c.gw.Profile(ctx)
	if err != nil {
		c.setError(err)
		return false
	}

	c.mu.Lock()
	c.profile = &profile
	c.loading = false
	c.mu.Unlock()
	return true
}

// UpdateProfile merges the given partial update over the currently loaded
// profile, sends the full record to the backend, and stores the returned
// copy. Updating before a successful fetch is a no-op, mirroring a form
// that cannot render without its initial data.
func (c *Controller) UpdateProfile(ctx context.Context, updates map[string]any) bool {
	c.mu.Lock()
	if c.profile == nil {
		c.mu.Unlock()
		return false
	}
	current := *c.profile
	c.loading = true
	c.lastErr = ""
	c.mu.Unlock()

	merged, err := mergeProfile(current, updates)
	if err != nil {
		c.setError(err)
		return false
	}

	stored, err := c.gw.UpdateProfile(ctx, merged)
	if err != nil {
		c.setError(err)
		return false
	}

	c.mu.Lock()
	c.profile = &stored
	c.loading = false
	c.mu.Unlock()
	return true
}

// ClearError resets the error slot.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = ""
}

func (c *Controller) setLoading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = true
	c.lastErr = ""
}

func (c *Controller) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	c.lastErr = err.Error()
}

// mergeProfile overlays a partial JSON update onto the current profile.
// Round-tripping through JSON keeps the merge keyed by the wire field
// names the browser sends.
func mergeProfile(current model.UserProfile, updates map[string]any) (model.UserProfile, error) {
	base, err := json.Marshal(current)
	if err != nil {
		return model.UserProfile{}, err
	}

	var asMap map[string]any
	if err := json.Unmarshal(base, &asMap); err != nil {
		return model.UserProfile{}, err
	}
	for k, v := range updates {
		asMap[k] = v
	}

	mergedJSON, err := json.Marshal(asMap)
	if err != nil {
		return model.UserProfile{}, err
	}

	var merged model.UserProfile
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return model.UserProfile{}, err
	}
	return merged, nil
}
