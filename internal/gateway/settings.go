package gateway

import (
	"context"
	"net/http"

	"github.com/billtrack/bff/model"
)

// Settings is the gateway for the backend's /settings resource. Unlike the
// entity resources, settings responses arrive inside a {data: ...}
// envelope.
type Settings struct {
	client *Client
}

// NewSettings creates a settings gateway on top of the backend client.
func NewSettings(c *Client) *Settings {
	return &Settings{client: c}
}

// Profile fetches the account profile.
func (g *Settings) Profile(ctx context.Context) (model.UserProfile, error) {
	body, err := g.client.Get(ctx, "/settings", nil)
	if err != nil {
		return model.UserProfile{}, err
	}
	return decodeWrapped[model.UserProfile](body)
}

// UpdateProfile replaces the account profile and returns the stored copy.
func (g *Settings) UpdateProfile(ctx context.Context, profile model.UserProfile) (model.UserProfile, error) {
	body, err := g.client.Send(ctx, http.MethodPut, "/settings", profile)
	if err != nil {
		return model.UserProfile{}, err
	}
	return decodeWrapped[model.UserProfile](body)
}
