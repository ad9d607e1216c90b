package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"campus-client/internal/models"
)

// UserInfo returns the signed-in user's role-shaped profile.
func (c *Client) UserInfo(ctx context.Context) (models.Actor, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/user/info/", "/user/info/", nil, &raw); err != nil {
		return nil, err
	}
	return models.DecodeActor(raw)
}

// SearchUsers finds users by name or email fragment.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.UserDetail, error) {
	var out []models.UserDetail
	path := "/users/search/?query=" + url.QueryEscape(query)
	err := c.do(ctx, http.MethodGet, "/users/search/", path, nil, &out)
	return out, err
}
