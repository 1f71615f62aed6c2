package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ukydev/fleet-requests/internal/models"
)

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	err := c.do(ctx, call{
		method:    http.MethodPost,
		path:      "/auth/login",
		body:      models.LoginRequest{Email: email, Password: password},
		out:       &out,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Me returns the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, call{method: http.MethodGet, path: "/auth/me", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDrivers returns drivers, optionally only those that may be assigned.
func (c *Client) ListDrivers(ctx context.Context, activeOnly bool) ([]models.Driver, error) {
	q := url.Values{}
	if activeOnly {
		q.Set("active", "true")
	}
	var out []models.Driver
	if err := c.do(ctx, call{method: http.MethodGet, path: "/drivers", query: q, out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

// ListVehicles returns the fleet.
func (c *Client) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var out []models.Vehicle
	if err := c.do(ctx, call{method: http.MethodGet, path: "/vehicles", out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

// ListNotifications returns the caller's notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context, unreadOnly bool) ([]models.Notification, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	var out []models.Notification
	if err := c.do(ctx, call{method: http.MethodGet, path: "/notifications", query: q, out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotificationRead flags one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) (*models.Notification, error) {
	if err := models.ValidateID(id); err != nil {
		return nil, err
	}
	var out models.Notification
	if err := c.do(ctx, call{method: http.MethodPost, path: "/notifications/" + id + "/read", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}
