package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/ukydev/fleet-requests/internal/models"
)

// ListFilter narrows ListRequests. A nil Status lists every status.
type ListFilter struct {
	Status *models.Status
	// Mine limits the list to requests submitted by the caller.
	Mine bool
}

func requestPath(id string, suffix string) (string, error) {
	if err := models.ValidateID(id); err != nil {
		return "", err
	}
	return "/requests/" + id + suffix, nil
}

// ListRequests returns the requests visible to the caller.
func (c *Client) ListRequests(ctx context.Context, f ListFilter) ([]models.Request, error) {
	q := url.Values{}
	if f.Status != nil {
		q.Set("status", strconv.Itoa(int(*f.Status)))
	}
	if f.Mine {
		q.Set("mine", "true")
	}
	var out []models.Request
	if err := c.do(ctx, call{method: http.MethodGet, path: "/requests", query: q, out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRequest submits a new request; the backend returns it as Pending.
func (c *Client) CreateRequest(ctx context.Context, in models.CreateRequestInput) (*models.Request, error) {
	var out models.Request
	if err := c.do(ctx, call{method: http.MethodPost, path: "/requests", body: in, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRequest fetches the full snapshot of one request.
func (c *Client) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	return c.requestCall(ctx, http.MethodGet, id, "", nil)
}

// Approve moves a Pending request to Approved. assignment is required when
// the request needs a driver.
func (c *Client) Approve(ctx context.Context, id string, assignment *models.AssignmentInput) (*models.Request, error) {
	var body interface{}
	if assignment != nil {
		body = assignment
	}
	return c.requestCall(ctx, http.MethodPost, id, "/approve", body)
}

// Reject moves a Pending request to Rejected.
func (c *Client) Reject(ctx context.Context, id, reason string) (*models.Request, error) {
	return c.requestCall(ctx, http.MethodPost, id, "/reject", models.ReasonInput{Reason: reason})
}

// Cancel moves a Pending or Approved request to Cancelled.
func (c *Client) Cancel(ctx context.Context, id, reason string) (*models.Request, error) {
	return c.requestCall(ctx, http.MethodPost, id, "/cancel", models.ReasonInput{Reason: reason})
}

// StartUsing moves an Approved request to InProgress.
func (c *Client) StartUsing(ctx context.Context, id string) (*models.Request, error) {
	return c.requestCall(ctx, http.MethodPost, id, "/start", nil)
}

// EndUsage moves an InProgress request to Done.
func (c *Client) EndUsage(ctx context.Context, id string) (*models.Request, error) {
	return c.requestCall(ctx, http.MethodPost, id, "/end", nil)
}

// Remind asks the backend to notify the requester of an InProgress request.
func (c *Client) Remind(ctx context.Context, id string) error {
	path, err := requestPath(id, "/remind")
	if err != nil {
		return err
	}
	return c.do(ctx, call{method: http.MethodPost, path: path})
}

func (c *Client) requestCall(ctx context.Context, method, id, suffix string, body interface{}) (*models.Request, error) {
	path, err := requestPath(id, suffix)
	if err != nil {
		return nil, err
	}
	var out models.Request
	if err := c.do(ctx, call{method: method, path: path, body: body, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewIdempotencyKey returns a key for SubmitCheckPoint. Reuse the same key
// when retrying one submission.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// SubmitCheckPoint appends a checkpoint to an InProgress request. An empty
// key gets a fresh one.
func (c *Client) SubmitCheckPoint(ctx context.Context, id string, in models.CheckPointInput, key string) (*models.CheckPoint, error) {
	path, err := requestPath(id, "/checkpoints")
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = NewIdempotencyKey()
	}
	var out models.CheckPoint
	if err := c.do(ctx, call{method: http.MethodPost, path: path, body: in, out: &out, idempotencyKey: key}); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCheckPoints returns the checkpoints of a request in submission order.
func (c *Client) ListCheckPoints(ctx context.Context, id string) ([]models.CheckPoint, error) {
	path, err := requestPath(id, "/checkpoints")
	if err != nil {
		return nil, err
	}
	var out []models.CheckPoint
	if err := c.do(ctx, call{method: http.MethodGet, path: path, out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}
