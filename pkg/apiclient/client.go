// Package apiclient talks to the inventory REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bdemetris/devicehub/pkg/model"
)

// DefaultBaseURL is where the inventory API listens unless configured.
const DefaultBaseURL = "http://localhost:5000"

// Error is a failed API call. Message is the server's {error} text, or a
// generic message when the body could not be read.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// Client is a thin JSON client for the inventory API. Calls are not retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New returns a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request for %s %s: %w", method, endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response for %s %s: %w", method, endpoint, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: "Network error"}
	}
	if body.Error == "" {
		return &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return &Error{StatusCode: resp.StatusCode, Message: body.Error}
}

func (c *Client) ListDevices(ctx context.Context) ([]model.APIDevice, error) {
	var devices []model.APIDevice
	if err := c.do(ctx, http.MethodGet, "/devices", nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *Client) GetDevice(ctx context.Context, id string) (model.APIDevice, error) {
	var device model.APIDevice
	err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(id), nil, &device)
	return device, err
}

// SearchDevices runs the server-side search. An empty query yields no results.
func (c *Client) SearchDevices(ctx context.Context, query string) ([]model.APIDevice, error) {
	var devices []model.APIDevice
	if err := c.do(ctx, http.MethodGet, "/devices/search?q="+url.QueryEscape(query), nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *Client) CreateDevice(ctx context.Context, device model.APIDevice) (model.APIDevice, error) {
	var created model.APIDevice
	err := c.do(ctx, http.MethodPost, "/devices", device, &created)
	return created, err
}

// UpdateDevice sends a partial update keyed by API field names.
func (c *Client) UpdateDevice(ctx context.Context, id string, updates map[string]any) (model.APIDevice, error) {
	var updated model.APIDevice
	err := c.do(ctx, http.MethodPut, "/devices/"+url.PathEscape(id), updates, &updated)
	return updated, err
}

// CheckoutDevice assigns the device to user, normally the user's email.
func (c *Client) CheckoutDevice(ctx context.Context, id, user string) (model.APIDevice, error) {
	var updated model.APIDevice
	body := map[string]string{"user": user}
	err := c.do(ctx, http.MethodPut, "/devices/"+url.PathEscape(id)+"/checkout", body, &updated)
	return updated, err
}

func (c *Client) CheckinDevice(ctx context.Context, id string) (model.APIDevice, error) {
	var updated model.APIDevice
	err := c.do(ctx, http.MethodPut, "/devices/"+url.PathEscape(id)+"/checkin", nil, &updated)
	return updated, err
}

func (c *Client) Recommendations(ctx context.Context) ([]model.APIDevice, error) {
	var devices []model.APIDevice
	if err := c.do(ctx, http.MethodGet, "/devices/recommendations", nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]model.APIUser, error) {
	var users []model.APIUser
	if err := c.do(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) CreateUser(ctx context.Context, user model.APIUser) (model.APIUser, error) {
	var created model.APIUser
	err := c.do(ctx, http.MethodPost, "/users", user, &created)
	return created, err
}

// DeviceHistory returns the device's history, newest first.
func (c *Client) DeviceHistory(ctx context.Context, deviceID string) ([]model.APIHistory, error) {
	var history []model.APIHistory
	if err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(deviceID), nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}
