package control

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/imroc/req"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// APIError is a non-2xx response of the control API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client talks to a control Server.
type Client struct {
	r         *req.Req
	apiPrefix string
}

// NewClient creates a client for the server at base URL server, e.g.
// "http://localhost:8080".
func NewClient(server string) *Client {
	return &Client{
		r:         req.New(),
		apiPrefix: strings.TrimRight(server, "/") + APIPrefix,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.r.SetClient(hc)
}

// Status returns the sweeper status
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, "/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Configure sends a configuration; zero-valued fields are still applied.
func (c *Client) Configure(ctx context.Context, cfg ad5933.Config) (*ConfigResponse, error) {
	var resp ConfigResponse
	if err := c.do(ctx, http.MethodPut, "/config", cfg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Command executes cmd with an optional JSON body.
func (c *Client) Command(ctx context.Context, cmd Command, body any) (*CommandResponse, error) {
	var resp CommandResponse
	if err := c.do(ctx, http.MethodPost, "/commands/"+string(cmd), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Single programs a single-frequency sweep and starts it.
func (c *Client) Single(ctx context.Context, freq float64) (*CommandResponse, error) {
	return c.Command(ctx, CommandSingle, SingleRequest{Frequency: freq})
}

// Temperature measures the die temperature.
func (c *Client) Temperature(ctx context.Context) (float64, error) {
	resp, err := c.Command(ctx, CommandTemperature, nil)
	if err != nil {
		return 0, err
	}
	if resp.Temperature == nil {
		return 0, fmt.Errorf("no temperature in response")
	}
	return *resp.Temperature, nil
}

// Samples returns the samples of the current or last run.
func (c *Client) Samples(ctx context.Context) ([]ad5933.Sample, error) {
	var samples []ad5933.Sample
	if err := c.do(ctx, http.MethodGet, "/samples", nil, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	args := []interface{}{ctx}
	if body != nil {
		args = append(args, req.BodyJSON(body))
	}

	r, err := c.r.Do(method, c.apiPrefix+path, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if code := r.Response().StatusCode; code < 200 || code > 299 {
		var e errorResponse
		if err = r.ToJSON(&e); err != nil || e.Error == "" {
			e.Error = r.Response().Status
		}
		return &APIError{StatusCode: code, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err = r.ToJSON(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
