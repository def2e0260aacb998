// Package client is a small HTTP client for the churn prediction API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"churn-service/internal/api"
	"churn-service/internal/inference"

	"github.com/go-resty/resty/v2"
)

// ErrUnavailable is returned when the API cannot be reached.
var ErrUnavailable = errors.New("churn api unavailable")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("churn api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("churn api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to a churn API server.
type Client struct {
	base string
	rest *resty.Client
}

// New creates a client for the API at base, e.g. "http://localhost:8000".
func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Health checks that the API is serving.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("churn api: unexpected health status %q", body.Status)
	}
	return nil
}

// Predict scores one customer.
func (c *Client) Predict(ctx context.Context, req api.PredictRequest) (api.PredictResponse, error) {
	var resp api.PredictResponse
	err := c.do(ctx, http.MethodPost, "/predict", req, &resp)
	return resp, err
}

// PredictBatch scores several customers together.
func (c *Client) PredictBatch(ctx context.Context, reqs []api.PredictRequest) (api.BatchResponse, error) {
	var resp api.BatchResponse
	err := c.do(ctx, http.MethodPost, "/predict/batch", api.BatchRequest{Records: reqs}, &resp)
	return resp, err
}

// ModelInfo describes the model the API serves.
func (c *Client) ModelInfo(ctx context.Context) (inference.ModelInfo, error) {
	var info inference.ModelInfo
	err := c.do(ctx, http.MethodGet, "/model/info", nil, &info)
	return info, err
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	errBody := &api.ErrorBody{}
	req := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(errBody)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, c.base+path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		apiErr := &APIError{
			Status:  resp.StatusCode(),
			Code:    errBody.Error.Code,
			Message: errBody.Error.Message,
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(resp.String())
		}
		return apiErr
	}
	return nil
}
