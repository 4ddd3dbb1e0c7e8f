// Package predictor is the client for the remote prediction service.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/yurifrl/exoprep/pkg/models"
)

// ErrSubmissionFailed covers every transport error or non-success response.
var ErrSubmissionFailed = errors.New("submission failed")

const (
	predictPath = "/predict"
	metricsPath = "/model_metrics"

	// maxErrorBody bounds how much of a failed response is kept for logs.
	maxErrorBody = 512
)

// Client talks to the prediction and metrics endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *log.Logger
}

// New creates a client for the service at baseURL. The timeout applies to
// each request on top of any context deadline.
func New(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// Predict posts p and returns the raw JSON result.
func (c *Client) Predict(ctx context.Context, p *models.Payload) (json.RawMessage, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: response is not valid json", ErrSubmissionFailed)
	}
	c.logger.Info("prediction received", "records", len(p.Records), "bytes", len(data))
	return json.RawMessage(data), nil
}

// Metrics fetches the model evaluation metrics.
func (c *Client) Metrics(ctx context.Context) (*models.Metrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+metricsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var m models.Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	return &m, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "method", req.Method, "url", req.URL.String(), "request_id", requestID, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrSubmissionFailed, err)
	}
	c.logger.Debug("response", "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "request_id", requestID, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		c.logger.Warn("unexpected status", "status", resp.StatusCode, "request_id", requestID, "body", snippet)
		return nil, fmt.Errorf("%w: status %d", ErrSubmissionFailed, resp.StatusCode)
	}
	return data, nil
}
