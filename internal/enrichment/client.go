// Package enrichment annotates new incidents with an image classifier.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/resilio/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 1 << 20
)

// Config holds classifier client configuration.
type Config struct {
	URL       string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
}

// AnalyzeRequest is the classifier request body.
type AnalyzeRequest struct {
	EmergencyID string `json:"emergencyId"`
	ImageURL    string `json:"imageUrl"`
}

type analyzeResponse struct {
	Analysis *domain.AIAnalysis `json:"analysis"`
}

// Client calls the classifier service.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a classifier client.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: limiter,
	}
}

// Analyze submits an image for classification.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*domain.AIAnalysis, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("rate limiter: %v", err)}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	recordAnalyzeDuration(time.Since(start))
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return c.handleResponse(resp, req.EmergencyID)
}

func (c *Client) handleResponse(resp *http.Response, incidentID string) (*domain.AIAnalysis, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &UpstreamError{Code: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("unexpected status: %s", truncate(string(body), 200)),
		}
	}

	var decoded analyzeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &UpstreamError{Code: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if decoded.Analysis == nil {
		return nil, &UpstreamError{Code: resp.StatusCode, Message: "response has no analysis"}
	}

	slog.Debug("classifier analysis received", "incident_id", incidentID, "severity", decoded.Analysis.Severity)
	return decoded.Analysis, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
