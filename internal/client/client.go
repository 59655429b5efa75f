package client

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Client struct {
	httpClient    *http.Client
	userAgent     string
	authToken     string
	retryAttempts int
	retryDelay    time.Duration
	logger        *zap.Logger
}

type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	Duration   time.Duration
	RequestID  string
}

func NewClient(cfg *config.HTTPConfig, logger *zap.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				MaxIdleConns:    cfg.MaxIdleConns,
				MaxConnsPerHost: cfg.MaxConnsPerHost,
				IdleConnTimeout: cfg.IdleConnTimeout,
			},
		},
		userAgent:     cfg.UserAgent,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        logging.OrNop(logger),
	}
	if cfg.AuthToken != nil {
		c.authToken = *cfg.AuthToken
	}
	return c
}

// NewWithHTTPClient wraps an existing http.Client, mostly for tests.
func NewWithHTTPClient(hc *http.Client, cfg *config.HTTPConfig, logger *zap.Logger) *Client {
	c := NewClient(cfg, logger)
	c.httpClient = hc
	return c
}

func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.makeRequest(ctx, http.MethodGet, url, nil)
}

// GetWithRetry retries transport failures and 5xx answers. Any other status
// is returned to the caller on the first attempt.
func (c *Client) GetWithRetry(ctx context.Context, url string) (*Response, error) {
	var lasterr error
	var last *Response
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(lasterr))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		response, err := c.Get(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lasterr = err
			last = nil
			continue
		}
		if response.StatusCode < 500 {
			return response, nil
		}
		last = response
		lasterr = nil
	}
	if last != nil {
		return last, nil
	}
	return nil, lasterr
}

func (c *Client) makeRequest(ctx context.Context, method, url string, body io.Reader) (*Response, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       responseBody,
		Duration:   duration,
		RequestID:  requestID,
	}
	c.logger.Debug("http request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
		zap.String("request_id", requestID))

	return response, nil
}
