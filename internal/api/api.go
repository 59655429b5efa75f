package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ChaseHampton/lapida/internal/client"
	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/ChaseHampton/lapida/internal/logging"
	"github.com/ChaseHampton/lapida/internal/search"
	"go.uber.org/zap"
)

const maxErrorBody = 512

// Fetcher is the transport used for every call.
type Fetcher interface {
	GetWithRetry(ctx context.Context, url string) (*client.Response, error)
}

// Bases hands out the current API base and forgets it when it stops
// answering. *discovery.Discoverer implements it.
type Bases interface {
	BaseURL(ctx context.Context) (string, error)
	Invalidate(ctx context.Context)
}

type Client struct {
	fetcher Fetcher
	bases   Bases
	logger  *zap.Logger
}

type Health struct {
	Status string `json:"status"`
	App    string `json:"app"`
}

func New(fetcher Fetcher, bases Bases, logger *zap.Logger) *Client {
	logger = logging.OrNop(logger)
	return &Client{fetcher: fetcher, bases: bases, logger: logger}
}

func (c *Client) ListMemorials(ctx context.Context) ([]domain.Memorial, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/memorials", nil, &raw); err != nil {
		return nil, err
	}
	return decodeList(raw)
}

func (c *Client) SearchMemorials(ctx context.Context, params search.SearchParams) (*search.SearchResponse, error) {
	var resp search.SearchResponse
	if err := c.get(ctx, "/memorials/search", params.Values(), &resp); err != nil {
		return nil, err
	}
	if resp.Memorials == nil {
		resp.Memorials = []domain.Memorial{}
	}
	return &resp, nil
}

func (c *Client) MemorialBySlug(ctx context.Context, slug string) (*domain.Memorial, error) {
	return c.memorial(ctx, "/memorials/by-slug/"+url.PathEscape(slug))
}

func (c *Client) MemorialByShare(ctx context.Context, share string) (*domain.Memorial, error) {
	return c.memorial(ctx, "/memorials/by-share/"+url.PathEscape(share))
}

func (c *Client) MemorialByID(ctx context.Context, id string) (*domain.Memorial, error) {
	return c.memorial(ctx, "/memorials/"+url.PathEscape(id))
}

func (c *Client) CompanyBySlug(ctx context.Context, slug string) (*domain.Company, error) {
	return c.company(ctx, "/companies/by-slug/"+url.PathEscape(slug))
}

func (c *Client) CompanyByID(ctx context.Context, id string) (*domain.Company, error) {
	return c.company(ctx, "/companies/"+url.PathEscape(id))
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) memorial(ctx context.Context, path string) (*domain.Memorial, error) {
	var env struct {
		domain.Memorial
		Wrapped *domain.Memorial `json:"memorial"`
	}
	if err := c.get(ctx, path, nil, &env); err != nil {
		return nil, err
	}
	m := env.Memorial
	if env.Wrapped != nil {
		m = *env.Wrapped
	}
	if m.ID == "" {
		return nil, fmt.Errorf("GET %s: empty memorial: %w", path, domain.ErrNotFound)
	}
	return &m, nil
}

func (c *Client) company(ctx context.Context, path string) (*domain.Company, error) {
	var env struct {
		domain.Company
		Wrapped *domain.Company `json:"company"`
	}
	if err := c.get(ctx, path, nil, &env); err != nil {
		return nil, err
	}
	co := env.Company
	if env.Wrapped != nil {
		co = *env.Wrapped
	}
	if co.ID == "" {
		return nil, fmt.Errorf("GET %s: empty company: %w", path, domain.ErrNotFound)
	}
	return &co, nil
}

// get resolves the base, performs the request and classifies the answer:
// 404 is ErrNotFound, transport failures and 5xx are network errors that also
// invalidate the discovered base, anything else non-2xx is a StatusError.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	base, err := c.bases.BaseURL(ctx)
	if err != nil {
		return err
	}
	u := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	resp, err := c.fetcher.GetWithRetry(ctx, u)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.bases.Invalidate(ctx)
		c.logger.Warn("api request failed", zap.String("url", u), zap.Error(err))
		return &domain.NetworkError{Op: http.MethodGet, URL: u, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", u, domain.ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError:
		c.bases.Invalidate(ctx)
		c.logger.Warn("api server error",
			zap.String("url", u),
			zap.Int("status", resp.StatusCode),
			zap.String("request_id", resp.RequestID))
		return &domain.NetworkError{Op: http.MethodGet, URL: u, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &domain.StatusError{StatusCode: resp.StatusCode, Body: errorBody(resp.Body)}
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}

// decodeList accepts both a bare array and {"memorials": [...]}.
func decodeList(raw json.RawMessage) ([]domain.Memorial, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []domain.Memorial{}, nil
	}
	var list []domain.Memorial
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode memorial list: %w", err)
		}
		return list, nil
	}
	var env struct {
		Memorials []domain.Memorial `json:"memorials"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode memorial list: %w", err)
	}
	if env.Memorials == nil {
		return nil, errors.New("decode memorial list: no memorials field")
	}
	return env.Memorials, nil
}

func errorBody(b []byte) string {
	var msg struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &msg) == nil {
		if msg.Message != "" {
			return msg.Message
		}
		if msg.Error != "" {
			return msg.Error
		}
	}
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
