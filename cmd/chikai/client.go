package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hyperjump/chikai/internal/models"
)

// apiClient talks to a running chikai server.
type apiClient struct {
	baseURL string
	http    *http.Client
	retries uint64
	backoff func() backoff.BackOff
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		retries: 3,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
}

// do sends one API request. Connection failures and gateway errors are
// retried with exponential backoff; API errors are returned immediately.
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	op := func() error {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode == http.StatusGatewayTimeout:
			return fmt.Errorf("server returned %s", resp.Status)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(decodeAPIError(resp))
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("invalid response: %w", err))
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(c.backoff(), c.retries), ctx))
}

func decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, apiErr.Error)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}

// Register implements ingest.Registrar so feed files can be imported remotely.
func (c *apiClient) Register(ctx context.Context, in *models.EventInput) (*models.Event, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", in, &created); err != nil {
		return nil, err
	}
	return &models.Event{ID: created.ID, Title: in.Title}, nil
}

func (c *apiClient) Similar(ctx context.Context, id string, k int) (*models.NeighborResponse, error) {
	path := "/api/v1/events/" + url.PathEscape(id) + "/similar"
	if k > 0 {
		path += "?k=" + strconv.Itoa(k)
	}
	var resp models.NeighborResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Neighbors(ctx context.Context, q *models.NeighborQuery) (*models.NeighborResponse, error) {
	var resp models.NeighborResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/neighbors", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) SearchCatalog(ctx context.Context, query string, limit int) ([]*models.CatalogHit, error) {
	v := url.Values{"q": {query}}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Results []*models.CatalogHit `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/catalog/search?"+v.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *apiClient) Build(ctx context.Context) (*models.Status, error) {
	var st models.Status
	if err := c.do(ctx, http.MethodPost, "/api/v1/index/build", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *apiClient) Status(ctx context.Context) (*models.Status, error) {
	var st models.Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *apiClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/events/"+url.PathEscape(id), nil, nil)
}
