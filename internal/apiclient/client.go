package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"castspc/internal/api"
)

// ErrAPIUnavailable is returned when no daemon API is configured or reachable.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// StatusError is a non-2xx reply from the daemon.
type StatusError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("daemon returned status %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request " + e.RequestID + ")"
	}
	return msg
}

// Client talks to the daemon over HTTP.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// New builds a client for the daemon listening on bind. An empty bind yields a nil client.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		http:  &http.Client{Timeout: 10 * time.Second},
		token: strings.TrimSpace(token),
	}, nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	_, err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Chart fetches the control chart.
func (c *Client) Chart(ctx context.Context) (api.ChartResponse, error) {
	var out api.ChartResponse
	_, err := c.do(ctx, http.MethodGet, "/api/chart", nil, nil, &out)
	return out, err
}

// Sample fetches the current defect-rate sample. ok is false when the rate window is empty.
func (c *Client) Sample(ctx context.Context) (api.SampleResponse, bool, error) {
	var out api.SampleResponse
	code, err := c.do(ctx, http.MethodGet, "/api/sample", nil, nil, &out)
	if err != nil {
		return api.SampleResponse{}, false, err
	}
	return out, code != http.StatusNoContent, nil
}

// Stats fetches stored sample statistics for the trailing hours.
func (c *Client) Stats(ctx context.Context, hours int) (api.StatsResponse, error) {
	values := url.Values{}
	if hours > 0 {
		values.Set("hours", strconv.Itoa(hours))
	}
	var out api.StatsResponse
	_, err := c.do(ctx, http.MethodGet, "/api/stats", values, nil, &out)
	return out, err
}

// Samples lists stored chart samples for the trailing hours.
func (c *Client) Samples(ctx context.Context, hours int) (api.SamplesResponse, error) {
	values := url.Values{}
	if hours > 0 {
		values.Set("hours", strconv.Itoa(hours))
	}
	var out api.SamplesResponse
	_, err := c.do(ctx, http.MethodGet, "/api/samples", values, nil, &out)
	return out, err
}

// ForceUpdate appends a chart sample now.
func (c *Client) ForceUpdate(ctx context.Context) (api.UpdateResponse, error) {
	var out api.UpdateResponse
	_, err := c.do(ctx, http.MethodPost, "/api/chart/update", nil, nil, &out)
	return out, err
}

// Reset clears all SPC state on the daemon.
func (c *Client) Reset(ctx context.Context) (api.ResetResponse, error) {
	var out api.ResetResponse
	_, err := c.do(ctx, http.MethodPost, "/api/reset", nil, nil, &out)
	return out, err
}

// SetCollecting pauses or resumes measurement collection.
func (c *Client) SetCollecting(ctx context.Context, enabled bool) (api.CollectionResponse, error) {
	var out api.CollectionResponse
	_, err := c.do(ctx, http.MethodPost, "/api/collection", nil, api.CollectionRequest{Enabled: &enabled}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (int, error) {
	if c == nil {
		return 0, ErrAPIUnavailable
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		requestID := apiErr.RequestID
		if requestID == "" {
			requestID = resp.Header.Get("X-Request-ID")
		}
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Message: apiErr.Error, RequestID: requestID}
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}

// IsUnauthorized reports whether the daemon rejected the bearer token.
func IsUnauthorized(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized
}
