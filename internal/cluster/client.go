package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds every outbound peer call unless overridden.
const DefaultTimeout = 2 * time.Second

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON sends body as JSON to url and decodes the response into out when
// out is non-nil. Any status >= 300 is an error.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	return postJSON(ctx, httpClient, url, body, out)
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	return getJSON(ctx, httpClient, url, out)
}

func postJSON(ctx context.Context, c *http.Client, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return errors.Wrapf(err, "build request %s", url)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode %s", url)
}

func getJSON(ctx context.Context, c *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "build request %s", url)
	}
	resp, err := c.Do(req)
	if err != nil {
		return errors.Wrapf(err, "get %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode %s", url)
}

// Client talks to peer nodes over their HTTP surface. Every call is bounded
// by the client's timeout in addition to the caller's context.
//
// It implements both replication.Pusher and reconcile.Fetcher. A timeout is
// treated like any other failure.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient returns a Client whose calls time out after timeout.
// A non-positive timeout selects DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Timeout reports the per-call bound.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Push delivers value to the peer's /sync endpoint and returns the peer's
// value after it merged.
func (c *Client) Push(ctx context.Context, peer string, value int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out SyncResponse
	if err := postJSON(ctx, c.http, Endpoint(peer, "/sync"), SyncRequest{Counter: value}, &out); err != nil {
		return 0, err
	}
	return out.Counter, nil
}

// Fetch reads the peer's current counter from /counter.
func (c *Client) Fetch(ctx context.Context, peer string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out CounterResponse
	if err := getJSON(ctx, c.http, Endpoint(peer, "/counter"), &out); err != nil {
		return 0, err
	}
	if out.Counter < 0 {
		return 0, errors.Errorf("peer %s reported negative counter %d", peer, out.Counter)
	}
	return out.Counter, nil
}

// Endpoint joins a peer base URL and a path.
func Endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
