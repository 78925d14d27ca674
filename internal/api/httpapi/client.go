package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunedeck/internal/app/notification"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Message + " (" + e.Code + ")"
	}
	return e.Message
}

// Client talks to a running server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		token:   token,
		http:    httpClient,
	}
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	return &out, c.do(ctx, http.MethodGet, "/status", nil, &out)
}

func (c *Client) Queue(ctx context.Context) (*QueueResponse, error) {
	var out QueueResponse
	return &out, c.do(ctx, http.MethodGet, "/queue", nil, &out)
}

// ReplaceQueue starts playing a new queue. When nothing passes the filters
// the response is returned together with an *APIError.
func (c *Client) ReplaceQueue(ctx context.Context, req ReplaceQueueRequest) (*ReplaceQueueResponse, error) {
	var out ReplaceQueueResponse
	return &out, c.do(ctx, http.MethodPut, "/queue", req, &out)
}

func (c *Client) PlayNext(ctx context.Context, trackID string) (*StatusResponse, error) {
	var out StatusResponse
	return &out, c.do(ctx, http.MethodPost, "/queue", PlayNextRequest{TrackID: trackID}, &out)
}

func (c *Client) Next(ctx context.Context) (*StatusResponse, error) {
	return c.command(ctx, "/next")
}

func (c *Client) Previous(ctx context.Context) (*StatusResponse, error) {
	return c.command(ctx, "/previous")
}

func (c *Client) Pause(ctx context.Context) (*StatusResponse, error) {
	return c.command(ctx, "/pause")
}

func (c *Client) Resume(ctx context.Context) (*StatusResponse, error) {
	return c.command(ctx, "/resume")
}

func (c *Client) Stop(ctx context.Context) (*StatusResponse, error) {
	return c.command(ctx, "/stop")
}

func (c *Client) StartRadio(ctx context.Context) (*StatusResponse, error) {
	return c.command(ctx, "/radio")
}

func (c *Client) SetMode(ctx context.Context, mode string) (*StatusResponse, error) {
	var out StatusResponse
	return &out, c.do(ctx, http.MethodPut, "/mode", ModeRequest{Mode: mode}, &out)
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]notification.TrackInfo, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Tracks []notification.TrackInfo `json:"tracks"`
	}
	if err := c.do(ctx, http.MethodGet, "/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Tracks, nil
}

// Events calls fn for every notification until ctx is cancelled, the
// server closes the stream, or fn returns an error.
func (c *Client) Events(ctx context.Context, fn func(*notification.Notification) error) error {
	resp, err := c.send(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		return &APIError{Status: resp.StatusCode, Message: er.Error}
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var n notification.Notification
		if err := json.Unmarshal(line, &n); err != nil {
			return errors.Wrap(err, "failed to decode event")
		}
		if err := fn(&n); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "event stream broken")
	}
	return nil
}

func (c *Client) command(ctx context.Context, path string) (*StatusResponse, error) {
	var out StatusResponse
	return &out, c.do(ctx, http.MethodPost, path, nil, &out)
}

// do sends body as JSON and decodes the answer into out. An error answer
// without an error body, such as PUT /queue rejecting every track, is
// decoded into out as well and reported as an *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "failed to decode response")
		}
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		apiErr.Message = er.Error
		apiErr.Code = er.Code
		return apiErr
	}
	_ = json.Unmarshal(data, out)
	return apiErr
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s failed", method, path)
	}
	return resp, nil
}
