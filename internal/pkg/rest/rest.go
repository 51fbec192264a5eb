// Package rest is a small JSON-over-HTTPS client shared by the device
// registry and the manufacturer integrations.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/autopeer-io/telehub/pkg/log"
)

// MaxResponseLength caps how much of a response body is read.
const MaxResponseLength = 1 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http error %d on %s %s", e.Code, e.Method, e.URL)
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string

	authHeader string
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  "telehub",
	}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		c.authHeader = ""
		return
	}
	c.authHeader = "Bearer " + token
}

func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, in, out any) error {
	return c.Do(ctx, http.MethodPost, endpoint, in, out)
}

// Do sends in as JSON to endpoint and decodes the response into out. Either
// may be nil.
func (c *Client) Do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error encoding request to %s: %w", endpoint, err)
		}
		body = bytes.NewReader(b)
	}
	return c.send(ctx, method, endpoint, "application/json", body, out)
}

func (c *Client) send(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	target := c.BaseURL + "/" + strings.TrimPrefix(endpoint, "/")

	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("error constructing request to %s: %w", endpoint, err)
	}
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", c.UserAgent)
	if c.authHeader != "" {
		request.Header.Set("Authorization", c.authHeader)
	}

	log.Debug("Requesting", "method", method, "url", target)
	response, err := c.HTTPClient.Do(request)
	if err != nil {
		return fmt.Errorf("error fetching %s: %w", endpoint, err)
	}
	defer response.Body.Close()

	reader := io.LimitedReader{R: response.Body, N: MaxResponseLength}
	payload, err := io.ReadAll(&reader)
	if err != nil {
		return err
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &StatusError{Method: method, URL: target, Code: response.StatusCode, Body: string(payload)}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("error decoding response from %s: %w", endpoint, err)
	}
	return nil
}
