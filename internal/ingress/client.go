package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/septivank/solarlog-reader/internal/reading"
)

const (
	// DeviceType tags every published reading
	DeviceType = "SOLARLOG"
	// TokenHeader carries the device token
	TokenHeader = "x-device-token"

	ingressPath    = "ingress"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 10
)

// Message is the ingress request body
type Message struct {
	DeviceType string          `json:"deviceType"`
	Data       reading.Reading `json:"data"`
}

// Outcome is the API's answer to a publish. Only 202 Accepted counts as success.
type Outcome struct {
	StatusCode int
	Body       string
}

// Accepted reports whether the API took the reading
func (o Outcome) Accepted() bool {
	return o.StatusCode == http.StatusAccepted
}

// PublishTransportError means the API could not be reached at all.
type PublishTransportError struct {
	URL string
	Err error
}

func (e *PublishTransportError) Error() string {
	return fmt.Sprintf("failed to reach ingress API at %s: %v", e.URL, e.Err)
}

func (e *PublishTransportError) Unwrap() error {
	return e.Err
}

// Client posts readings to the logreposit ingress endpoint
type Client struct {
	url         string
	deviceToken string
	httpClient  *http.Client
}

type OptionFunc func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(httpClient *http.Client) OptionFunc {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the request timeout of the default HTTP client
func WithTimeout(timeout time.Duration) OptionFunc {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient creates a client posting to apiBaseURL + "ingress". The base URL is
// used as given, so it is expected to end with a slash.
func NewClient(apiBaseURL, deviceToken string, opts ...OptionFunc) *Client {
	c := &Client{
		url:         apiBaseURL + ingressPath,
		deviceToken: deviceToken,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// URL returns the ingress endpoint
func (c *Client) URL() string {
	return c.url
}

// Publish sends r to the API. A non-202 answer is returned as an Outcome, not an
// error; only transport failures produce an error.
func (c *Client) Publish(ctx context.Context, r reading.Reading) (Outcome, error) {
	body, err := json.Marshal(Message{DeviceType: DeviceType, Data: r})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to marshal reading: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to build ingress request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, c.deviceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, &PublishTransportError{URL: c.url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// a body read failure still leaves a usable status code
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	return Outcome{StatusCode: resp.StatusCode, Body: string(respBody)}, nil
}
