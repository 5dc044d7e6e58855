package solarlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20

	// GroupLiveData and KeyLiveData select the live data register map.
	GroupLiveData = "801"
	KeyLiveData   = "170"
)

// liveDataRequest is the read request for register group 801/170: {"801":{"170":null}}.
var liveDataRequest = []byte(`{"` + GroupLiveData + `":{"` + KeyLiveData + `":null}}`)

// Address locates the device on the local network
type Address struct {
	Host string
	Port int
}

// URL returns the JSON endpoint of the device
func (a Address) URL() string {
	return fmt.Sprintf("http://%s/getjp", net.JoinHostPort(a.Host, strconv.Itoa(a.Port)))
}

// Client talks to the Solar-Log JSON endpoint. It holds no per-call state.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

func NewClient(address Address, opts ...OptionFunc) (*Client, error) {
	if address.Host == "" {
		return nil, fmt.Errorf("invalid or missing device host")
	}
	if address.Port <= 0 {
		return nil, fmt.Errorf("invalid device port %d", address.Port)
	}

	client := &Client{
		endpoint: address.URL(),
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		if err := o(client); err != nil {
			return nil, err
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: client.timeout}
	}
	return client, nil
}

// Endpoint returns the URL requests are sent to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// FetchLiveData requests the live data register map and returns the decoded body untouched.
func (c *Client) FetchLiveData(ctx context.Context) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(liveDataRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to build device request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DeviceCommunicationError{Endpoint: c.endpoint, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &DeviceCommunicationError{Endpoint: c.endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &DeviceCommunicationError{Endpoint: c.endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("body is not a JSON object: %v", err)}
	}
	if payload == nil {
		return nil, &MalformedResponseError{Reason: "body is null"}
	}
	return payload, nil
}
