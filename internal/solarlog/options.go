package solarlog

import (
	"fmt"
	"net/http"
	"time"
)

type OptionFunc func(*Client) error

// WithHTTPClient replaces the default client. Its own timeout applies.
func WithHTTPClient(httpClient *http.Client) OptionFunc {
	return func(client *Client) error {
		if httpClient == nil {
			return fmt.Errorf("nil http client")
		}
		client.httpClient = httpClient
		return nil
	}
}

func WithTimeout(timeout time.Duration) OptionFunc {
	return func(client *Client) error {
		// Treat zero as noop
		if timeout == 0 {
			return nil
		}
		if timeout < 0 {
			return fmt.Errorf("negative device timeout: %v", timeout)
		}
		client.timeout = timeout
		return nil
	}
}
