package solarlog

import (
	"fmt"
	"strings"
)

// DeviceCommunicationError is returned when the device cannot be reached or
// answers with anything but 200 OK.
type DeviceCommunicationError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *DeviceCommunicationError) Error() string {
	if e.StatusCode == 0 || e.Err != nil {
		return fmt.Sprintf("error communicating with Solar-Log at %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("error communicating with Solar-Log at %s: got response '%d'", e.Endpoint, e.StatusCode)
}

func (e *DeviceCommunicationError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when the device answered 200 but the
// body lacks the expected structure.
type MalformedResponseError struct {
	Path   []string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	if len(e.Path) == 0 {
		return "malformed Solar-Log response: " + e.Reason
	}
	return fmt.Sprintf("malformed Solar-Log response at '%s': %s", strings.Join(e.Path, "."), e.Reason)
}
