package solarlog

import (
	"bytes"
	"encoding/json"
)

// Payload is the decoded response body of the device, keyed by register group.
type Payload map[string]json.RawMessage

// Registers is the register map below 801/170, keyed by register code.
type Registers map[string]json.RawMessage

// Registers walks 801 -> 170 and returns the live data register map.
func (p Payload) Registers() (Registers, error) {
	group, err := object(p, GroupLiveData, []string{GroupLiveData})
	if err != nil {
		return nil, err
	}
	registers, err := object(group, KeyLiveData, []string{GroupLiveData, KeyLiveData})
	if err != nil {
		return nil, err
	}
	return Registers(registers), nil
}

// String returns a mandatory string register.
func (r Registers) String(code string) (string, error) {
	raw, ok := r[code]
	if !ok || isNull(raw) {
		return "", &MalformedResponseError{Path: r.path(code), Reason: "missing register"}
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", &MalformedResponseError{Path: r.path(code), Reason: "register is not a string"}
	}
	return value, nil
}

// Number returns an optional numeric register with its literal kept exactly as
// the device sent it. Absent and null registers yield nil.
func (r Registers) Number(code string) (*json.Number, error) {
	raw, ok := r[code]
	if !ok || isNull(raw) {
		return nil, nil
	}
	// json.Number also accepts quoted numbers
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '"' {
		return nil, &MalformedResponseError{Path: r.path(code), Reason: "register is not a number"}
	}
	var value json.Number
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, &MalformedResponseError{Path: r.path(code), Reason: "register is not a number"}
	}
	return &value, nil
}

func (r Registers) path(code string) []string {
	return []string{GroupLiveData, KeyLiveData, code}
}

func object(m map[string]json.RawMessage, key string, path []string) (map[string]json.RawMessage, error) {
	raw, ok := m[key]
	if !ok {
		return nil, &MalformedResponseError{Path: path, Reason: "missing key"}
	}
	if isNull(raw) {
		return nil, &MalformedResponseError{Path: path, Reason: "value is null"}
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &MalformedResponseError{Path: path, Reason: "value is not an object"}
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
