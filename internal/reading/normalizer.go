package reading

import (
	"errors"
	"fmt"
	"time"

	"github.com/septivank/solarlog-reader/internal/solarlog"
	"github.com/septivank/solarlog-reader/tools/timeparser"
)

// Normalizer turns raw device payloads into Readings for one device timezone
type Normalizer struct {
	location *time.Location
}

// NewNormalizer creates a normalizer for the given IANA timezone
func NewNormalizer(timezone string) (*Normalizer, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone '%s': %w", timezone, err)
	}
	return &Normalizer{location: loc}, nil
}

// Location returns the device timezone
func (n *Normalizer) Location() *time.Location {
	return n.location
}

// Normalize builds a Reading from payload using the given IANA timezone.
func Normalize(payload solarlog.Payload, timezone string) (Reading, error) {
	n, err := NewNormalizer(timezone)
	if err != nil {
		return Reading{}, err
	}
	return n.Normalize(payload)
}

// Normalize extracts registers 100-116. Telemetry values are copied as reported;
// the timestamp is read as wall-clock time in the device timezone and converted to UTC.
func (n *Normalizer) Normalize(payload solarlog.Payload) (Reading, error) {
	regs, err := payload.Registers()
	if err != nil {
		return Reading{}, err
	}

	localTime, err := regs.String(TimestampRegister)
	if err != nil {
		return Reading{}, err
	}
	takenAt, err := timeparser.ParseDeviceTimestamp(localTime, n.location)
	if err != nil {
		var localErr *timeparser.AmbiguousOrInvalidLocalTimeError
		if errors.As(err, &localErr) {
			return Reading{}, err
		}
		return Reading{}, &solarlog.MalformedResponseError{
			Path:   []string{solarlog.GroupLiveData, solarlog.KeyLiveData, TimestampRegister},
			Reason: err.Error(),
		}
	}

	r := Reading{
		Date:    timeparser.FormatUTC(takenAt),
		takenAt: takenAt,
	}
	for _, reg := range registers {
		value, err := regs.Number(reg.code)
		if err != nil {
			return Reading{}, err
		}
		*reg.field(&r) = value
	}

	return r, nil
}
