package timeparser

import (
	"fmt"
	"time"
)

const (
	// DeviceLayout is the Solar-Log local timestamp format, e.g. "15.08.18 10:58:45".
	DeviceLayout = "02.01.06 15:04:05"
	// UTCLayout renders UTC instants with an explicit +00:00 offset.
	UTCLayout = "2006-01-02T15:04:05-07:00"
)

// AmbiguousOrInvalidLocalTimeError is returned when a wall-clock time falls into
// a DST overlap (ambiguous) or a DST gap (non-existent) of the zone.
type AmbiguousOrInvalidLocalTimeError struct {
	Value     string
	Zone      string
	Ambiguous bool
}

func (e *AmbiguousOrInvalidLocalTimeError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("local time '%s' is ambiguous in %s", e.Value, e.Zone)
	}
	return fmt.Sprintf("local time '%s' does not exist in %s", e.Value, e.Zone)
}

// ParseDeviceTimestamp parses a naive device timestamp as wall-clock time in loc
// and returns the matching instant in UTC.
func ParseDeviceTimestamp(dateStr string, loc *time.Location) (time.Time, error) {
	naive, err := time.Parse(DeviceLayout, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, err)
	}

	t, err := InLocation(naive, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// InLocation interprets the wall clock of naive (its UTC fields) as local time in loc.
// Unlike time.Date it refuses to guess inside DST transitions.
func InLocation(naive time.Time, loc *time.Location) (time.Time, error) {
	var matches []time.Time
	for _, offset := range candidateOffsets(naive, loc) {
		candidate := naive.Add(-time.Duration(offset) * time.Second)
		if _, actual := candidate.In(loc).Zone(); actual == offset {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0].In(loc), nil
	case 0:
		return time.Time{}, &AmbiguousOrInvalidLocalTimeError{Value: naive.Format(DeviceLayout), Zone: loc.String()}
	default:
		return time.Time{}, &AmbiguousOrInvalidLocalTimeError{Value: naive.Format(DeviceLayout), Zone: loc.String(), Ambiguous: true}
	}
}

// FormatUTC renders t in UTC as ISO-8601 with a numeric offset.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(UTCLayout)
}

// candidateOffsets collects the distinct UTC offsets loc uses in the two days
// around naive. Zones never switch offset twice within that window.
func candidateOffsets(naive time.Time, loc *time.Location) []int {
	var offsets []int
	for _, shift := range []time.Duration{-24 * time.Hour, 0, 24 * time.Hour} {
		_, offset := naive.Add(shift).In(loc).Zone()
		seen := false
		for _, o := range offsets {
			if o == offset {
				seen = true
				break
			}
		}
		if !seen {
			offsets = append(offsets, offset)
		}
	}
	return offsets
}

// IsWithinTolerance checks if the reading timestamp is within tolerance of received time
func IsWithinTolerance(readingTime, receivedTime time.Time, tolerance time.Duration) bool {
	diff := readingTime.Sub(receivedTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
