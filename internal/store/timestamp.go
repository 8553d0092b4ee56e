package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp is the canonical time representation of the whole system: integer
// milliseconds since the Unix epoch. Every inbound representation (ISO-8601
// strings, epoch-millisecond numbers, tagged time objects) is normalized into
// this type at the JSON boundary, so read-state comparisons downstream are
// always integer comparisons. Comparing heterogeneous representations is how
// "seen by" silently breaks.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to epoch milliseconds.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time converts back to time.Time.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t))
}

// Millis returns the raw epoch-millisecond value.
func (t Timestamp) Millis() int64 {
	return int64(t)
}

// After reports whether t is strictly later than other.
func (t Timestamp) After(other Timestamp) bool {
	return t > other
}

// AtOrAfter reports whether t is at or later than other. A reader with
// lastReadAt AtOrAfter a message's CreatedAt has seen that message.
func (t Timestamp) AtOrAfter(other Timestamp) bool {
	return t >= other
}

// MarshalJSON renders the canonical form, a bare epoch-millisecond number.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(t), 10)), nil
}

// taggedTime covers the structured time encodings seen on the wire: the
// native {"epoch_ms": N} tag and the legacy changefeed form
// {"$reql_type$": "TIME", "epoch_time": seconds}.
type taggedTime struct {
	EpochMillis  *int64   `json:"epoch_ms"`
	EpochSeconds *float64 `json:"epoch_time"`
}

// UnmarshalJSON accepts an epoch-millisecond number, an ISO-8601 string, or a
// tagged time object.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*t = 0
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case '{':
		var tagged taggedTime
		if err := json.Unmarshal(data, &tagged); err != nil {
			return fmt.Errorf("parse tagged time: %w", err)
		}
		switch {
		case tagged.EpochMillis != nil:
			*t = Timestamp(*tagged.EpochMillis)
		case tagged.EpochSeconds != nil:
			*t = Timestamp(*tagged.EpochSeconds * 1000)
		default:
			return fmt.Errorf("tagged time carries neither epoch_ms nor epoch_time")
		}
		return nil
	default:
		ms, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			// Fractional numbers are epoch seconds.
			secs, ferr := strconv.ParseFloat(trimmed, 64)
			if ferr != nil {
				return fmt.Errorf("parse timestamp %q: %w", trimmed, err)
			}
			*t = Timestamp(secs * 1000)
			return nil
		}
		*t = Timestamp(ms)
		return nil
	}
}

// ParseTimestamp parses a query-parameter timestamp: an epoch-millisecond
// integer or an RFC3339 string.
func ParseTimestamp(s string) (Timestamp, error) {
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Timestamp(ms), nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return FromTime(parsed), nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		return FromTime(parsed), nil
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}
