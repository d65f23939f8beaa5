package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimestamp is wrapped by every TimestampError.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// TimestampError reports why a timestamp could not be built.
type TimestampError struct {
	Input  string
	Reason string
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("invalid timestamp %q: %s", e.Input, e.Reason)
}

func (e *TimestampError) Unwrap() error {
	return ErrInvalidTimestamp
}

// Timestamp is an offset from the start of the source media with millisecond
// precision. The zero value is the start of the media.
type Timestamp struct {
	d time.Duration
}

// MaxHours is the largest hour component a Timestamp accepts.
const MaxHours = 9999

// NewTimestamp validates the components and returns the matching offset.
// Minutes and seconds must be below 60 and hours at most MaxHours.
func NewTimestamp(hours, minutes, seconds, millis int) (Timestamp, error) {
	input := fmt.Sprintf("%d:%d:%d.%d", hours, minutes, seconds, millis)
	switch {
	case hours < 0 || minutes < 0 || seconds < 0 || millis < 0:
		return Timestamp{}, &TimestampError{Input: input, Reason: "negative component"}
	case hours > MaxHours:
		return Timestamp{}, &TimestampError{Input: input, Reason: "hours out of range"}
	case minutes > 59:
		return Timestamp{}, &TimestampError{Input: input, Reason: "minutes out of range"}
	case seconds > 59:
		return Timestamp{}, &TimestampError{Input: input, Reason: "seconds out of range"}
	case millis > 999:
		return Timestamp{}, &TimestampError{Input: input, Reason: "milliseconds out of range"}
	}

	d := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
	return Timestamp{d: d}, nil
}

// ParseTimestamp parses "[[HH:]MM:]SS[.fff]". A comma is accepted in place of
// the dot so SRT timings parse too. Fractions longer than three digits are
// truncated to milliseconds.
func ParseTimestamp(s string) (Timestamp, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Timestamp{}, &TimestampError{Input: s, Reason: "empty"}
	}

	clock, fraction, hasFraction := strings.Cut(strings.Replace(raw, ",", ".", 1), ".")
	parts := strings.Split(clock, ":")
	if len(parts) > 3 {
		return Timestamp{}, &TimestampError{Input: s, Reason: "too many components"}
	}

	values := make([]int, 3)
	offset := 3 - len(parts)
	for i, part := range parts {
		n, err := parseDigits(part)
		if err != nil {
			return Timestamp{}, &TimestampError{Input: s, Reason: err.Error()}
		}
		values[offset+i] = n
	}

	millis := 0
	if hasFraction {
		if len(fraction) > 3 {
			fraction = fraction[:3]
		}
		for len(fraction) < 3 {
			fraction += "0"
		}
		n, err := parseDigits(fraction)
		if err != nil {
			return Timestamp{}, &TimestampError{Input: s, Reason: "bad fraction"}
		}
		millis = n
	}

	// A bare seconds or minutes field may exceed 59 when it is the leading unit.
	hours, minutes, seconds := values[0], values[1], values[2]
	switch len(parts) {
	case 1:
		minutes, seconds = seconds/60, seconds%60
		hours, minutes = minutes/60, minutes%60
	case 2:
		hours, minutes = minutes/60, minutes%60
	}

	ts, err := NewTimestamp(hours, minutes, seconds, millis)
	if err != nil {
		return Timestamp{}, &TimestampError{Input: s, Reason: err.(*TimestampError).Reason}
	}
	return ts, nil
}

func parseDigits(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty component")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-numeric component %q", s)
		}
	}
	return strconv.Atoi(s)
}

// Duration returns the offset as a time.Duration.
func (t Timestamp) Duration() time.Duration {
	return t.d
}

// Before reports whether t is strictly earlier than u.
func (t Timestamp) Before(u Timestamp) bool {
	return t.d < u.d
}

// After reports whether t is strictly later than u.
func (t Timestamp) After(u Timestamp) bool {
	return t.d > u.d
}

// String formats the offset as HH:MM:SS, adding .mmm when there is a fraction.
func (t Timestamp) String() string {
	total := t.d.Milliseconds()
	millis := total % 1000
	secs := total / 1000
	out := fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
	if millis != 0 {
		out += fmt.Sprintf(".%03d", millis)
	}
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (t Timestamp) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Timestamp) UnmarshalText(b []byte) error {
	ts, err := ParseTimestamp(string(b))
	if err != nil {
		return err
	}
	*t = ts
	return nil
}
