// Package period converts the month encodings seen across upstream sources
// into a single contract-relative month index.
//
// Accepted forms, in priority order:
//
//	13              number already in [1,60]
//	"2025-07"       calendar year-month, yields the month component (1-12)
//	"2025-07-15"    ISO date or datetime, yields the calendar month
//	"M13", "m07"    month token, digits in [1,60]
//	"13"            plain numeric string in [1,60]
//
// Anything else normalizes to 0, which never denotes a real month.
package period

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// MinMonth is the first valid contract month
	MinMonth = 1
	// MaxMonth is the last valid contract month (five-year engagements)
	MaxMonth = 60
	// Invalid is returned for values that cannot be normalized
	Invalid = 0
)

var (
	yearMonthPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	isoDatePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	tokenPattern     = regexp.MustCompile(`(?i)^m(\d{1,3})$`)
	numericPattern   = regexp.MustCompile(`^\d+$`)
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Reason describes why a value was rejected
type Reason string

const (
	ReasonEmpty       Reason = "empty"
	ReasonOutOfRange  Reason = "out_of_range"
	ReasonNotIntegral Reason = "not_integral"
	ReasonBadMonth    Reason = "bad_calendar_month"
	ReasonBadDate     Reason = "bad_date"
	ReasonUnsupported Reason = "unsupported_format"
	ReasonUnknownType Reason = "unknown_type"
)

// Error is returned by Parse for values that do not normalize to a month
type Error struct {
	Value  interface{}
	Reason Reason
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid period %v: %s", e.Value, e.Reason)
}

// Valid reports whether m is a usable month index
func Valid(m int) bool {
	return m >= MinMonth && m <= MaxMonth
}

// Normalize returns the month index for v, or 0 when v is not a valid period.
func Normalize(v interface{}) int {
	m, err := Parse(v)
	if err != nil {
		return Invalid
	}
	return m
}

// Parse is Normalize with the rejection reason exposed.
func Parse(v interface{}) (int, error) {
	switch value := v.(type) {
	case nil:
		return Invalid, &Error{Value: v, Reason: ReasonEmpty}
	case int:
		return inRange(v, int64(value))
	case int32:
		return inRange(v, int64(value))
	case int64:
		return inRange(v, value)
	case float32:
		return parseFloat(v, float64(value))
	case float64:
		return parseFloat(v, value)
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return inRange(v, i)
		}
		f, err := value.Float64()
		if err != nil {
			return Invalid, &Error{Value: v, Reason: ReasonUnsupported}
		}
		return parseFloat(v, f)
	case *int:
		if value == nil {
			return Invalid, &Error{Value: v, Reason: ReasonEmpty}
		}
		return inRange(v, int64(*value))
	case string:
		return parseString(value)
	default:
		return Invalid, &Error{Value: v, Reason: ReasonUnknownType}
	}
}

func parseFloat(orig interface{}, f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return Invalid, &Error{Value: orig, Reason: ReasonNotIntegral}
	}
	return inRange(orig, int64(f))
}

func inRange(orig interface{}, n int64) (int, error) {
	if n < MinMonth || n > MaxMonth {
		return Invalid, &Error{Value: orig, Reason: ReasonOutOfRange}
	}
	return int(n), nil
}

func parseString(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Invalid, &Error{Value: raw, Reason: ReasonEmpty}
	}

	if match := yearMonthPattern.FindStringSubmatch(s); match != nil {
		month, _ := strconv.Atoi(match[2])
		if month < 1 || month > 12 {
			return Invalid, &Error{Value: raw, Reason: ReasonBadMonth}
		}
		return month, nil
	}

	if isoDatePattern.MatchString(s) {
		for _, layout := range dateLayouts {
			// The calendar month is taken as written; no timezone conversion.
			if t, err := time.Parse(layout, s); err == nil {
				return int(t.Month()), nil
			}
		}
		return Invalid, &Error{Value: raw, Reason: ReasonBadDate}
	}

	if match := tokenPattern.FindStringSubmatch(s); match != nil {
		n, _ := strconv.ParseInt(match[1], 10, 64)
		return inRange(raw, n)
	}

	if numericPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Invalid, &Error{Value: raw, Reason: ReasonOutOfRange}
		}
		return inRange(raw, n)
	}

	return Invalid, &Error{Value: raw, Reason: ReasonUnsupported}
}
