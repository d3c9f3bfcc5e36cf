package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// rawRecord is an upstream JSON object whose fields may arrive under several
// aliases. Every accessor takes the aliases in priority order and uses the
// first one present with a non-null value.
type rawRecord map[string]json.RawMessage

func decodeRaw(data []byte) (rawRecord, error) {
	var r rawRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("record is null")
	}
	return r, nil
}

func (r rawRecord) lookup(keys ...string) (json.RawMessage, string, bool) {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		return raw, key, true
	}
	return nil, "", false
}

// str reads a string field. Numbers are accepted and kept as written.
func (r rawRecord) str(keys ...string) string {
	raw, _, ok := r.lookup(keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// value reads a field as a generic value, with numbers kept as json.Number
func (r rawRecord) value(keys ...string) interface{} {
	raw, _, ok := r.lookup(keys...)
	if !ok {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var v interface{}
	if err := decoder.Decode(&v); err != nil {
		return nil
	}
	return v
}

// amount reads a money field given as a number or a formatted string.
// An absent or null field yields an invalid NullDecimal and no error.
func (r rawRecord) amount(keys ...string) (decimal.NullDecimal, error) {
	raw, key, ok := r.lookup(keys...)
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	d, err := decodeAmount(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("field %s: %w", key, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func (r rawRecord) amountOrZero(keys ...string) (decimal.Decimal, error) {
	nd, err := r.amount(keys...)
	if err != nil {
		return decimal.Zero, err
	}
	if !nd.Valid {
		return decimal.Zero, nil
	}
	return nd.Decimal, nil
}

func (r rawRecord) amounts(keys ...string) ([]decimal.NullDecimal, error) {
	raw, key, ok := r.lookup(keys...)
	if !ok {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("field %s: expected an array: %w", key, err)
	}
	out := make([]decimal.NullDecimal, len(items))
	for i, item := range items {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			continue
		}
		d, err := decodeAmount(item)
		if err != nil {
			return nil, fmt.Errorf("field %s[%d]: %w", key, i, err)
		}
		out[i] = decimal.NewNullDecimal(d)
	}
	return out, nil
}

func (r rawRecord) integer(keys ...string) (*int, error) {
	raw, key, ok := r.lookup(keys...)
	if !ok {
		return nil, nil
	}
	d, err := decodeAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", key, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("field %s: %s is not an integer", key, d.String())
	}
	n := int(d.IntPart())
	return &n, nil
}

func (r rawRecord) boolean(keys ...string) bool {
	raw, _, ok := r.lookup(keys...)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	switch strings.ToLower(r.str(keys...)) {
	case "true", "yes", "si", "sí", "1":
		return true
	}
	return false
}

func (r rawRecord) strs(keys ...string) []string {
	raw, _, ok := r.lookup(keys...)
	if !ok {
		return nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

func (r rawRecord) timestamp(keys ...string) time.Time {
	s := r.str(keys...)
	if s == "" {
		return time.Time{}
	}
	t, err := ParseTimeWithFormats(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func decodeAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseDecimalFromString(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Zero, fmt.Errorf("expected a number, got %s", string(raw))
	}
	return decimal.NewFromString(n.String())
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// appendCandidates appends the non-empty values to out in order
func appendCandidates(out []string, values ...string) []string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
