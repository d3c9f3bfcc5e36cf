package source

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// DefaultRecordPaths are the JSONPath expressions tried, in order, to find
// the record array inside a wrapped payload
var DefaultRecordPaths = []string{"$.data", "$.data.data", "$.data.items", "$.items", "$.forecast", "$.records"}

// ExtractRecords returns the record array of a JSON payload. The payload may
// be a bare array or an object wrapping the array under one of paths. An
// empty payload, an empty object or a null wrapper has no records.
func ExtractRecords(data []byte, paths []string) ([]json.RawMessage, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if len(paths) == 0 {
		paths = DefaultRecordPaths
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid json payload: %w", err)
	}

	items, ok := doc.([]interface{})
	if !ok {
		obj, isObject := doc.(map[string]interface{})
		if !isObject {
			return nil, fmt.Errorf("payload is neither an array nor an object")
		}
		var err error
		if items, err = findArray(obj, paths); err != nil {
			return nil, err
		}
	}

	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("cannot re-encode record: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// findArray returns the first array found under paths. An object with no
// array, or with null under every path, has no records. A scalar under a
// path means the payload is not a record set.
func findArray(obj map[string]interface{}, paths []string) ([]interface{}, error) {
	for _, path := range paths {
		val, err := jsonpath.Get(path, obj)
		if err != nil || val == nil {
			continue
		}
		switch v := val.(type) {
		case []interface{}:
			return v, nil
		case map[string]interface{}:
			continue
		default:
			return nil, fmt.Errorf("%s holds %T, not a record array", path, val)
		}
	}
	return nil, nil
}
