package navtags

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// rawTag accepts both the service's native field names (tag, tagStyle) and
// the plain ones (value, style).
type rawTag struct {
	Name     string `json:"name"`
	Tag      any    `json:"tag"`
	Value    any    `json:"value"`
	TagStyle string `json:"tagStyle"`
	Style    string `json:"style"`
}

// DefaultDecoder is the [TagDecoder] used when a [Source] has no decoder.
//
// It accepts either a bare JSON array of tags or the service envelope
//
//	{"status": 0, "data": [{"name": "mail-inbox", "tag": 3, "tagStyle": "important"}]}
//
// A non-zero envelope status is an error. Tag values may be strings, numbers
// or booleans; they are converted to strings.
var DefaultDecoder TagDecoder = func(body []byte) ([]Tag, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}
	if trimmed[0] == '[' {
		return decodeTagArray(trimmed)
	}

	var envelope struct {
		Status *int            `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if envelope.Status != nil && *envelope.Status != 0 {
		return nil, fmt.Errorf("service returned status %d", *envelope.Status)
	}
	if len(envelope.Data) == 0 {
		return nil, errors.New("response has no data field")
	}
	return decodeTagArray(envelope.Data)
}

// JSONPathDecoder returns a [TagDecoder] that reads the tag array found at a
// dot-separated path, for services that nest tags deeper than "data".
//
// Example:
//
//	// For response: {"result": {"menus": [{"name": "inbox", "value": 2}]}}
//	decoder := navtags.JSONPathDecoder("result.menus")
func JSONPathDecoder(path string) TagDecoder {
	parts := strings.Split(path, ".")

	return func(body []byte) ([]Tag, error) {
		var data interface{}
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}

		current := data
		for _, part := range parts {
			obj, ok := current.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("path %q: %q is not an object", path, part)
			}
			current, ok = obj[part]
			if !ok {
				return nil, fmt.Errorf("path %q: field %q not found", path, part)
			}
		}

		if _, ok := current.([]interface{}); !ok {
			return nil, fmt.Errorf("path %q: not an array", path)
		}
		raw, err := json.Marshal(current)
		if err != nil {
			return nil, err
		}
		return decodeTagArray(raw)
	}
}

// FirstMatch returns a [TagDecoder] that tries decoders in order and returns
// the first successful result. If all fail, the errors are joined.
func FirstMatch(decoders ...TagDecoder) TagDecoder {
	return func(body []byte) ([]Tag, error) {
		errs := make([]error, 0, len(decoders))
		for _, decoder := range decoders {
			tags, err := decoder(body)
			if err == nil {
				return tags, nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return nil, errors.New("no decoders configured")
		}
		return nil, fmt.Errorf("no decoder matched: %w", errors.Join(errs...))
	}
}

// decodeTagArray decodes a JSON array of tag objects.
func decodeTagArray(data []byte) ([]Tag, error) {
	var raw []rawTag
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid tag array: %w", err)
	}

	tags := make([]Tag, 0, len(raw))
	for i, r := range raw {
		if r.Name == "" {
			return nil, fmt.Errorf("tag[%d]: name is required", i)
		}

		value := r.Tag
		if value == nil {
			value = r.Value
		}
		style := r.TagStyle
		if style == "" {
			style = r.Style
		}

		tags = append(tags, Tag{
			Name:  r.Name,
			Value: formatTagValue(value),
			Style: style,
		})
	}
	return tags, nil
}

// formatTagValue renders a JSON scalar as badge text.
func formatTagValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
