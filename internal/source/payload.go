// Package source decodes the loosely-typed stream payloads produced by
// third-party provider modules. The payload shape is inherently dynamic, so
// it is modeled as a tagged variant over the handful of recognized shapes
// with a fixed fallthrough order rather than speculative casts all over the
// call sites.
package source

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trinityhades/luna-gateway/pkg/models"
)

// Shape identifies which recognized payload shape a decode matched
type Shape string

// Recognized payload shapes, in decode precedence order
const (
	ShapeStreamObjectList Shape = "streams_object_list"
	ShapeSourceObjectList Shape = "sources_object_list"
	ShapeStreamObject     Shape = "stream_object"
	ShapeStreamURLList    Shape = "streams_url_list"
	ShapeSourceURLList    Shape = "sources_url_list"
	ShapeStreamURL        Shape = "stream_url"
	ShapeNestedResult     Shape = "nested_result"
)

// ErrUnrecognizedPayload means the payload matched none of the recognized
// shapes
var ErrUnrecognizedPayload = errors.New("unrecognized stream payload shape")

// Payload is a decoded module payload
type Payload struct {
	Shape   Shape
	Sources []models.StreamSource
}

// Decode parses a raw module payload. The precedence order is fixed:
// streams (objects) > sources (objects) > stream (object) > streams
// (strings) > sources (strings) > stream (string), then one level of
// nesting under "result".
func Decode(data []byte) (*Payload, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return decodeMap(raw, false)
}

func decodeMap(raw map[string]any, nested bool) (*Payload, error) {
	if list, ok := objectList(raw["streams"]); ok {
		return payload(ShapeStreamObjectList, nested, decodeObjects(list)), nil
	}
	if list, ok := objectList(raw["sources"]); ok {
		return payload(ShapeSourceObjectList, nested, decodeObjects(list)), nil
	}
	if obj, ok := raw["stream"].(map[string]any); ok {
		return payload(ShapeStreamObject, nested, decodeObjects([]map[string]any{obj})), nil
	}
	if list, ok := stringList(raw["streams"]); ok {
		return payload(ShapeStreamURLList, nested, fromURLs(list)), nil
	}
	if list, ok := stringList(raw["sources"]); ok {
		return payload(ShapeSourceURLList, nested, fromURLs(list)), nil
	}
	if s, ok := raw["stream"].(string); ok && s != "" {
		return payload(ShapeStreamURL, nested, []models.StreamSource{{URL: s}}), nil
	}
	if !nested {
		if result, ok := raw["result"].(map[string]any); ok {
			return decodeMap(result, true)
		}
	}
	return nil, ErrUnrecognizedPayload
}

func payload(shape Shape, nested bool, sources []models.StreamSource) *Payload {
	if nested {
		shape = ShapeNestedResult
	}
	return &Payload{Shape: shape, Sources: sources}
}

// objectList matches a JSON array whose first element is an object
func objectList(v any) ([]map[string]any, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, false
	}
	var out []map[string]any
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, obj)
	}
	return out, true
}

// stringList matches a JSON array of strings
func stringList(v any) ([]string, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, false
	}
	var out []string
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func decodeObjects(objects []map[string]any) []models.StreamSource {
	var sources []models.StreamSource
	for _, obj := range objects {
		src := models.StreamSource{
			URL:  firstString(obj, "url", "file", "link", "stream"),
			Name: firstString(obj, "name", "title", "label"),
		}
		if src.URL == "" {
			continue
		}
		if headers, ok := obj["headers"].(map[string]any); ok {
			src.Headers = make(map[string]string, len(headers))
			for k, v := range headers {
				if s, ok := v.(string); ok {
					src.Headers[k] = s
				}
			}
		}
		if subs, ok := stringList(obj["subtitles"]); ok {
			src.Subtitles = subs
		}
		sources = append(sources, src)
	}
	return sources
}

func fromURLs(urls []string) []models.StreamSource {
	sources := make([]models.StreamSource, 0, len(urls))
	for i, u := range urls {
		if u == "" {
			continue
		}
		sources = append(sources, models.StreamSource{
			Name: fmt.Sprintf("Stream %d", i+1),
			URL:  u,
		})
	}
	return sources
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
