package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")

// Extract pulls the JSON payload out of an LLM response that may wrap it in a
// markdown code fence or surrounding prose. The returned text is not
// guaranteed to parse.
func Extract(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```") {
		if m := fencePattern.FindStringSubmatch(response); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
		// Opening fence without a closing one, typically a truncated response.
		if i := strings.Index(response, "```"); i >= 0 {
			rest := response[i+3:]
			rest = strings.TrimPrefix(rest, "json")
			rest = strings.TrimPrefix(rest, "JSON")
			response = strings.TrimSpace(rest)
		}
	}

	start := strings.IndexAny(response, "{[")
	if start < 0 {
		return response
	}
	closer := "}"
	if response[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(response, closer)
	if end > start {
		return response[start : end+1]
	}
	// No matching closer: keep everything from the opener so repair can
	// balance it.
	return response[start:]
}

// ErrTrailingData is returned by Parse when a complete value is followed by
// more non-whitespace input.
var ErrTrailingData = errors.New("unexpected data after top-level value")

// Parse decodes exactly one JSON value. Numbers are kept as json.Number so
// integers round-trip without loss.
func Parse(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}
	return v, nil
}

// Marshal encodes a decoded value compactly without HTML escaping.
func Marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
