package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"careerkit-credits/pkg/catalog"
)

// ErrMalformedOutput means the completion could not be read as the
// feature's format.
var ErrMalformedOutput = errors.New("malformed generation output")

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\n?```$")

// StripFences removes a surrounding markdown code fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// Parse decodes a completion according to format.
func Parse(format catalog.Format, raw string) (interface{}, error) {
	text := StripFences(raw)
	switch format {
	case catalog.FormatJSON:
		var doc interface{}
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		if _, ok := doc.(map[string]interface{}); !ok {
			return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedOutput)
		}
		return doc, nil
	case catalog.FormatHTML:
		if !strings.Contains(text, "<") {
			return nil, fmt.Errorf("%w: no markup", ErrMalformedOutput)
		}
		return text, nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrMalformedOutput, format)
	}
}
