package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrNoJSON = errors.New("no JSON object found in response")

// ExtractError reports model output that contained no parseable JSON object.
type ExtractError struct {
	Candidate string
	Err       error
}

func (e *ExtractError) Error() string {
	if e.Candidate == "" {
		return e.Err.Error()
	}
	c := e.Candidate
	if len(c) > 200 {
		c = c[:200] + "..."
	}
	return fmt.Sprintf("JSON parse failed: %v (candidate: %s)", e.Err, c)
}

func (e *ExtractError) Unwrap() error { return e.Err }

var fencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

var quoteCleaner = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"„", `"`,
	"‘", "'",
	"’", "'",
	"`", "",
)

// ExtractJSON pulls the first JSON object out of a model response that may
// wrap it in a markdown fence or prose.
func ExtractJSON(text string) (map[string]any, error) {
	candidate := jsonCandidate(text)
	if candidate == "" {
		return nil, &ExtractError{Err: ErrNoJSON}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(candidate), &out); err == nil {
		return out, nil
	}

	out = nil
	if err := json.Unmarshal([]byte(quoteCleaner.Replace(candidate)), &out); err != nil {
		return nil, &ExtractError{Candidate: candidate, Err: err}
	}
	return out, nil
}

func jsonCandidate(text string) string {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		if strings.HasPrefix(inner, "{") {
			return inner
		}
	}
	return balancedObject(text)
}

// balancedObject returns the first {...} span with matched braces. Braces
// inside string literals do not count. A string closes only on the quote
// that matches its opener, so “ ” inside an ASCII string are plain text and
// a smart-quoted object is still found intact.
func balancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	var closer rune
	escaped := false
	for i, r := range text[start:] {
		if closer != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == closer:
				closer = 0
			}
			continue
		}
		switch r {
		case '"':
			closer = '"'
		case '“':
			closer = '”'
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : start+i+1]
			}
		}
	}
	return ""
}
