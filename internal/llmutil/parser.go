// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fencedRegex extracts the body of a markdown code fence, with or without a
// language tag. \x60 is a backtick.
var fencedRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")

// ErrNoJSON is returned when a response contains no JSON object or array.
var ErrNoJSON = errors.New("llmutil: no JSON found in model response")

// ExtractJSON pulls the JSON payload out of a model response. It handles
// markdown fences and JSON embedded in conversational text.
func ExtractJSON(response string) (string, error) {
	s := strings.TrimSpace(response)
	if m := fencedRegex.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s, nil
	}

	// Take whichever structure opens first, up to its last closing bracket.
	obj := strings.Index(s, "{")
	arr := strings.Index(s, "[")
	open, closer := obj, "}"
	if obj == -1 || (arr != -1 && arr < obj) {
		open, closer = arr, "]"
	}
	if open == -1 {
		return "", ErrNoJSON
	}
	end := strings.LastIndex(s, closer)
	if end <= open {
		return "", ErrNoJSON
	}
	return s[open : end+1], nil
}

// ParseJSONResponse parses a model response into T.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(payload, 500))
	}
	return &result, nil
}

// Validator is implemented by wire types that can check themselves.
type Validator[T any] interface {
	*T
	Validate() error
}

// ParseValidated parses a model response into T and validates it.
func ParseValidated[T any, PT Validator[T]](response string) (*T, error) {
	result, err := ParseJSONResponse[T](response)
	if err != nil {
		return nil, err
	}
	if err := PT(result).Validate(); err != nil {
		return nil, fmt.Errorf("LLM response failed validation: %w", err)
	}
	return result, nil
}

// truncateString truncates s to at most maxLen bytes without splitting a rune.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
