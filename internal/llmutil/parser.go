// internal/llmutil/parser.go

// Package llmutil normalizes raw LLM output before any component trusts it:
// markdown fences are stripped, double-escaped text is collapsed, and JSON
// payloads are extracted from conversational wrappers.
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

	// codeBlockRegex extracts content wrapped in markdown, supporting language tags (python, diff, etc.).
	codeBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z0-9]*\\s*\\n?(.*?)\\s*\x60\x60\x60")
)

// ParseJSONResponse parses an LLM response string into a target Go type.
// It tolerates the common failure modes of JSON-mode generation: the object
// wrapped in a markdown fence, or embedded in conversational text.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	jsonStringToParse := response

	if strings.HasPrefix(response, "```") {
		if matches := jsonObjectRegex.FindStringSubmatch(response); len(matches) > 1 {
			jsonStringToParse = matches[1]
		}
	} else if !strings.HasPrefix(response, "{") && strings.Contains(response, "{") {
		// Find the object boundaries within surrounding prose.
		first := strings.Index(response, "{")
		last := strings.LastIndex(response, "}")
		if first != -1 && last > first {
			jsonStringToParse = response[first : last+1]
		}
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStringToParse), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(jsonStringToParse, 500))
	}

	return &result, nil
}

// CleanCodeOutput removes markdown fences (like ```python) around a code
// string and trims surrounding whitespace.
func CleanCodeOutput(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if matches := codeBlockRegex.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}
	return content
}

// UnescapeModelText collapses the escape sequences models sometimes emit
// literally inside already-decoded strings: escaped line separators,
// escaped tabs, and escaped quote characters. It only rewrites when the
// text carries escaped separators but no real ones, the signature of a
// double-encoded body; code that already spans real lines may legitimately
// contain escape sequences inside string literals and is left alone.
func UnescapeModelText(s string) string {
	if !strings.Contains(s, `\n`) || strings.Contains(s, "\n") {
		return s
	}
	replacer := strings.NewReplacer(
		`\r\n`, "\n",
		`\n`, "\n",
		`\t`, "\t",
		`\"`, `"`,
	)
	return replacer.Replace(s)
}

// NormalizeGeneratedCode applies the full cleanup contract to a generated
// code string: unescape, strip fences, trim. The empty string result means
// the response is unusable and the caller must fall back.
func NormalizeGeneratedCode(raw string) string {
	return CleanCodeOutput(UnescapeModelText(raw))
}

// truncateString truncates a string to a maximum length for error messages.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
