package ollama

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/quartoworks/shelfmark/pkg/errors"
)

var (
	fencedJSON     = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	listSeparators = regexp.MustCompile(`[\n,;]+`)
)

// listTrimCutset removes bullet detritus models like to decorate list
// entries with.
const listTrimCutset = " -*•\t"

// DecodeJSON unmarshals a model completion into v, tolerating the usual
// decorations: leading prose, markdown fences, trailing commentary. It
// tries the raw text first, then the first bracketed span, then a fenced
// ```json block.
func DecodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if json.Unmarshal([]byte(text), v) == nil {
		return nil
	}
	if span := bracketed(text); span != "" {
		if json.Unmarshal([]byte(span), v) == nil {
			return nil
		}
	}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if json.Unmarshal([]byte(m[1]), v) == nil {
			return nil
		}
	}
	return &errors.ParseError{Format: "json", Message: "no decodable JSON in completion"}
}

// bracketed returns the span from the first opening bracket to the last
// matching closer, whichever bracket kind appears first.
func bracketed(text string) string {
	openArr := strings.Index(text, "[")
	openObj := strings.Index(text, "{")

	open, closer := openArr, "]"
	if openArr == -1 || (openObj != -1 && openObj < openArr) {
		open, closer = openObj, "}"
	}
	if open == -1 {
		return ""
	}
	end := strings.LastIndex(text, closer)
	if end <= open {
		return ""
	}
	return text[open : end+1]
}

// SplitList parses a completion into list entries. JSON arrays (plain,
// embedded in prose, or fenced) keep only their string elements, and a
// bare JSON string counts as a one-entry list. Text that is not JSON at
// all falls back to splitting on newlines, commas, and semicolons with
// bullet characters trimmed.
func SplitList(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parsed any
	if DecodeJSON(text, &parsed) == nil {
		switch v := parsed.(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return []string{v}
			}
			return nil
		case []any:
			entries := make([]string, 0, len(v))
			for _, entry := range v {
				s, ok := entry.(string)
				if !ok {
					continue
				}
				if s = strings.TrimSpace(s); s != "" {
					entries = append(entries, s)
				}
			}
			return entries
		default:
			// Objects and scalars carry no list.
			return nil
		}
	}

	parts := listSeparators.Split(text, -1)
	entries := make([]string, 0, len(parts))
	for _, part := range parts {
		if cleaned := strings.Trim(part, listTrimCutset); cleaned != "" {
			entries = append(entries, cleaned)
		}
	}
	return entries
}
