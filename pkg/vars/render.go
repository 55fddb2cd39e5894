package vars

import (
	"regexp"
	"strings"
)

// placeholderRe matches {{ name }} and ${ name }.
var placeholderRe = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}|\$\{\s*([^}]+?)\s*\}`)

// HasPlaceholder reports whether s contains a template placeholder.
func HasPlaceholder(s string) bool {
	return placeholderRe.MatchString(s)
}

// Render substitutes placeholders in strings, walking maps and slices
// recursively. Other values are returned unchanged. Substituted text is not
// scanned again.
func (s *Store) Render(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return s.RenderString(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = s.Render(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = s.Render(item)
		}
		return out
	default:
		return value
	}
}

// RenderString substitutes every placeholder in text with the variable's
// string form. Missing or nil variables render as the empty string.
func (s *Store) RenderString(text string) string {
	if !strings.Contains(text, "{{") && !strings.Contains(text, "${") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		groups := placeholderRe.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[2]
		}
		return ToString(s.Get(strings.TrimSpace(name)))
	})
}
