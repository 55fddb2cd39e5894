package vars

import (
	"fmt"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
)

// ParsePath splits an extraction path such as "body.items[0].id" into its
// segments: ["body", "items", "0", "id"].
func ParsePath(path string) []string {
	var keys []string
	for _, part := range strings.Split(path, ".") {
		if !strings.Contains(part, "[") {
			if part != "" {
				keys = append(keys, part)
			}
			continue
		}
		base, rest, _ := strings.Cut(part, "[")
		if base != "" {
			keys = append(keys, base)
		}
		for _, idx := range strings.Split(rest, "[") {
			idx = strings.TrimRight(idx, "]")
			if idx != "" {
				keys = append(keys, idx)
			}
		}
	}
	return keys
}

// Extract walks path through nested maps and slices. A segment that is
// missing, out of range or resolves to nil fails with a resolution error
// naming that segment. An empty path returns value itself.
func Extract(value interface{}, path string) (interface{}, error) {
	keys := ParsePath(path)
	if len(keys) == 0 {
		return value, nil
	}

	current := gabs.Wrap(value)
	for _, key := range keys {
		next := current.Search(key)
		if next == nil || next.Data() == nil {
			return nil, core.ErrExtractFailed.
				WithMessage(fmt.Sprintf("path %q has no value at %q", path, key)).
				WithDetails(map[string]interface{}{"path": path, "segment": key})
		}
		current = next
	}
	return current.Data(), nil
}
