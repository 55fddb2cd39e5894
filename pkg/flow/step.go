// Package flow handles parsing and representation of UI flow documents.
package flow

import (
	"fmt"
	"strings"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

// StepType represents the type of step.
type StepType string

// Step type constants.
const (
	// Interaction
	StepClick       StepType = "click"
	StepTouch       StepType = "touch"
	StepInput       StepType = "input"
	StepSwipe       StepType = "swipe"
	StepDoubleClick StepType = "double_click"
	StepLongPress   StepType = "long_press"
	StepDrag        StepType = "drag"
	StepSwipeTo     StepType = "swipe_to"

	// Conditional interaction
	StepImageExistsClick      StepType = "image_exists_click"
	StepImageExistsClickChain StepType = "image_exists_click_chain"

	// Utilities
	StepSetVariable   StepType = "set_variable"
	StepUnsetVariable StepType = "unset_variable"
	StepExtractOutput StepType = "extract_output"
	StepScreenshot    StepType = "screenshot"
	StepAPIRequest    StepType = "api_request"
	StepRunScript     StepType = "run_script"

	// Flow control
	StepWait     StepType = "wait"
	StepSleep    StepType = "sleep"
	StepIf       StepType = "if"
	StepLoop     StepType = "loop"
	StepSequence StepType = "sequence"
	StepTry      StepType = "try"

	// Assertions
	StepAssert        StepType = "assert"
	StepForeachAssert StepType = "foreach_assert"
)

// Step kinds.
const (
	KindBasic  = "basic"
	KindCustom = "custom"
)

// Keys holding nested step lists. Their contents are rendered lazily by the
// step that owns them.
var NestedStepKeys = []string{"steps", "then_steps", "else_steps", "try_steps", "catch_steps", "finally_steps"}

// IsNestedStepKey reports whether key holds a nested step list.
func IsNestedStepKey(key string) bool {
	for _, k := range NestedStepKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Step is one record of a flow: an action tag under "type", an optional
// "name", a "config" mapping and action-specific fields.
type Step map[string]interface{}

// Type returns the lower-cased action tag.
func (s Step) Type() StepType {
	return StepType(strings.ToLower(strings.TrimSpace(s.String("type", ""))))
}

// RawType returns the action tag as written.
func (s Step) RawType() string { return s.String("type", "") }

// Kind returns "basic" or "custom" (empty when unset).
func (s Step) Kind() string { return s.String("kind", "") }

// Name returns the step label, falling back to its type.
func (s Step) Name() string {
	if n := s.String("name", ""); n != "" {
		return n
	}
	if t := s.RawType(); t != "" {
		return t
	}
	return "unknown"
}

// Has reports whether key is present.
func (s Step) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Get returns the raw value for key.
func (s Step) Get(key string) interface{} { return s[key] }

// String returns key as text, or def when absent or nil.
func (s Step) String(key, def string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	return vars.ToString(v)
}

// StringOr returns the first non-empty string among keys, or def.
func (s Step) StringOr(def string, keys ...string) string {
	for _, k := range keys {
		if v := s.String(k, ""); v != "" {
			return v
		}
	}
	return def
}

// Float returns key as a number, def when absent. Malformed values are config errors.
func (s Step) Float(key string, def float64) (float64, error) {
	v, ok := s[key]
	if !ok || v == nil || v == "" {
		return def, nil
	}
	f, err := vars.ToFloat(v)
	if err != nil {
		return 0, s.invalid(key, v, err)
	}
	return f, nil
}

// Int returns key as an integer, def when absent. Malformed values are config errors.
func (s Step) Int(key string, def int) (int, error) {
	v, ok := s[key]
	if !ok || v == nil || v == "" {
		return def, nil
	}
	n, err := vars.ToInt(v)
	if err != nil {
		return 0, s.invalid(key, v, err)
	}
	return n, nil
}

// Bool returns key as a boolean, def when absent. Rendered strings such as
// "false" or "0" are honoured.
func (s Step) Bool(key string, def bool) bool {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	if str, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(str)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0", "":
			return false
		}
	}
	return vars.Truthy(v)
}

// Map returns key as a mapping, or nil.
func (s Step) Map(key string) map[string]interface{} {
	m, _ := s[key].(map[string]interface{})
	return m
}

// List returns key as a list, or nil.
func (s Step) List(key string) []interface{} {
	l, _ := s[key].([]interface{})
	return l
}

// Config returns the step's "config" mapping, or nil.
func (s Step) Config() map[string]interface{} { return s.Map("config") }

// Steps converts the nested step list under key. Absent keys yield nil.
func (s Step) Steps(key string) ([]Step, error) {
	raw, ok := s[key]
	if !ok || raw == nil {
		return nil, nil
	}
	return ToSteps(raw)
}

// MergeConfig copies config entries onto the top level. Keys already present
// on the step win.
func (s Step) MergeConfig() {
	for k, v := range s.Config() {
		if _, exists := s[k]; !exists {
			s[k] = v
		}
	}
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	if s == nil {
		return nil
	}
	return Step(deepCopyMap(s))
}

// Describe returns a short human-readable description.
func (s Step) Describe() string {
	name := s.String("name", "")
	typ := s.RawType()
	switch {
	case name != "" && typ != "" && name != typ:
		return fmt.Sprintf("%s (%s)", name, typ)
	case name != "":
		return name
	case typ != "":
		return typ
	default:
		return "unknown"
	}
}

func (s Step) invalid(key string, v interface{}, cause error) error {
	return core.ErrInvalidNumber.
		WithMessage(fmt.Sprintf("step '%s': field %s has invalid value %v", s.Name(), key, v)).
		WithCause(cause)
}

// ToSteps converts a decoded list into steps. Entries must be mappings.
func ToSteps(raw interface{}) ([]Step, error) {
	switch list := raw.(type) {
	case []Step:
		return list, nil
	case []map[string]interface{}:
		out := make([]Step, len(list))
		for i, m := range list {
			out[i] = Step(m)
		}
		return out, nil
	case []interface{}:
		out := make([]Step, 0, len(list))
		for i, item := range list {
			switch m := item.(type) {
			case map[string]interface{}:
				out = append(out, Step(m))
			case Step:
				out = append(out, m)
			default:
				return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("step %d must be a mapping, got %T", i+1, item))
			}
		}
		return out, nil
	default:
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("steps must be a list, got %T", raw))
	}
}

// DeepCopy copies maps and slices recursively; other values are shared.
func DeepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case Step:
		return Step(deepCopyMap(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = DeepCopy(item)
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = DeepCopy(v)
	}
	return out
}
