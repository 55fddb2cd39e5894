package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New()

// Runtime holds the options that shape one run.
type Runtime struct {
	// RetryTimes is carried for compatibility with stored flows; step-level
	// retries are driven by each step's own retry_times.
	RetryTimes    int     `json:"retry_times" default:"3" validate:"gte=0"`
	RetryInterval float64 `json:"retry_interval" default:"0.5" validate:"gte=0"`
	StopOnError   bool    `json:"stop_on_error"`

	MaxComponentDepth   int  `json:"max_component_depth" default:"32" validate:"gte=1"`
	ScreenshotOnFailure bool `json:"screenshot_on_failure" default:"true"`
}

// DefaultRuntime returns the runtime options with every default applied.
func DefaultRuntime() Runtime {
	var r Runtime
	// defaults.Set only fails on malformed tags
	if err := defaults.Set(&r); err != nil {
		panic(fmt.Sprintf("config: invalid runtime defaults: %v", err))
	}
	return r
}

// MergeRuntime overlays raw (as found in a flow document or uiflow.yaml) on
// base. Keys absent from raw keep base's value. Values are weakly typed, so
// "3" and 3 are both accepted for retry_times.
func MergeRuntime(base Runtime, raw map[string]interface{}) (Runtime, error) {
	merged := base
	if len(raw) == 0 {
		return merged, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &merged,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return base, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return base, fmt.Errorf("invalid runtime options: %w", err)
	}

	if err := validate.Struct(merged); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			var msgs []string
			for _, fieldErr := range validationErrors {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed validation (rule: %s)", fieldErr.Field(), fieldErr.Tag()))
			}
			return base, fmt.Errorf("invalid runtime options: %s", strings.Join(msgs, "; "))
		}
		return base, fmt.Errorf("invalid runtime options: %w", err)
	}

	return merged, nil
}

// RetryIntervalDuration returns RetryInterval as a duration.
func (r Runtime) RetryIntervalDuration() time.Duration {
	return time.Duration(r.RetryInterval * float64(time.Second))
}
