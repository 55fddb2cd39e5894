package flow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
)

var validate = validator.New()

// Decode fills target (a pointer to a params struct with json tags) from the
// step: `default` tags first, then the step's fields with weak typing, then
// `validate` rules. Failures are config errors naming the step.
func Decode(step Step, target interface{}) error {
	if err := defaults.Set(target); err != nil {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("step '%s': failed to apply defaults", step.Name())).WithCause(err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(map[string]interface{}(step)); err != nil {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("step '%s': %v", step.Name(), err)).WithCause(err)
	}

	if err := validate.Struct(target); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			var msgs []string
			for _, fieldErr := range validationErrors {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed validation (rule: %s)", fieldErr.Field(), fieldErr.Tag()))
			}
			return core.ErrInvalidConfig.
				WithMessage(fmt.Sprintf("step '%s': %s", step.Name(), strings.Join(msgs, "; "))).
				WithCause(err)
		}
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("step '%s': validation failed", step.Name())).WithCause(err)
	}

	return nil
}

// Seconds converts a duration given in (possibly fractional) seconds.
func Seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
