// Package validator checks flow files before execution.
// It parses every file upfront and walks nested step lists so that
// structural mistakes surface before any device command is sent.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/config"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/executor"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Files is the list of flow file paths in execution order.
	Files []string
	// Documents holds the parsed flows, parallel to Files.
	Documents []*flow.Document
	// Errors contains all validation errors found.
	Errors []error
	// Warnings are problems the executor tolerates at run time.
	Warnings []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// requiredFields lists the fields a step type cannot run without. The
// fields may also come from the step's config mapping.
var requiredFields = map[flow.StepType][]string{
	flow.StepAPIRequest:    {"url"},
	flow.StepRunScript:     {"script"},
	flow.StepSetVariable:   {"name"},
	flow.StepUnsetVariable: {"name"},
	flow.StepExtractOutput: {"name"},
	flow.StepDrag:          {"start", "end"},
}

// Validator validates flow files.
type Validator struct {
	// components holds the known custom component types; nil when the
	// component repository was not consulted.
	components map[string]bool
}

// New creates a new Validator. When componentTypes is nil, steps that are
// not built-in actions only produce warnings.
func New(componentTypes []string) *Validator {
	v := &Validator{}
	if componentTypes != nil {
		v.components = make(map[string]bool, len(componentTypes))
		for _, t := range componentTypes {
			v.components[strings.ToLower(t)] = true
		}
	}
	return v
}

// Validate validates files and directories. Directories are scanned
// recursively for .yaml, .yml and .json files.
func (v *Validator) Validate(paths ...string) *Result {
	result := &Result{}
	validated := make(map[string]bool)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("cannot access: %v", err),
			})
			continue
		}

		files := []string{path}
		if info.IsDir() {
			files, err = collectFlowFiles(path)
			if err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					File:    path,
					Message: fmt.Sprintf("failed to scan directory: %v", err),
				})
				continue
			}
		}

		for _, file := range files {
			if validated[file] {
				continue
			}
			validated[file] = true
			v.validateFile(file, result)
		}
	}

	return result
}

// collectFlowFiles finds all flow files in a directory.
func collectFlowFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".json":
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

func (v *Validator) validateFile(filePath string, result *Result) {
	doc, err := flow.ParseFile(filePath)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    filePath,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return
	}

	before := len(result.Errors)

	if _, err := config.MergeRuntime(config.DefaultRuntime(), doc.Runtime); err != nil {
		result.Errors = append(result.Errors, &ValidationError{File: filePath, Message: err.Error()})
	}
	for _, variable := range doc.Variables {
		if s := strings.ToLower(variable.Scope); s != "" && vars.ParseScope(s) != vars.Scope(s) {
			result.Warnings = append(result.Warnings, &ValidationError{
				File:    filePath,
				Message: fmt.Sprintf("variable %s: unknown scope %q, local is used", variable.Name, variable.Scope),
			})
		}
	}
	if len(doc.Steps) == 0 {
		result.Warnings = append(result.Warnings, &ValidationError{File: filePath, Message: "flow has no steps"})
	}

	v.validateSteps(filePath, "steps", doc.Steps, result)

	if len(result.Errors) == before {
		result.Files = append(result.Files, filePath)
		result.Documents = append(result.Documents, doc)
	}
}

// validateSteps checks each step and descends into its nested step lists.
// at is the location of the list, e.g. steps[2].then_steps.
func (v *Validator) validateSteps(file, at string, steps []flow.Step, result *Result) {
	for i, raw := range steps {
		loc := fmt.Sprintf("%s[%d]", at, i+1)
		fail := func(format string, args ...interface{}) {
			result.Errors = append(result.Errors, &ValidationError{
				File:    file,
				Message: loc + ": " + fmt.Sprintf(format, args...),
			})
		}
		warn := func(format string, args ...interface{}) {
			result.Warnings = append(result.Warnings, &ValidationError{
				File:    file,
				Message: loc + ": " + fmt.Sprintf(format, args...),
			})
		}

		step := raw.Clone()
		step.MergeConfig()
		typ := step.Type()

		switch {
		case typ == "":
			fail("step has no type")
		case vars.HasPlaceholder(string(typ)):
			// resolved at run time
		case step.Kind() == flow.KindCustom:
			if v.components != nil && !v.components[string(typ)] {
				fail("unknown custom component %q", step.RawType())
			}
		case executor.Supported(typ):
			v.validateFields(step, fail)
		case v.components == nil:
			warn("%q is not a built-in action; it runs only if a component of that type exists", step.RawType())
		case !v.components[string(typ)]:
			warn("unknown step type %q will be skipped", step.RawType())
		}

		for _, key := range flow.NestedStepKeys {
			nested, err := raw.Steps(key)
			if err != nil {
				fail("%s: %v", key, err)
				continue
			}
			v.validateSteps(file, loc+"."+key, nested, result)
		}
	}
}

// validateFields checks required fields and the static parts of control
// flow steps. Templated values are left to the executor.
func (v *Validator) validateFields(step flow.Step, fail func(string, ...interface{})) {
	for _, field := range requiredFields[step.Type()] {
		if val, ok := step[field]; !ok || val == nil || val == "" {
			fail("%s requires %s", step.RawType(), field)
		}
	}

	if step.Type() != flow.StepLoop {
		return
	}
	mode := step.String("mode", executor.LoopCount)
	if vars.HasPlaceholder(mode) {
		return
	}
	switch mode {
	case executor.LoopCount:
	case executor.LoopForeach:
		if !step.Has("items") {
			fail("foreach loop requires items")
		}
	case executor.LoopCondition:
		if !step.Has("expression") && !step.Has("left") {
			fail("condition loop requires left or expression")
		}
	default:
		fail("unknown loop mode %q", mode)
	}
}
