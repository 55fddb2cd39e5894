package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Variable is an initial variable binding supplied with a flow.
type Variable struct {
	Name  string
	Scope string
	Value interface{}
}

// Document is a parsed flow file.
type Document struct {
	SourcePath string
	Name       string
	Steps      []Step
	Variables  []Variable
	Runtime    map[string]interface{}
}

// DisplayName returns the document name, falling back to the source file
// name without its extension.
func (d *Document) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	base := filepath.Base(d.SourcePath)
	if name := strings.TrimSuffix(base, filepath.Ext(base)); name != "" && name != "." {
		return name
	}
	return "flow"
}

// ParseFile parses a flow file in JSON or YAML.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided flow file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses flow content. The top level is either a step list or a
// mapping with "steps" and optional "name", "variables" and "runtime".
// JSON input is accepted since it is valid YAML.
func Parse(data []byte, sourcePath string) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: fmt.Sprintf("invalid flow: %v", err)}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "empty flow file"}
	}

	doc := &Document{SourcePath: sourcePath}
	top := root.Content[0]

	switch top.Kind {
	case yaml.SequenceNode:
		steps, err := decodeSteps(top, sourcePath)
		if err != nil {
			return nil, err
		}
		doc.Steps = steps

	case yaml.MappingNode:
		for i := 0; i < len(top.Content)-1; i += 2 {
			key, value := top.Content[i].Value, top.Content[i+1]
			switch key {
			case "name":
				doc.Name = value.Value
			case "steps", "ui_flow":
				steps, err := decodeSteps(value, sourcePath)
				if err != nil {
					return nil, err
				}
				doc.Steps = steps
			case "variables":
				raw, err := decodeValue(value, sourcePath)
				if err != nil {
					return nil, err
				}
				doc.Variables = ParseVariables(raw)
			case "runtime":
				raw, err := decodeValue(value, sourcePath)
				if err != nil {
					return nil, err
				}
				m, ok := raw.(map[string]interface{})
				if !ok && raw != nil {
					return nil, &ParseError{Path: sourcePath, Line: value.Line, Message: "runtime must be a mapping"}
				}
				doc.Runtime = m
			}
		}
		if doc.Steps == nil {
			return nil, &ParseError{Path: sourcePath, Line: top.Line, Message: "flow document has no steps"}
		}

	default:
		return nil, &ParseError{Path: sourcePath, Line: top.Line, Message: "flow must be a list of steps or a mapping with steps"}
	}

	return doc, nil
}

func decodeSteps(node *yaml.Node, sourcePath string) ([]Step, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, &ParseError{Path: sourcePath, Line: node.Line, Message: "steps must be a list"}
	}

	steps := make([]Step, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return nil, &ParseError{Path: sourcePath, Line: item.Line, Message: "step must be a mapping"}
		}
		raw, err := decodeValue(item, sourcePath)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step(raw.(map[string]interface{})))
	}
	return steps, nil
}

func decodeValue(node *yaml.Node, sourcePath string) (interface{}, error) {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return nil, &ParseError{Path: sourcePath, Line: node.Line, Message: err.Error()}
	}
	return Normalize(v), nil
}

// Normalize converts YAML-decoded values into JSON-shaped ones: every mapping
// becomes map[string]interface{}.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, item := range t {
			t[k] = Normalize(item)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = Normalize(item)
		}
		return out
	case []interface{}:
		for i, item := range t {
			t[i] = Normalize(item)
		}
		return t
	default:
		return v
	}
}

// ParseVariables converts a decoded variable list. Entries that are not
// mappings or have no name are skipped.
func ParseVariables(raw interface{}) []Variable {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	var out []Variable
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		scope := "local"
		if s, ok := m["scope"]; ok && s != nil {
			scope = fmt.Sprint(s)
		}
		out = append(out, Variable{Name: name, Scope: scope, Value: m["value"]})
	}
	return out
}
