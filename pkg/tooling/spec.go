// Package tooling provides the function definitions offered to the model
package tooling

import (
	"fmt"
	"os"

	"github.com/sealor/ai-extractor/pkg/conversation"
	"gopkg.in/yaml.v3"
)

// Spec is the YAML description of the functions offered for an event type.
//
//	call: create_event        # auto, none or a function name
//	functions:
//	  - name: create_event
//	    description: Parse the data into an Event object
//	    parameters: {type: object, properties: {...}, required: [...]}
type Spec struct {
	Call      string     `yaml:"call"`
	Functions []Function `yaml:"functions"`
}

type Function struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Parameters  map[string]any `yaml:"parameters"`
}

func LoadSpec(specFile string) (*Spec, error) {
	data, err := os.ReadFile(specFile)
	if err != nil {
		return nil, err
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", specFile, err)
	}
	return spec, nil
}

func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *Spec) Validate() error {
	seen := map[string]bool{}
	for _, f := range s.Functions {
		if f.Name == "" {
			return fmt.Errorf("function without name")
		}
		if seen[f.Name] {
			return fmt.Errorf("function %s defined twice", f.Name)
		}
		seen[f.Name] = true
		if t, ok := f.Parameters["type"]; ok && t != "object" {
			return fmt.Errorf("function %s: parameters must be an object schema", f.Name)
		}
	}

	mode, err := s.CallMode()
	if err != nil {
		return err
	}
	if mode != nil && mode.Kind == conversation.CallExplicit && !seen[mode.Name] {
		return fmt.Errorf("call refers to unknown function %s", mode.Name)
	}
	return nil
}

// CallMode defaults to auto when functions are defined without a call entry.
func (s *Spec) CallMode() (*conversation.FunctionCallMode, error) {
	if s.Call == "" {
		if len(s.Functions) == 0 {
			return nil, nil
		}
		return conversation.AutoCall(), nil
	}
	return conversation.ParseFunctionCallMode(s.Call)
}

func (s *Spec) FunctionSpecs() []conversation.FunctionSpec {
	var specs []conversation.FunctionSpec
	for _, f := range s.Functions {
		specs = append(specs, conversation.FunctionSpec{
			Name:        f.Name,
			Description: f.Description,
			Parameters:  f.Parameters,
		})
	}
	return specs
}

// Lookup finds a function among the offered ones.
func Lookup(functions []conversation.FunctionSpec, name string) (conversation.FunctionSpec, bool) {
	for _, f := range functions {
		if f.Name == name {
			return f, true
		}
	}
	return conversation.FunctionSpec{}, false
}
