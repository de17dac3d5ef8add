// Package param declares typed action and task parameters and validates
// supplied values against them in a single pass.
package param

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"

	"github.com/viant/construct/model/types"
	"github.com/viant/structology/conv"
)

var validName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validator checks a single coerced value
type Validator func(value interface{}) error

// Spec describes a single parameter
type Spec struct {
	Name      string        `json:"name" yaml:"name"`
	Label     string        `json:"label,omitempty" yaml:"label,omitempty"`
	Help      string        `json:"help,omitempty" yaml:"help,omitempty"`
	Type      reflect.Type  `json:"-" yaml:"-"`
	Required  bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Default   interface{}   `json:"default,omitempty" yaml:"default,omitempty"`
	Options   []interface{} `json:"options,omitempty" yaml:"options,omitempty"`
	Validator Validator     `json:"-" yaml:"-"`
}

// Specs is an ordered parameter collection
type Specs []*Spec

// New creates a spec with type of the sample value
func New(name string, sample interface{}) *Spec {
	ret := &Spec{Name: name, Label: name}
	if sample != nil {
		ret.Type = reflect.TypeOf(sample)
	}
	return ret
}

// WithRequired marks parameter as required
func (s *Spec) WithRequired() *Spec {
	s.Required = true
	return s
}

// WithDefault sets default value
func (s *Spec) WithDefault(value interface{}) *Spec {
	s.Default = value
	return s
}

// WithOptions restricts allowed values
func (s *Spec) WithOptions(options ...interface{}) *Spec {
	s.Options = append(s.Options, options...)
	return s
}

// WithValidator sets custom validator
func (s *Spec) WithValidator(validator Validator) *Spec {
	s.Validator = validator
	return s
}

// Lookup returns spec by name
func (s Specs) Lookup(name string) *Spec {
	for _, spec := range s {
		if spec.Name == name {
			return spec
		}
	}
	return nil
}

// Defaults returns default values keyed by name
func (s Specs) Defaults() map[string]interface{} {
	ret := make(map[string]interface{})
	for _, spec := range s {
		if spec.Default != nil {
			ret[spec.Name] = spec.Default
		}
	}
	return ret
}

// Check validates the declaration itself
func (s Specs) Check() error {
	seen := make(map[string]bool, len(s))
	for _, spec := range s {
		if spec == nil {
			return fmt.Errorf("%w: nil parameter spec", types.ErrParameter)
		}
		if !validName.MatchString(spec.Name) {
			return fmt.Errorf("%w: %q contains invalid characters", types.ErrParameter, spec.Name)
		}
		if seen[spec.Name] {
			return fmt.Errorf("%w: duplicate parameter %q", types.ErrParameter, spec.Name)
		}
		seen[spec.Name] = true
		if spec.Default != nil && spec.Type != nil && !reflect.TypeOf(spec.Default).AssignableTo(spec.Type) {
			return fmt.Errorf("%w: %v default value %v does not match type %v", types.ErrParameter, spec.Name, spec.Default, spec.Type)
		}
		if spec.Type != nil {
			for _, option := range spec.Options {
				if option == nil || !reflect.TypeOf(option).AssignableTo(spec.Type) {
					return fmt.Errorf("%w: %v option %v does not match type %v", types.ErrParameter, spec.Name, option, spec.Type)
				}
			}
		}
	}
	return nil
}

// Validate applies defaults, coerces values to declared types and returns
// every violation at once
func (s Specs) Validate(values map[string]interface{}) (map[string]interface{}, error) {
	ret := make(map[string]interface{}, len(values))
	for k, v := range values {
		ret[k] = v
	}
	if len(s) == 0 {
		return ret, nil
	}
	verr := &types.ValidationError{}
	var unknown []string
	for name := range values {
		if s.Lookup(name) == nil {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		verr.Add(name, "unexpected argument")
	}

	converter := conv.NewConverter(conv.DefaultOptions())
	for _, spec := range s {
		value, ok := ret[spec.Name]
		if !ok || value == nil {
			if spec.Default != nil {
				ret[spec.Name] = spec.Default
				continue
			}
			if spec.Required {
				verr.Add(spec.Name, "missing required argument")
			}
			continue
		}
		if spec.Type != nil && !reflect.TypeOf(value).AssignableTo(spec.Type) {
			coerced, err := coerce(converter, spec.Type, value)
			if err != nil {
				verr.Add(spec.Name, "must be %v not %T", spec.Type, value)
				continue
			}
			value = coerced
			ret[spec.Name] = value
		}
		if len(spec.Options) > 0 && !contains(spec.Options, value) {
			verr.Add(spec.Name, "%v is not one of %v", value, spec.Options)
			continue
		}
		if spec.Validator != nil {
			if err := spec.Validator(value); err != nil {
				verr.Add(spec.Name, "%v", err)
			}
		}
	}
	if verr.HasViolations() {
		return ret, verr
	}
	return ret, nil
}

func coerce(converter *conv.Converter, aType reflect.Type, value interface{}) (interface{}, error) {
	instance := reflect.New(aType)
	if err := converter.Convert(value, instance.Interface()); err != nil {
		return nil, err
	}
	return instance.Elem().Interface(), nil
}

func contains(options []interface{}, value interface{}) bool {
	for _, option := range options {
		if reflect.DeepEqual(option, value) {
			return true
		}
	}
	return false
}
