package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConstruct is the root of every error kind raised by the engine
var ErrConstruct = errors.New("construct error")

type kind struct {
	name string
}

func (k *kind) Error() string {
	return k.name
}

func (k *kind) Unwrap() error {
	return ErrConstruct
}

func newKind(name string) error {
	return &kind{name: name}
}

var (
	ErrInvalidIdentifier = newKind("invalid identifier")
	ErrInvalidPluginPath = newKind("invalid plugin path")
	ErrRegistration      = newKind("registration error")
	ErrParameter         = newKind("parameter error")
	ErrValidation        = newKind("validation error")
	ErrActionUnavailable = newKind("action unavailable")
	ErrConnect           = newKind("connect error")
	ErrTimeout           = newKind("timeout")
	ErrExtractor         = newKind("extractor error")
	ErrInjector          = newKind("injector error")
	ErrAction            = newKind("action error")
)

// Violation describes a single invalid parameter
type Violation struct {
	Name   string
	Reason string
}

func (v Violation) String() string {
	return v.Name + ": " + v.Reason
}

// ValidationError lists every violation found by a single validation pass
type ValidationError struct {
	Violations []Violation
}

// Add appends a violation
func (e *ValidationError) Add(name, format string, args ...interface{}) {
	e.Violations = append(e.Violations, Violation{Name: name, Reason: fmt.Sprintf(format, args...)})
}

// HasViolations returns true if any violation was recorded
func (e *ValidationError) HasViolations() bool {
	return e != nil && len(e.Violations) > 0
}

// Lookup returns violation for name
func (e *ValidationError) Lookup(name string) *Violation {
	for i := range e.Violations {
		if e.Violations[i].Name == name {
			return &e.Violations[i]
		}
	}
	return nil
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
