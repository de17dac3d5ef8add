// Package pipeline defines Context, the hierarchical location stack
// (project/sequence/shot/asset/task) that parameterizes action runs.
package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/viant/construct/model/types"
)

const (
	// EnvKey lists segment names, in stack order, inside the flat env representation
	EnvKey = "CONSTRUCT_CONTEXT"
	// EnvPrefix prefixes process environment variables
	EnvPrefix = "CONSTRUCT_"
	separator = "/"
	envSep    = ":"
	// reservedName would collide with EnvKey in Environ
	reservedName = "context"
)

// DefaultLevels is the level schema used by FromPath
var DefaultLevels = []string{"project", "sequence", "shot", "asset", "task"}

var segmentName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Segment is one frame of the context stack
type Segment struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Context is an ordered stack of named segments, safe for concurrent use
type Context struct {
	mux      sync.RWMutex
	levels   []string
	segments []Segment
}

// Option customises a Context
type Option func(c *Context)

// WithLevels overrides the level schema
func WithLevels(levels ...string) Option {
	return func(c *Context) {
		c.levels = append([]string(nil), levels...)
	}
}

// New creates an empty context
func New(options ...Option) *Context {
	ret := &Context{levels: DefaultLevels}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Levels returns the level schema
func (c *Context) Levels() []string {
	return append([]string(nil), c.levels...)
}

// Push adds a segment on top of the stack
func (c *Context) Push(name, value string) error {
	if err := validateSegment(name, value); err != nil {
		return err
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	for _, segment := range c.segments {
		if segment.Name == name {
			return fmt.Errorf("%w: segment %q already pushed", types.ErrValidation, name)
		}
	}
	c.segments = append(c.segments, Segment{Name: name, Value: value})
	return nil
}

// Pop removes the top segment
func (c *Context) Pop() (Segment, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if len(c.segments) == 0 {
		return Segment{}, fmt.Errorf("%w: pop on empty context", types.ErrConstruct)
	}
	last := len(c.segments) - 1
	ret := c.segments[last]
	c.segments = c.segments[:last]
	return ret, nil
}

// Scoped pushes a segment, runs fn, then pops exactly the pushed frame
func (c *Context) Scoped(name, value string, fn func() error) (err error) {
	if err = c.Push(name, value); err != nil {
		return err
	}
	depth := c.Depth()
	defer func() {
		c.mux.Lock()
		defer c.mux.Unlock()
		if len(c.segments) >= depth && c.segments[depth-1].Name == name {
			c.segments = append(c.segments[:depth-1], c.segments[depth:]...)
			return
		}
		if err == nil {
			err = fmt.Errorf("%w: scoped segment %q was removed", types.ErrConstruct, name)
		}
	}()
	return fn()
}

// Get returns value of the named segment
func (c *Context) Get(name string) (string, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	for i := len(c.segments) - 1; i >= 0; i-- {
		if c.segments[i].Name == name {
			return c.segments[i].Value, true
		}
	}
	return "", false
}

// Segments returns a copy of the stack, bottom first
func (c *Context) Segments() []Segment {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return append([]Segment(nil), c.segments...)
}

// Depth returns number of pushed segments
func (c *Context) Depth() int {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return len(c.segments)
}

// Clone returns an independent copy
func (c *Context) Clone() *Context {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return &Context{
		levels:   append([]string(nil), c.levels...),
		segments: append([]Segment(nil), c.segments...),
	}
}

// Equal returns true when both stacks hold the same ordered segments
func (c *Context) Equal(other *Context) bool {
	if c == nil || other == nil {
		return c == other
	}
	left, right := c.Segments(), other.Segments()
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}

// Path returns slash delimited segment values
func (c *Context) Path() string {
	segments := c.Segments()
	values := make([]string, 0, len(segments))
	for _, segment := range segments {
		values = append(values, segment.Value)
	}
	return strings.Join(values, separator)
}

func (c *Context) String() string {
	segments := c.Segments()
	pairs := make([]string, 0, len(segments))
	for _, segment := range segments {
		pairs = append(pairs, segment.Name+"="+segment.Value)
	}
	return "Context(" + strings.Join(pairs, ", ") + ")"
}

// FromPath binds i-th path element to i-th level
func FromPath(path string, levels ...string) (*Context, error) {
	if len(levels) == 0 {
		levels = DefaultLevels
	}
	ret := New(WithLevels(levels...))
	var elements []string
	for _, element := range strings.Split(path, separator) {
		if element = strings.TrimSpace(element); element != "" {
			elements = append(elements, element)
		}
	}
	if len(elements) > len(levels) {
		return nil, fmt.Errorf("%w: path %q has %d elements, only %d levels defined", types.ErrValidation, path, len(elements), len(levels))
	}
	for i, element := range elements {
		if err := ret.Push(levels[i], element); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// ToEnv returns flat representation keyed by segment name
func (c *Context) ToEnv() map[string]string {
	segments := c.Segments()
	ret := make(map[string]string, len(segments)+1)
	names := make([]string, 0, len(segments))
	for _, segment := range segments {
		ret[segment.Name] = segment.Value
		names = append(names, segment.Name)
	}
	ret[EnvKey] = strings.Join(names, envSep)
	return ret
}

// FromEnv rebuilds a context from ToEnv output
func FromEnv(env map[string]string, options ...Option) (*Context, error) {
	ret := New(options...)
	names, ok := env[EnvKey]
	if !ok {
		return ret, nil
	}
	if names == "" {
		return ret, nil
	}
	for _, name := range strings.Split(names, envSep) {
		value, ok := env[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing env value for segment %q", types.ErrValidation, name)
		}
		if err := ret.Push(name, value); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// Environ returns process environment entries, KEY=value
func (c *Context) Environ() []string {
	env := c.ToEnv()
	ret := make([]string, 0, len(env))
	for key, value := range env {
		if key != EnvKey {
			key = EnvPrefix + strings.ToUpper(key)
		}
		ret = append(ret, key+"="+value)
	}
	sort.Strings(ret)
	return ret
}

// FromEnviron rebuilds a context from Environ style entries
func FromEnviron(environ []string, options ...Option) (*Context, error) {
	byKey := make(map[string]string, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		byKey[key] = value
	}
	names, ok := byKey[EnvKey]
	if !ok {
		return New(options...), nil
	}
	env := map[string]string{EnvKey: names}
	if names != "" {
		for _, name := range strings.Split(names, envSep) {
			if value, ok := byKey[EnvPrefix+strings.ToUpper(name)]; ok {
				env[name] = value
			}
		}
	}
	return FromEnv(env, options...)
}

func validateSegment(name, value string) error {
	if !segmentName.MatchString(name) || name == reservedName {
		return fmt.Errorf("%w: invalid segment name %q", types.ErrValidation, name)
	}
	if value == "" || strings.Contains(value, separator) {
		return fmt.Errorf("%w: invalid value %q for segment %q", types.ErrValidation, value, name)
	}
	return nil
}
