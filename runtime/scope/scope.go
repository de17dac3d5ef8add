// Package scope resolves task input names against prior task outputs,
// invocation arguments and the pipeline context, in that order.
package scope

import (
	"sort"
	"sync"

	"github.com/viant/construct/model/pipeline"
)

// Source identifies where a value was resolved from
type Source string

const (
	SourceNone    Source = ""
	SourceOutput  Source = "output"
	SourceKwargs  Source = "kwargs"
	SourceContext Source = "context"
)

// Scope is a concurrency safe view shared by the loop and task workers
type Scope struct {
	mux     sync.RWMutex
	context *pipeline.Context
	kwargs  map[string]interface{}
	outputs map[string]interface{}
}

// New creates a scope; context may be nil
func New(context *pipeline.Context, kwargs map[string]interface{}) *Scope {
	ret := &Scope{context: context, kwargs: map[string]interface{}{}, outputs: map[string]interface{}{}}
	for k, v := range kwargs {
		ret.kwargs[k] = v
	}
	if ret.context == nil {
		ret.context = pipeline.New()
	}
	return ret
}

// Context returns pipeline context
func (s *Scope) Context() *pipeline.Context {
	return s.context
}

// Lookup resolves name
func (s *Scope) Lookup(name string) (interface{}, bool) {
	value, source := s.Resolve(name)
	return value, source != SourceNone
}

// Resolve resolves name and reports its source
func (s *Scope) Resolve(name string) (interface{}, Source) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if value, ok := s.outputs[name]; ok {
		return value, SourceOutput
	}
	if value, ok := s.kwargs[name]; ok {
		return value, SourceKwargs
	}
	if value, ok := s.context.Get(name); ok {
		return value, SourceContext
	}
	return nil, SourceNone
}

// Has returns true if every name resolves
func (s *Scope) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := s.Lookup(name); !ok {
			return false
		}
	}
	return true
}

// Bind records a task output
func (s *Scope) Bind(name string, value interface{}) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.outputs[name] = value
}

// Unbind removes a task output
func (s *Scope) Unbind(name string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.outputs, name)
}

// Kwargs returns a copy of invocation arguments
func (s *Scope) Kwargs() map[string]interface{} {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return copyMap(s.kwargs)
}

// Outputs returns a copy of bound task outputs
func (s *Scope) Outputs() map[string]interface{} {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return copyMap(s.outputs)
}

// Names returns every resolvable name, sorted
func (s *Scope) Names() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	unique := map[string]bool{}
	for k := range s.outputs {
		unique[k] = true
	}
	for k := range s.kwargs {
		unique[k] = true
	}
	for _, segment := range s.context.Segments() {
		unique[segment.Name] = true
	}
	ret := make([]string, 0, len(unique))
	for k := range unique {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

func copyMap(source map[string]interface{}) map[string]interface{} {
	ret := make(map[string]interface{}, len(source))
	for k, v := range source {
		ret[k] = v
	}
	return ret
}
