// Package algorithm provides named value transforms that a field applies
// before its value is encoded.
//
// Algorithms are one-way: the decoder returns the transformed value.
package algorithm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dccl/go-dccl/internal/wasm"
)

// ErrUnknown is returned by Apply for an unregistered algorithm.
var ErrUnknown = errors.New("algorithm: unknown algorithm")

// ErrType is returned when an algorithm receives a value it cannot transform.
var ErrType = errors.New("algorithm: unsupported value type")

// Func transforms one field value.
type Func func(v any) (any, error)

// Set is a concurrency-safe collection of named algorithms.
type Set struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{funcs: make(map[string]Func)}
}

// Builtins returns a set holding the built-in algorithms.
func Builtins() *Set {
	s := NewSet()
	s.funcs["to_lower"] = stringFunc(strings.ToLower)
	s.funcs["to_upper"] = stringFunc(strings.ToUpper)
	s.funcs["trim"] = stringFunc(strings.TrimSpace)
	s.funcs["angle_0_360"] = floatFunc(angle0To360)
	s.funcs["angle_-180_180"] = floatFunc(angleMinus180To180)
	s.funcs["abs"] = absolute
	return s
}

// Register adds or replaces an algorithm.
func (s *Set) Register(name string, fn Func) error {
	if name == "" {
		return errors.New("algorithm: empty name")
	}
	if fn == nil {
		return fmt.Errorf("algorithm: nil func for %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[name] = fn
	return nil
}

// Lookup returns the named algorithm.
func (s *Set) Lookup(name string) (Func, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.funcs[name]
	return fn, ok
}

// Apply runs the named algorithms over v in order.
func (s *Set) Apply(v any, names ...string) (any, error) {
	for _, name := range names {
		fn, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknown, name)
		}
		out, err := fn(v)
		if err != nil {
			return nil, fmt.Errorf("algorithm %q: %w", name, err)
		}
		v = out
	}
	return v, nil
}

// Names returns the registered names, sorted.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.funcs))
	for name := range s.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WASMFunc adapts an exported f64 -> f64 function of a loaded module.
func WASMFunc(rt *wasm.Runtime, module, fn string) Func {
	return floatFunc(func(x float64) (float64, error) {
		return rt.CallF64(context.Background(), module, fn, x)
	})
}
