// Package schema holds compiled message schemas and the registry that
// validates them and serves lookups to the encoder and decoder.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dccl/go-dccl/pkg/dccl/dcclerr"
)

// ErrFrozen is returned by Register once the registry has been frozen.
var ErrFrozen = errors.New("schema: registry is frozen")

// Registry manages a collection of schemas keyed by id and by name.
//
// Registration is expected to happen during start-up; after Freeze the
// registry only serves lookups.
type Registry struct {
	// mutex protects concurrent access
	mutex sync.RWMutex

	// byID maps schema ids to their definitions
	byID map[uint32]*Schema

	// byName maps schema names to their definitions
	byName map[string]*Schema

	frozen bool
	limits Limits
	logger *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLimits sets the limits enforced at registration.
func WithLimits(l Limits) RegistryOption {
	return func(r *Registry) { r.limits = l }
}

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a new, empty schema registry
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		byID:   make(map[uint32]*Schema),
		byName: make(map[string]*Schema),
		limits: DefaultLimits(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if !validHeaderBits(r.limits.HeaderBits) {
		return nil, fmt.Errorf("schema: header width must be 8, 16 or 32 bits, got %d", r.limits.HeaderBits)
	}
	if r.limits.MaxDepth < 1 || r.limits.MaxRepeat < 1 || r.limits.MaxLength < 1 ||
		r.limits.MaxMessageBytes < 1 || r.limits.MaxElements < 1 {
		return nil, fmt.Errorf("schema: limits must be positive: %+v", r.limits)
	}
	return r, nil
}

// Limits returns the limits the registry enforces.
func (r *Registry) Limits() Limits {
	return r.limits
}

// Count returns the number of schemas in the registry
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.byID)
}

// Register validates a schema and stores a private copy of it. Validation
// failures are reported as *dcclerr.SchemaValidationError.
func (r *Registry) Register(s *Schema) error {
	if s == nil {
		return errors.New("schema: schema cannot be nil")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	_, err := r.registerLocked(s)
	return err
}

func (r *Registry) registerLocked(s *Schema) (*Schema, error) {
	c := s.clone()
	if err := validate(c, r.limits, r.resolveLocked); err != nil {
		r.logger.Debug("schema rejected", zap.String("schema", s.Name), zap.Uint32("id", s.ID), zap.Error(err))
		return nil, err
	}
	if existing, ok := r.byID[c.ID]; ok {
		return nil, invalid(c, "", "id %d already registered by %q", c.ID, existing.Name)
	}
	if _, ok := r.byName[c.Name]; ok {
		return nil, invalid(c, "", "name already registered")
	}

	r.byID[c.ID] = c
	r.byName[c.Name] = c

	min, max := c.SizeRange()
	r.logger.Debug("schema registered",
		zap.String("schema", c.Name),
		zap.Uint32("id", c.ID),
		zap.Int("fields", len(c.Fields)),
		zap.Int("min_bits", min),
		zap.Int("max_bits", max),
	)
	return c, nil
}

// RegisterAll registers a batch of schemas, ordering them so that every
// nested reference is registered before the schema that uses it. The batch
// is atomic: on any failure none of its schemas remain registered.
func (r *Registry) RegisterAll(schemas []*Schema) error {
	pending := make(map[string]*Schema, len(schemas))
	for _, s := range schemas {
		if s == nil {
			return errors.New("schema: schema cannot be nil")
		}
		pending[s.Name] = s
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.frozen {
		return ErrFrozen
	}

	var added []*Schema
	rollback := func(err error) error {
		for _, c := range added {
			delete(r.byID, c.ID)
			delete(r.byName, c.Name)
		}
		if len(added) > 0 {
			r.logger.Debug("schema batch rolled back", zap.Int("schemas", len(added)), zap.Error(err))
		}
		return err
	}

	remaining := append([]*Schema(nil), schemas...)
	for len(remaining) > 0 {
		var next []*Schema
		for _, s := range remaining {
			if waitsOn(s, pending) {
				next = append(next, s)
				continue
			}
			c, err := r.registerLocked(s)
			if err != nil {
				return rollback(err)
			}
			added = append(added, c)
			delete(pending, s.Name)
		}
		if len(next) == len(remaining) {
			return rollback(invalid(next[0], "", "cyclic nested message reference"))
		}
		remaining = next
	}
	return nil
}

// waitsOn reports whether s references another schema still pending.
func waitsOn(s *Schema, pending map[string]*Schema) bool {
	for _, f := range s.Fields {
		if f.Type != TypeMessage || f.Message == s.Name {
			continue
		}
		if _, ok := pending[f.Message]; ok {
			return true
		}
	}
	return false
}

// Validate checks a schema against the registry without registering it.
func (r *Registry) Validate(s *Schema) error {
	if s == nil {
		return errors.New("schema: schema cannot be nil")
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	c := s.clone()
	if err := validate(c, r.limits, r.resolveLocked); err != nil {
		return err
	}
	if _, ok := r.byID[c.ID]; ok {
		return invalid(c, "", "id %d already registered", c.ID)
	}
	if _, ok := r.byName[c.Name]; ok {
		return invalid(c, "", "name already registered")
	}
	return nil
}

func (r *Registry) resolveLocked(name string) (*Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Lookup returns the schema with the given id. The result is shared with
// every encoder and decoder using the registry and must not be modified; use
// Schema.Clone for an editable copy.
func (r *Registry) Lookup(id uint32) (*Schema, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, &dcclerr.UnknownSchemaError{ID: id}
	}
	return s, nil
}

// LookupByName returns the schema with the given name. Like Lookup, the
// result is read-only.
func (r *Registry) LookupByName(name string) (*Schema, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, ok := r.byName[name]
	if !ok {
		return nil, &dcclerr.UnknownSchemaError{Name: name}
	}
	return s, nil
}

// Freeze rejects any further registration.
func (r *Registry) Freeze() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.frozen
}

// IDs returns all schema ids, sorted numerically
func (r *Registry) IDs() []uint32 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]uint32, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Names returns all schema names, sorted alphabetically
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryStats contains statistics about the registry
type RegistryStats struct {
	SchemaCount int  `json:"schema_count"`
	FieldCount  int  `json:"field_count"`
	MaxDepth    int  `json:"max_depth"`
	MaxBits     int  `json:"max_bits"`
	Frozen      bool `json:"frozen"`
}

// Stats returns statistics about the registry
func (r *Registry) Stats() RegistryStats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := RegistryStats{SchemaCount: len(r.byID), Frozen: r.frozen}
	for _, s := range r.byID {
		stats.FieldCount += len(s.Fields)
		if s.depth > stats.MaxDepth {
			stats.MaxDepth = s.depth
		}
		if _, max := s.SizeRange(); max > stats.MaxBits {
			stats.MaxBits = max
		}
	}
	return stats
}

// String returns a string representation of the registry
func (r *Registry) String() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return fmt.Sprintf("Registry{schemas: %d, header_bits: %d, frozen: %t}", len(r.byID), r.limits.HeaderBits, r.frozen)
}
