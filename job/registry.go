package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrUnknownJobClass is returned when an envelope's class has no
// registered factory, or a Job's concrete type was never registered
// (spec §9 "poison envelopes so they can be observed").
var ErrUnknownJobClass = errors.New("job: unknown class")

// Factory constructs a zero-valued Job of a registered class, ready to be
// populated by json.Unmarshal against its serialized fields.
type Factory func() Job

// Registry maps job classes to factories and back, so envelopes can be
// reconstructed without the caller naming the Go type again (spec §9
// "dynamic handler dispatch -> explicit registry").
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	classes   map[reflect.Type]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		classes:   make(map[reflect.Type]string),
	}
}

// Register associates class with factory, populated at startup before any
// job is pushed or popped.
func (r *Registry) Register(class string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[class] = factory
	r.classes[reflect.TypeOf(factory())] = class
}

// ClassOf returns the registered class identifier for j's concrete type.
func (r *Registry) ClassOf(j Job) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	class, ok := r.classes[reflect.TypeOf(j)]
	return class, ok
}

// Encode serializes j into an envelope's class and fields.
func (r *Registry) Encode(j Job) (class string, fields json.RawMessage, err error) {
	class, ok := r.ClassOf(j)
	if !ok {
		return "", nil, fmt.Errorf("%w: %T is not registered", ErrUnknownJobClass, j)
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return "", nil, fmt.Errorf("job: encode %s: %w", class, err)
	}
	return class, raw, nil
}

// Decode reconstructs a Job from a class identifier and its serialized
// fields.
func (r *Registry) Decode(class string, fields json.RawMessage) (Job, error) {
	r.mu.RLock()
	factory, ok := r.factories[class]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobClass, class)
	}
	j := factory()
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, j); err != nil {
			return nil, fmt.Errorf("job: decode %s: %w", class, err)
		}
	}
	return j, nil
}

// DefaultsFor returns the defaults to apply when pushing j, consulting
// Defaulter if j implements it and falling back to fallback field by
// field.
func DefaultsFor(j Job, fallback Defaults) Defaults {
	d, ok := j.(Defaulter)
	if !ok {
		return fallback
	}
	def := d.Defaults()
	if def.Queue == "" {
		def.Queue = fallback.Queue
	}
	if def.MaxTries == 0 {
		def.MaxTries = fallback.MaxTries
	}
	if def.TimeoutSeconds == 0 {
		def.TimeoutSeconds = fallback.TimeoutSeconds
	}
	if def.RetryAfterSeconds == 0 {
		def.RetryAfterSeconds = fallback.RetryAfterSeconds
	}
	return def
}
