package mapping

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry holds the metadata of every mapped entity in registration order
type Registry struct {
	ordered []*EntityMetadata
	byName  map[string]*EntityMetadata
	byType  map[reflect.Type]*EntityMetadata
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*EntityMetadata),
		byType: make(map[reflect.Type]*EntityMetadata),
	}
}

// Register introspects and registers each model (a struct or pointer to one)
func (r *Registry) Register(models ...any) error {
	for _, model := range models {
		meta, err := Introspect(model)
		if err != nil {
			return err
		}
		if err := r.add(meta); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) add(meta *EntityMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[meta.Name]; exists {
		return fmt.Errorf("entity %s is already registered", meta.Name)
	}
	r.ordered = append(r.ordered, meta)
	r.byName[meta.Name] = meta
	r.byType[meta.Type] = meta
	return nil
}

// AllMetadata returns the metadata of every registered entity in
// registration order
func (r *Registry) AllMetadata() []*EntityMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*EntityMetadata, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByName retrieves metadata by entity name
func (r *Registry) ByName(name string) (*EntityMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.byName[name]
	return meta, ok
}

// ByType retrieves metadata by struct or pointer type
func (r *Registry) ByType(t reflect.Type) (*EntityMetadata, bool) {
	if t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.byType[t]
	return meta, ok
}

// Of returns the metadata for a model instance
func (r *Registry) Of(model any) (*EntityMetadata, bool) {
	return r.ByType(reflect.TypeOf(model))
}

// Count returns the number of registered entities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.ordered)
}

// Target returns the metadata of an association's target entity
func (r *Registry) Target(assoc *Association) (*EntityMetadata, error) {
	target, ok := r.ByName(assoc.TargetEntity)
	if !ok {
		return nil, fmt.Errorf("association %s targets unknown entity %s", assoc.FieldName, assoc.TargetEntity)
	}
	return target, nil
}

// Owner returns the owning side of an association together with the entity
// declaring it. When assoc already owns the relation the entity is nil and
// assoc itself is returned.
func (r *Registry) Owner(assoc *Association) (*EntityMetadata, *Association, error) {
	target, err := r.Target(assoc)
	if err != nil {
		return nil, nil, err
	}
	if assoc.IsOwningSide() {
		return nil, assoc, nil
	}

	owner, ok := target.Association(assoc.MappedBy)
	if !ok {
		return nil, nil, fmt.Errorf("association %s is mapped by unknown %s.%s",
			assoc.FieldName, target.Name, assoc.MappedBy)
	}
	if !owner.IsOwningSide() {
		return nil, nil, fmt.Errorf("association %s is mapped by %s.%s, which is not an owning side",
			assoc.FieldName, target.Name, assoc.MappedBy)
	}
	return target, owner, nil
}

// Validate checks that every association target is registered and every
// inverse side points at an owning association of the right shape
func (r *Registry) Validate() error {
	for _, meta := range r.AllMetadata() {
		for _, assoc := range meta.Associations {
			_, owner, err := r.Owner(assoc)
			if err != nil {
				return fmt.Errorf("entity %s: %w", meta.Name, err)
			}
			if assoc.IsOwningSide() {
				continue
			}
			switch {
			case assoc.ManyToMany && !owner.ManyToMany:
				return fmt.Errorf("entity %s: many_to_many %s is mapped by non many_to_many %s",
					meta.Name, assoc.FieldName, owner.FieldName)
			case !assoc.ManyToMany && owner.Kind != ToOneOwning:
				return fmt.Errorf("entity %s: %s must be mapped by a to-one owning association",
					meta.Name, assoc.FieldName)
			}
		}
	}
	return nil
}
