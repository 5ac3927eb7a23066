package introspect

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/conduit-lang/conduit-jsonapi/internal/adapter"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/naming"
	"github.com/conduit-lang/conduit-jsonapi/internal/resource"
)

// snapshot is one immutable generation of the catalog
type snapshot struct {
	bindings []Binding
	byName   map[string]*Binding
	byType   map[reflect.Type]string
}

// Catalog is the process-wide, read-only set of resource types. It is built
// once at start-up and replaced as a whole by Reload.
type Catalog struct {
	opts    Options
	current atomic.Pointer[snapshot]
}

// NewCatalog builds a catalog from the metadata of every registered entity
func NewCatalog(metas []*mapping.EntityMetadata, opts Options) (*Catalog, error) {
	c := &Catalog{opts: opts}
	if err := c.Reload(metas); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rebuilds every resource type from metas and swaps them in
func (c *Catalog) Reload(metas []*mapping.EntityMetadata) error {
	bindings, err := BuildSchemas(metas, c.opts)
	if err != nil {
		return err
	}

	s := &snapshot{
		bindings: bindings,
		byName:   make(map[string]*Binding, len(bindings)),
		byType:   make(map[reflect.Type]string, len(bindings)),
	}
	for i := range bindings {
		b := &s.bindings[i]
		if _, dup := s.byName[b.Type.Name]; dup {
			return fmt.Errorf("duplicate resource type %s", b.Type.Name)
		}
		s.byName[b.Type.Name] = b
		s.byType[reflect.PointerTo(b.Meta.Type)] = b.Type.Name
	}

	c.current.Store(s)
	return nil
}

// CheckToManyAccessors verifies that every to-many relationship can be
// saved. Saving reads the members through the getter named after the
// relationship's target type, so type names that no getter matches (for
// example with an empty type suffix) fail every to-many write.
func (c *Catalog) CheckToManyAccessors() error {
	s := c.current.Load()
	var errs []error
	for i := range s.bindings {
		b := &s.bindings[i]
		for _, rel := range b.Type.Relationships {
			if rel.Cardinality != resource.HasMany {
				continue
			}
			getter := "Get" + naming.ToAccessorName(rel.Type, true, '-')
			if _, ok := reflect.PointerTo(b.Meta.Type).MethodByName(getter); !ok {
				errs = append(errs, fmt.Errorf("%s.%s is saved through %s, which %s does not define",
					b.Type.Name, rel.Name, getter, b.Meta.Name))
			}
		}
	}
	return errors.Join(errs...)
}

// Types returns the resource types in declaration order
func (c *Catalog) Types() []*resource.Type {
	s := c.current.Load()
	types := make([]*resource.Type, len(s.bindings))
	for i := range s.bindings {
		types[i] = s.bindings[i].Type
	}
	return types
}

// Lookup returns the resource type with the given name
func (c *Catalog) Lookup(name string) (*resource.Type, bool) {
	b, ok := c.current.Load().byName[name]
	if !ok {
		return nil, false
	}
	return b.Type, true
}

// Adapter creates an adapter for the named resource type bound to manager
func (c *Catalog) Adapter(name string, manager *entity.Manager) (*adapter.Adapter, bool) {
	b, ok := c.current.Load().byName[name]
	if !ok {
		return nil, false
	}
	return b.AdapterFactory(manager), true
}

// TypeOf resolves the resource type of a model. The precomputed type table
// answers directly; otherwise adapters are probed in declaration order and the
// first one representing model wins.
func (c *Catalog) TypeOf(model any) (string, bool) {
	if model == nil {
		return "", false
	}
	s := c.current.Load()
	if name, ok := s.byType[reflect.TypeOf(model)]; ok {
		return name, true
	}
	for i := range s.bindings {
		if s.bindings[i].Meta.Represents(model) {
			return s.bindings[i].Type.Name, true
		}
	}
	return "", false
}

// Neighbours returns the types linked to the named type by a relationship in
// either direction, in declaration order
func (c *Catalog) Neighbours(name string) []string {
	return c.within(name, 1)
}

// Dependents returns every type whose documents a change to the named type
// can alter, in declaration order. A document links its neighbours and may
// include them, and included resources carry their own linkage, so that is
// every type up to two relationships away.
func (c *Catalog) Dependents(name string) []string {
	return c.within(name, 2)
}

// within returns the types at most hops relationships away from name,
// following relationships in either direction
func (c *Catalog) within(name string, hops int) []string {
	s := c.current.Load()
	if _, ok := s.byName[name]; !ok {
		return nil
	}

	adjacent := make(map[string][]string, len(s.bindings))
	for i := range s.bindings {
		from := s.bindings[i].Type.Name
		for _, rel := range s.bindings[i].Type.Relationships {
			adjacent[from] = append(adjacent[from], rel.Type)
			adjacent[rel.Type] = append(adjacent[rel.Type], from)
		}
	}

	reached := map[string]bool{name: true}
	frontier := []string{name}
	for ; hops > 0 && len(frontier) > 0; hops-- {
		var next []string
		for _, n := range frontier {
			for _, m := range adjacent[n] {
				if !reached[m] {
					reached[m] = true
					next = append(next, m)
				}
			}
		}
		frontier = next
	}

	names := make([]string, 0, len(reached))
	for i := range s.bindings {
		n := s.bindings[i].Type.Name
		if n != name && reached[n] {
			names = append(names, n)
		}
	}
	return names
}
