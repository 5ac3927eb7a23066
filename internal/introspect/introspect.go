// Package introspect derives resource types from entity metadata and binds
// each one to a factory for its adapter.
package introspect

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/conduit-jsonapi/internal/adapter"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/resource"
)

// Options controls how resource type names are derived from entity names
type Options struct {
	// TypePrefix is stripped from the entity name when present
	TypePrefix string
	// TypeSuffix is appended to the stripped name
	TypeSuffix string
}

// TypeName derives the resource type name of an entity
func (o Options) TypeName(entityName string) string {
	return strings.TrimPrefix(entityName, o.TypePrefix) + o.TypeSuffix
}

// AdapterFactory creates an adapter bound to a request-scoped manager
type AdapterFactory func(manager *entity.Manager) *adapter.Adapter

// Binding pairs a resource type with the factory for its adapters
type Binding struct {
	Type           *resource.Type
	Meta           *mapping.EntityMetadata
	AdapterFactory AdapterFactory
}

// BuildSchemas produces one resource type per entity. Relationship targets
// are not checked; a dangling target surfaces when the engine looks it up.
func BuildSchemas(metas []*mapping.EntityMetadata, opts Options) ([]Binding, error) {
	bindings := make([]Binding, 0, len(metas))

	for _, meta := range metas {
		binder, err := adapter.NewBinder(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to build accessors for %s: %w", meta.Name, err)
		}

		typ := resource.NewType(opts.TypeName(meta.Name))
		typ.Creatable = true
		typ.Updatable = true

		for _, name := range meta.FieldNames() {
			if name == meta.Identifier {
				continue
			}
			typ.AddAttribute(&resource.Attribute{
				Name:       name,
				Filterable: true,
				Writable:   true,
				Sortable:   true,
			})
		}

		for _, assoc := range meta.Associations {
			cardinality := resource.HasMany
			if assoc.Kind.IsToOne() {
				cardinality = resource.HasOne
			}
			typ.AddRelationship(&resource.Relationship{
				Name:        assoc.FieldName,
				Type:        opts.TypeName(assoc.TargetEntity),
				Property:    assoc.FieldName,
				Cardinality: cardinality,
				Filterable:  true,
				Includable:  true,
			})
		}

		meta, typ := meta, typ
		bindings = append(bindings, Binding{
			Type: typ,
			Meta: meta,
			AdapterFactory: func(manager *entity.Manager) *adapter.Adapter {
				queries := adapter.NewQueryAdapter(manager, meta, binder, typ.Name)
				return adapter.New(typ, meta, queries, binder)
			},
		})
	}

	return bindings, nil
}
