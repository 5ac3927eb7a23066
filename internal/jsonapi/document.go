package jsonapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/DataDog/jsonapi"

	"github.com/conduit-lang/conduit-jsonapi/internal/adapter"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/resource"
)

// MediaType is the JSON:API media type
const MediaType = "application/vnd.api+json"

// Document is a top-level response document
type Document struct {
	Data     any            `json:"data"`
	Included []*Resource    `json:"included,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	Links    *jsonapi.Link  `json:"links,omitempty"`
}

// Identifier is a resource identifier object
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Resource is a resource object
type Resource struct {
	Type          string                   `json:"type"`
	ID            string                   `json:"id"`
	Attributes    map[string]any           `json:"attributes,omitempty"`
	Relationships map[string]*Relationship `json:"relationships,omitempty"`
	Links         *jsonapi.Link            `json:"links,omitempty"`
}

// Relationship is a relationship object. Data is nil, an *Identifier or a
// []*Identifier.
type Relationship struct {
	Data  any           `json:"data"`
	Links *jsonapi.Link `json:"links,omitempty"`
}

// serializer turns models into resource objects for one request. Related
// models are kept so included resources can be assembled afterwards.
type serializer struct {
	server  *Server
	manager *entity.Manager

	related map[string]map[string][]any // resource key -> relationship -> models
	seen    map[string]bool
}

func (s *Server) newSerializer(em *entity.Manager) *serializer {
	return &serializer{
		server:  s,
		manager: em,
		related: make(map[string]map[string][]any),
		seen:    make(map[string]bool),
	}
}

// adapterFor resolves the adapter of model's resource type
func (z *serializer) adapterFor(model any) (*adapter.Adapter, error) {
	name, ok := z.server.catalog.TypeOf(model)
	if !ok {
		return nil, fmt.Errorf("no resource type represents %T", model)
	}
	a, _ := z.server.catalog.Adapter(name, z.manager)
	return a, nil
}

// identify returns the resource identifier of model
func (z *serializer) identify(model any) (*Identifier, error) {
	a, err := z.adapterFor(model)
	if err != nil {
		return nil, err
	}
	id, err := a.GetID(model)
	if err != nil {
		return nil, err
	}
	return &Identifier{Type: a.Type().Name, ID: id}, nil
}

// resource serializes model through a. Deferred values are resolved here.
func (z *serializer) resource(ctx context.Context, a *adapter.Adapter, model any) (*Resource, error) {
	typ := a.Type()
	id, err := a.GetID(model)
	if err != nil {
		return nil, err
	}

	res := &Resource{
		Type:          typ.Name,
		ID:            id,
		Attributes:    make(map[string]any, len(typ.Attributes)),
		Relationships: make(map[string]*Relationship, len(typ.Relationships)),
		Links:         &jsonapi.Link{Self: z.server.resourcePath(typ.Name, id)},
	}
	key := resourceKey(typ.Name, id)
	z.seen[key] = true

	for _, attr := range typ.Attributes {
		v, err := a.GetAttribute(model, attr.Name)
		if err != nil {
			return nil, err
		}
		if v, err = adapter.Resolve(ctx, v); err != nil {
			return nil, fmt.Errorf("failed to resolve %s.%s: %w", typ.Name, attr.Name, err)
		}
		res.Attributes[attr.Name] = v
	}

	related := make(map[string][]any, len(typ.Relationships))
	for _, rel := range typ.Relationships {
		obj := &Relationship{
			Links: &jsonapi.Link{
				Related: z.server.resourcePath(typ.Name, id) + "/" + rel.Name,
			},
		}

		members, err := z.members(ctx, a, model, rel)
		if err != nil {
			return nil, err
		}
		related[rel.Name] = members

		if rel.Cardinality == resource.HasOne {
			if len(members) == 1 {
				if obj.Data, err = z.identify(members[0]); err != nil {
					return nil, err
				}
			}
		} else {
			linkage := make([]*Identifier, 0, len(members))
			for _, m := range members {
				ident, err := z.identify(m)
				if err != nil {
					return nil, err
				}
				linkage = append(linkage, ident)
			}
			obj.Data = linkage
		}
		res.Relationships[rel.Name] = obj
	}
	z.related[key] = related

	return res, nil
}

// members returns the related models of one relationship as a list
func (z *serializer) members(ctx context.Context, a *adapter.Adapter, model any, rel *resource.Relationship) ([]any, error) {
	if rel.Cardinality == resource.HasMany {
		return a.GetHasMany(ctx, model, rel)
	}
	v, err := a.GetHasOne(model, rel)
	if err != nil {
		return nil, err
	}
	if v, err = adapter.Resolve(ctx, v); err != nil {
		return nil, err
	}
	if v == nil {
		return []any{}, nil
	}
	return []any{v}, nil
}

// model serializes any model through the adapter of its resource type
func (z *serializer) model(ctx context.Context, model any) (*Resource, error) {
	a, err := z.adapterFor(model)
	if err != nil {
		return nil, err
	}
	return z.resource(ctx, a, model)
}

// included serializes the models reachable from primary through the named
// relationships, one level deep. Resources already in the document are
// skipped.
func (z *serializer) included(ctx context.Context, primary []*Resource, include []string) ([]*Resource, error) {
	out := make([]*Resource, 0)
	for _, res := range primary {
		related := z.related[resourceKey(res.Type, res.ID)]
		for _, name := range include {
			for _, m := range related[name] {
				ident, err := z.identify(m)
				if err != nil {
					return nil, err
				}
				if z.seen[resourceKey(ident.Type, ident.ID)] {
					continue
				}
				inc, err := z.model(ctx, m)
				if err != nil {
					return nil, err
				}
				out = append(out, inc)
			}
		}
	}
	return out, nil
}

func resourceKey(typeName, id string) string {
	return typeName + ":" + id
}

// writeDocument marshals doc before touching the response, so a failed
// encoding leaves the writer untouched
func writeDocument(w http.ResponseWriter, status int, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}
