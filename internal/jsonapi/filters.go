package jsonapi

import (
	"strings"

	"github.com/conduit-lang/conduit-jsonapi/internal/adapter"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/resource"
)

// applyFilters translates filter parameters into adapter calls:
//
//	filter[id]=1,2           identifiers
//	filter[title]=>=b        attribute comparison (=, <, >, <=, >=)
//	filter[author]=1,2       related identifiers
//	filter[author.name]=Bob  attribute of the related resource
//
// Names that are not filterable are rejected before any predicate is added.
func (s *Server) applyFilters(em *entity.Manager, a *adapter.Adapter, q *adapter.Query, filters []Filter) error {
	typ := a.Type()
	for _, f := range filters {
		param := "filter[" + f.Key + "]"

		if f.Key == "id" {
			a.FilterByIDs(q, splitList(f.Value))
			continue
		}

		relName, attrName, nested := strings.Cut(f.Key, ".")
		if !nested {
			if attr, ok := typ.Attribute(f.Key); ok {
				if !attr.Filterable {
					return badParameter(param, "%s cannot be filtered by %s", typ.Name, f.Key)
				}
				op, value := ParseComparison(f.Value)
				if err := a.CheckFilterValue(f.Key, value); err != nil {
					return badParameter(param, "%s: %v", f.Key, err)
				}
				a.FilterByAttribute(q, f.Key, value, op)
				continue
			}
		}

		rel, ok := typ.Relationship(relName)
		if !ok || !rel.Filterable {
			return badParameter(param, "%s cannot be filtered by %s", typ.Name, f.Key)
		}
		target, ok := s.catalog.Adapter(rel.Type, em)
		if !ok {
			return badParameter(param, "relationship %s refers to unknown type %s", rel.Name, rel.Type)
		}

		scope, err := relationshipScope(target, rel, attrName, nested, f.Value, param)
		if err != nil {
			return err
		}
		a.FilterByRelationship(q, rel.Property, scope)
	}
	return nil
}

// relationshipScope builds the predicate applied to the joined target of rel
func relationshipScope(target *adapter.Adapter, rel *resource.Relationship, attrName string, nested bool, value, param string) (func(*adapter.Query), error) {
	if !nested || attrName == "id" {
		ids := splitList(value)
		return func(sub *adapter.Query) { target.FilterByIDs(sub, ids) }, nil
	}

	attr, ok := target.Type().Attribute(attrName)
	if !ok || !attr.Filterable {
		return nil, badParameter(param, "%s cannot be filtered by %s", rel.Type, attrName)
	}
	op, v := ParseComparison(value)
	if err := target.CheckFilterValue(attrName, v); err != nil {
		return nil, badParameter(param, "%s: %v", attrName, err)
	}
	return func(sub *adapter.Query) { target.FilterByAttribute(sub, attrName, v, op) }, nil
}
