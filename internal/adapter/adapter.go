package adapter

import (
	"context"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"
	"github.com/conduit-lang/conduit-jsonapi/internal/resource"
)

// Adapter is the per-resource-type contract consumed by the JSON:API engine.
// It delegates to a QueryAdapter and a Binder and adds no logic of its own.
type Adapter struct {
	typ     *resource.Type
	meta    *mapping.EntityMetadata
	queries *QueryAdapter
	binder  *Binder
}

// New binds a resource type to its query adapter and binder
func New(typ *resource.Type, meta *mapping.EntityMetadata, queries *QueryAdapter, binder *Binder) *Adapter {
	return &Adapter{typ: typ, meta: meta, queries: queries, binder: binder}
}

// Type returns the resource type served by the adapter
func (a *Adapter) Type() *resource.Type { return a.typ }

// Query starts a new query handle
func (a *Adapter) Query() *Query { return a.queries.NewQuery() }

// FilterByIDs restricts q to the given identifiers
func (a *Adapter) FilterByIDs(q *Query, ids []string) { a.queries.FilterByIDs(q, ids) }

// FilterByAttribute restricts q by comparing an attribute with value
func (a *Adapter) FilterByAttribute(q *Query, attribute string, value any, op query.Operator) {
	a.queries.FilterByAttribute(q, attribute, value, op)
}

// CheckFilterValue reports whether value can be compared with attribute.
// FilterByAttribute turns a value it rejects into a filter matching nothing.
func (a *Adapter) CheckFilterValue(attribute string, value any) error {
	return a.queries.CheckFilterValue(attribute, value)
}

// FilterByRelationship restricts q through a relationship
func (a *Adapter) FilterByRelationship(q *Query, relationship string, scope func(*Query)) {
	a.queries.FilterByRelationship(q, relationship, scope)
}

// SortByAttribute orders q by an attribute
func (a *Adapter) SortByAttribute(q *Query, attribute, direction string) {
	a.queries.SortByAttribute(q, attribute, direction)
}

// Paginate limits q to one page
func (a *Adapter) Paginate(q *Query, limit, offset int) { a.queries.Paginate(q, limit, offset) }

// Find returns the model with id, or nil
func (a *Adapter) Find(ctx context.Context, q *Query, id string) (any, error) {
	return a.queries.FindOne(ctx, q, id)
}

// Get returns the models matched by q
func (a *Adapter) Get(ctx context.Context, q *Query) ([]any, error) {
	return a.queries.FetchMany(ctx, q)
}

// Count returns the number of models matched by q
func (a *Adapter) Count(ctx context.Context, q *Query) (int, error) {
	return a.queries.Count(ctx, q)
}

// GetID returns the model's identifier
func (a *Adapter) GetID(model any) (string, error) { return a.binder.Identifier(model) }

// GetAttribute returns an attribute value, possibly a *Deferred
func (a *Adapter) GetAttribute(model any, attribute string) (any, error) {
	return a.binder.Attribute(model, attribute)
}

// GetHasOne returns the related model of a to-one relationship
func (a *Adapter) GetHasOne(model any, rel *resource.Relationship) (any, error) {
	return a.binder.ToOne(model, rel.Property)
}

// GetHasMany returns the related models of a to-many relationship
func (a *Adapter) GetHasMany(ctx context.Context, model any, rel *resource.Relationship) ([]any, error) {
	return a.binder.ToMany(ctx, model, rel.Property)
}

// Represents reports whether model is an instance of the adapter's entity
func (a *Adapter) Represents(model any) bool { return a.meta.Represents(model) }

// Model returns a new transient instance
func (a *Adapter) Model() any { return a.queries.Create() }

// SetID ignores client identifiers; they are assigned by the store
func (a *Adapter) SetID(model any, id string) {}

// SetAttribute writes an attribute
func (a *Adapter) SetAttribute(model any, attribute string, value any) error {
	return a.binder.SetAttribute(model, attribute, value)
}

// SetHasOne writes a to-one relationship
func (a *Adapter) SetHasOne(model any, rel *resource.Relationship, related any) error {
	return a.binder.SetToOne(model, rel.Name, related)
}

// SetHasMany replaces the members of a to-many relationship on the model
func (a *Adapter) SetHasMany(model any, rel *resource.Relationship, related []any) error {
	return a.binder.ReplaceToMany(model, rel.Property, related)
}

// Save persists model
func (a *Adapter) Save(ctx context.Context, model any) error { return a.queries.Save(ctx, model) }

// SaveHasMany persists the members of a to-many relationship
func (a *Adapter) SaveHasMany(ctx context.Context, model any, rel *resource.Relationship, related []any) error {
	return a.queries.SaveToMany(ctx, model, rel.Type, related)
}

// Delete removes model
func (a *Adapter) Delete(ctx context.Context, model any) error { return a.queries.Delete(ctx, model) }
