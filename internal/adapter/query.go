package adapter

import (
	"context"
	"reflect"
	"strconv"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"
)

// Query is a request-scoped handle over one SELECT. Predicates added through
// a handle target its alias; handles passed to relationship scopes share the
// builder of the root handle but target the joined alias.
type Query struct {
	builder *query.Builder
	alias   string
	meta    *mapping.EntityMetadata
	root    *mapping.EntityMetadata
}

// Alias returns the alias predicates on this handle target
func (q *Query) Alias() string { return q.alias }

// Builder exposes the underlying query builder
func (q *Query) Builder() *query.Builder { return q.builder }

// IsRoot reports whether the handle targets the root entity
func (q *Query) IsRoot() bool { return q.alias == q.builder.Alias() }

// QueryAdapter translates the generic data operations into queries and
// persistence calls for one entity type
type QueryAdapter struct {
	manager *entity.Manager
	meta    *mapping.EntityMetadata
	binder  *Binder
	alias   string
}

// NewQueryAdapter creates a query adapter rooting its queries at alias
func NewQueryAdapter(manager *entity.Manager, meta *mapping.EntityMetadata, binder *Binder, alias string) *QueryAdapter {
	return &QueryAdapter{
		manager: manager,
		meta:    meta,
		binder:  binder,
		alias:   alias,
	}
}

// NewQuery starts a query over the entity's table aliased by the resource
// type name
func (a *QueryAdapter) NewQuery() *Query {
	return &Query{
		builder: a.manager.CreateQueryBuilder(a.meta, a.alias),
		alias:   a.alias,
		meta:    a.meta,
		root:    a.meta,
	}
}

// FilterByIDs restricts the handle's alias to the given identifiers. An empty
// set matches nothing.
func (a *QueryAdapter) FilterByIDs(q *Query, ids []string) {
	a.target(q, "FilterByIDs")

	values := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		if v, ok := a.parseID(id); ok {
			values = append(values, v)
		}
	}
	q.builder.WhereIn(query.Col(q.alias, a.meta.IdentifierField().Column), values)
}

// FilterByAttribute adds alias.attribute op value. Only =, <, >, <= and >=
// are supported; anything else is a caller defect and panics.
func (a *QueryAdapter) FilterByAttribute(q *Query, attribute string, value any, op query.Operator) {
	a.target(q, "FilterByAttribute")
	if !op.IsComparison() {
		panic(violation("FilterByAttribute", "unsupported operator %s", op))
	}

	field := a.field(attribute, "FilterByAttribute")
	col := query.Col(q.alias, field.Column)
	converted, err := convertValue(value, field.Type, true)
	if err != nil {
		// a value the column cannot hold matches nothing
		q.builder.WhereIn(col, []interface{}{})
		return
	}
	q.builder.Where(col, op, converted.Interface())
}

// CheckFilterValue returns the error FilterByAttribute would swallow when
// converting value to attribute's column type
func (a *QueryAdapter) CheckFilterValue(attribute string, value any) error {
	field := a.field(attribute, "CheckFilterValue")
	_, err := convertValue(value, field.Type, true)
	return err
}

// FilterByRelationship joins the relationship's target under the
// relationship name and lets scope add predicates against it. Root rows are
// selected DISTINCT once joined.
func (a *QueryAdapter) FilterByRelationship(q *Query, relationship string, scope func(*Query)) {
	a.target(q, "FilterByRelationship")

	assoc, ok := a.meta.Association(relationship)
	if !ok {
		panic(violation("FilterByRelationship", "%s has no relationship %s", a.meta.Name, relationship))
	}

	target, err := a.manager.Registry().Target(assoc)
	if err != nil {
		panic(violation("FilterByRelationship", "%v", err))
	}

	alias := relationship
	if !q.builder.HasJoin(alias) {
		if _, err := a.manager.JoinAssociation(q.builder, q.alias, a.meta, assoc, alias); err != nil {
			panic(violation("FilterByRelationship", "%v", err))
		}
	}
	q.builder.Distinct()

	if scope != nil {
		scope(&Query{builder: q.builder, alias: alias, meta: target, root: q.root})
	}
}

// SortByAttribute orders root rows by an attribute
func (a *QueryAdapter) SortByAttribute(q *Query, attribute, direction string) {
	a.target(q, "SortByAttribute")
	field := a.field(attribute, "SortByAttribute")
	q.builder.OrderBy(query.Col(q.alias, field.Column), direction)
}

// Paginate sets limit and offset, replacing earlier values
func (a *QueryAdapter) Paginate(q *Query, limit, offset int) {
	a.target(q, "Paginate")
	q.builder.SetMaxResults(limit).SetFirstResult(offset)
}

// FindOne returns the row with id among the rows matched by q, or nil when
// there is none. The handle itself is not modified.
func (a *QueryAdapter) FindOne(ctx context.Context, q *Query, id string) (any, error) {
	a.root(q, "FindOne")

	value, ok := a.parseID(id)
	if !ok {
		return nil, nil
	}
	qb := q.builder.Clone().Where(query.Col(q.alias, a.meta.IdentifierField().Column), query.OpEqual, value)

	results, err := a.manager.Result(ctx, a.meta, qb)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return nil, violation("FindOne", "%d %s rows match id %s", len(results), a.meta.Name, id)
	}
}

// FetchMany returns the rows matched by q with pagination applied. The total
// is counted first and an empty result is returned without running the page
// query when it is zero.
func (a *QueryAdapter) FetchMany(ctx context.Context, q *Query) ([]any, error) {
	a.root(q, "FetchMany")

	total, err := a.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []any{}, nil
	}
	return a.manager.Result(ctx, a.meta, q.builder)
}

// Count counts the distinct root rows matched by q, ignoring sort and
// pagination
func (a *QueryAdapter) Count(ctx context.Context, q *Query) (int, error) {
	a.root(q, "Count")
	return a.manager.Count(ctx, a.meta, q.builder)
}

// Create returns a new transient instance
func (a *QueryAdapter) Create() any {
	return a.meta.NewInstance()
}

// Save inserts or updates model and commits
func (a *QueryAdapter) Save(ctx context.Context, model any) error {
	return a.manager.Persist(ctx, model)
}

// SaveToMany persists every member reachable through the accessor named after
// relationshipType, then model itself. related is accepted for the contract
// but the persisted set comes from the model's own state.
func (a *QueryAdapter) SaveToMany(ctx context.Context, model any, relationshipType string, related []any) error {
	members, err := a.binder.membersForSave(ctx, model, relationshipType)
	if err != nil {
		return err
	}
	for _, member := range members {
		if err := a.manager.Persist(ctx, member); err != nil {
			return err
		}
	}
	return a.manager.Persist(ctx, model)
}

// Delete removes model and commits
func (a *QueryAdapter) Delete(ctx context.Context, model any) error {
	return a.manager.Remove(ctx, model)
}

// target checks that q's alias holds this adapter's entity
func (a *QueryAdapter) target(q *Query, op string) {
	if q == nil || q.meta != a.meta {
		panic(violation(op, "query handle does not target %s", a.meta.Name))
	}
}

// root checks that q is a root handle of this adapter's entity
func (a *QueryAdapter) root(q *Query, op string) {
	if q == nil || q.root != a.meta || !q.IsRoot() {
		panic(violation(op, "query handle is not a %s root query", a.meta.Name))
	}
}

func (a *QueryAdapter) field(attribute, op string) *mapping.Field {
	field, ok := a.meta.Field(attribute)
	if !ok || attribute == a.meta.Identifier {
		panic(violation(op, "%s has no attribute %s", a.meta.Name, attribute))
	}
	return field
}

// parseID converts an identifier string to the identifier field's type,
// reporting false when it cannot denote any row
func (a *QueryAdapter) parseID(id string) (any, bool) {
	t := a.meta.IdentifierField().Type
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(id, 10, t.Bits())
		if err != nil {
			return nil, false
		}
		return reflect.ValueOf(n).Convert(t).Interface(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(id, 10, t.Bits())
		if err != nil {
			return nil, false
		}
		return reflect.ValueOf(n).Convert(t).Interface(), true
	case reflect.String:
		return reflect.ValueOf(id).Convert(t).Interface(), true
	}
	return id, true
}
