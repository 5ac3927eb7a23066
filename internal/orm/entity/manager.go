package entity

import (
	"context"
	"fmt"
	"reflect"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"
)

// Manager loads and persists entities for one request. It is not safe for
// concurrent use.
type Manager struct {
	store    *Store
	identity map[string]any
}

// Store returns the store the manager belongs to
func (m *Manager) Store() *Store { return m.store }

// Registry returns the entity registry
func (m *Manager) Registry() *mapping.Registry { return m.store.registry }

// Dialect returns the SQL dialect
func (m *Manager) Dialect() query.Dialect { return m.store.dialect }

// MetadataOf returns the metadata describing model's type
func (m *Manager) MetadataOf(model any) (*mapping.EntityMetadata, error) {
	meta, ok := m.store.registry.Of(model)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnmanaged, model)
	}
	return meta, nil
}

// Contains reports whether model is held by the identity map
func (m *Manager) Contains(model any) bool {
	for _, managed := range m.identity {
		if managed == model {
			return true
		}
	}
	return false
}

// Clear detaches every managed instance
func (m *Manager) Clear() {
	m.identity = make(map[string]any)
}

// SelectColumns lists the columns hydration expects, in order: every mapped
// field followed by the join column of every owning to-one association.
func SelectColumns(meta *mapping.EntityMetadata, alias string) []query.Column {
	cols := make([]query.Column, 0, len(meta.Fields))
	for _, f := range meta.Fields {
		cols = append(cols, query.Col(alias, f.Column))
	}
	for _, a := range meta.OwningJoins() {
		cols = append(cols, query.Col(alias, a.JoinColumn))
	}
	return cols
}

// CreateQueryBuilder starts a SELECT of meta's rows under alias
func (m *Manager) CreateQueryBuilder(meta *mapping.EntityMetadata, alias string) *query.Builder {
	return query.New(m.store.dialect, meta.Table, alias).Select(SelectColumns(meta, alias)...)
}

// Result runs qb and hydrates the rows as instances of meta. qb must select
// SelectColumns(meta, alias) for some alias.
func (m *Manager) Result(ctx context.Context, meta *mapping.EntityMetadata, qb *query.Builder) ([]any, error) {
	sql, args, err := qb.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL: %w", err)
	}

	m.store.logQuery(sql, args)
	rows, err := m.store.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", meta.Name, ConvertDBError(err))
	}
	return m.hydrate(ctx, meta, rows)
}

// Count counts the distinct root rows matched by qb, ignoring ordering and
// pagination
func (m *Manager) Count(ctx context.Context, meta *mapping.EntityMetadata, qb *query.Builder) (int, error) {
	return m.countColumn(ctx, qb, query.Col(qb.Alias(), meta.IdentifierField().Column))
}

func (m *Manager) countColumn(ctx context.Context, qb *query.Builder, col query.Column) (int, error) {
	sql, args, err := qb.CountSQL(col)
	if err != nil {
		return 0, fmt.Errorf("failed to generate SQL: %w", err)
	}

	m.store.logQuery(sql, args)
	var count int
	if err := m.store.db.QueryRowContext(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count: %w", ConvertDBError(err))
	}
	return count, nil
}

// Find returns the instance of meta with the given identifier, consulting the
// identity map first. ErrNotFound is returned when no row matches.
func (m *Manager) Find(ctx context.Context, meta *mapping.EntityMetadata, id any) (any, error) {
	if managed, ok := m.identity[identityKey(meta, id)]; ok {
		return managed, nil
	}

	qb := m.CreateQueryBuilder(meta, "e").
		Where(query.Col("e", meta.IdentifierField().Column), query.OpEqual, id)
	results, err := m.Result(ctx, meta, qb)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s %v", ErrNotFound, meta.Name, id)
	}
	return results[0], nil
}

// JoinAssociation joins the target of assoc under alias, starting from the
// meta rows at fromAlias. Many-to-many associations also join their link table
// under alias + "_link".
func (m *Manager) JoinAssociation(qb *query.Builder, fromAlias string, meta *mapping.EntityMetadata, assoc *mapping.Association, alias string) (*mapping.EntityMetadata, error) {
	registry := m.store.registry
	target, err := registry.Target(assoc)
	if err != nil {
		return nil, err
	}
	_, owner, err := registry.Owner(assoc)
	if err != nil {
		return nil, err
	}

	fromID := query.Col(fromAlias, meta.IdentifierField().Column)
	targetID := query.Col(alias, target.IdentifierField().Column)
	link := alias + "_link"

	switch {
	case assoc.Kind == mapping.ToOneOwning:
		qb.InnerJoin(target.Table, alias, targetID, query.Col(fromAlias, assoc.JoinColumn))
	case assoc.IsManyToMany() && assoc.IsOwningSide():
		qb.InnerJoin(assoc.JoinTable, link, query.Col(link, assoc.JoinColumn), fromID)
		qb.InnerJoin(target.Table, alias, targetID, query.Col(link, assoc.InverseJoinColumn))
	case assoc.IsManyToMany():
		qb.InnerJoin(owner.JoinTable, link, query.Col(link, owner.InverseJoinColumn), fromID)
		qb.InnerJoin(target.Table, alias, targetID, query.Col(link, owner.JoinColumn))
	default:
		// inverse to-one and one-to-many: the foreign key lives on the target
		qb.InnerJoin(target.Table, alias, query.Col(alias, owner.JoinColumn), fromID)
	}
	return target, nil
}

// associationQuery selects the members of assoc for the meta row with id
func (m *Manager) associationQuery(meta *mapping.EntityMetadata, assoc *mapping.Association, id any) (*query.Builder, *mapping.EntityMetadata, error) {
	target, err := m.store.registry.Target(assoc)
	if err != nil {
		return nil, nil, err
	}

	qb := query.New(m.store.dialect, meta.Table, "owner").Select(SelectColumns(target, "related")...)
	if _, err := m.JoinAssociation(qb, "owner", meta, assoc, "related"); err != nil {
		return nil, nil, err
	}
	qb.Where(query.Col("owner", meta.IdentifierField().Column), query.OpEqual, id)
	return qb, target, nil
}

func (m *Manager) loadAssociation(ctx context.Context, meta *mapping.EntityMetadata, assoc *mapping.Association, id any) ([]any, error) {
	qb, target, err := m.associationQuery(meta, assoc, id)
	if err != nil {
		return nil, err
	}
	return m.Result(ctx, target, qb)
}

func (m *Manager) countAssociation(ctx context.Context, meta *mapping.EntityMetadata, assoc *mapping.Association, id any) (int, error) {
	qb, target, err := m.associationQuery(meta, assoc, id)
	if err != nil {
		return 0, err
	}
	return m.countColumn(ctx, qb, query.Col("related", target.IdentifierField().Column))
}

func identityKey(meta *mapping.EntityMetadata, id any) string {
	return meta.Name + ":" + FormatID(id)
}

// FormatID renders an identifier value as a string
func FormatID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	rv := reflect.ValueOf(id)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return ""
		}
		return FormatID(rv.Elem().Interface())
	}
	return fmt.Sprint(id)
}
