package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
)

var collectionType = reflect.TypeOf((*Collection)(nil))

type hydrated struct {
	value reflect.Value
	id    any
	joins []any
}

// hydrate scans rows into instances of meta. Associations are resolved after
// the rows are closed so that nested loads never hold two result sets open.
func (m *Manager) hydrate(ctx context.Context, meta *mapping.EntityMetadata, rows *sql.Rows) ([]any, error) {
	defer rows.Close()

	owning := meta.OwningJoins()
	idField := meta.IdentifierField()
	results := make([]any, 0)
	var fresh []*hydrated

	for rows.Next() {
		instance := meta.NewInstance()
		v := reflect.ValueOf(instance).Elem()

		dest := make([]any, 0, len(meta.Fields)+len(owning))
		for _, f := range meta.Fields {
			dest = append(dest, v.FieldByIndex(f.Index).Addr().Interface())
		}
		joins := make([]any, len(owning))
		for i := range joins {
			dest = append(dest, &joins[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", meta.Name, err)
		}

		id := v.FieldByIndex(idField.Index).Interface()
		key := identityKey(meta, id)
		if managed, ok := m.identity[key]; ok {
			results = append(results, managed)
			continue
		}
		m.identity[key] = instance
		results = append(results, instance)
		fresh = append(fresh, &hydrated{value: v, id: id, joins: joins})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	rows.Close()

	for _, h := range fresh {
		if err := m.resolveAssociations(ctx, meta, owning, h); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (m *Manager) resolveAssociations(ctx context.Context, meta *mapping.EntityMetadata, owning []*mapping.Association, h *hydrated) error {
	registry := m.store.registry

	for i, assoc := range owning {
		if h.joins[i] == nil {
			continue
		}
		target, err := registry.Target(assoc)
		if err != nil {
			return err
		}
		related, err := m.Find(ctx, target, h.joins[i])
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load %s.%s: %w", meta.Name, assoc.FieldName, err)
		}
		setRelated(h.value.FieldByIndex(assoc.Index), related)
	}

	for _, assoc := range meta.Associations {
		fv := h.value.FieldByIndex(assoc.Index)

		switch {
		case assoc.Kind == mapping.ToOneInverse:
			related, err := m.loadAssociation(ctx, meta, assoc, h.id)
			if err != nil {
				return fmt.Errorf("failed to load %s.%s: %w", meta.Name, assoc.FieldName, err)
			}
			if len(related) > 0 {
				setRelated(fv, related[0])
			}

		case assoc.Kind == mapping.ToMany && fv.Type() == collectionType:
			assoc, id := assoc, h.id
			fv.Set(reflect.ValueOf(NewLazyCollection(
				func(ctx context.Context) ([]any, error) {
					return m.loadAssociation(ctx, meta, assoc, id)
				},
				func(ctx context.Context) (int, error) {
					return m.countAssociation(ctx, meta, assoc, id)
				},
			)))

		case assoc.Kind == mapping.ToMany && fv.Kind() == reflect.Slice:
			related, err := m.loadAssociation(ctx, meta, assoc, h.id)
			if err != nil {
				return fmt.Errorf("failed to load %s.%s: %w", meta.Name, assoc.FieldName, err)
			}
			slice := reflect.MakeSlice(fv.Type(), 0, len(related))
			for _, r := range related {
				rv := reflect.ValueOf(r)
				if rv.Type().AssignableTo(fv.Type().Elem()) {
					slice = reflect.Append(slice, rv)
				}
			}
			fv.Set(slice)
		}
	}
	return nil
}

func setRelated(field reflect.Value, related any) {
	if related == nil {
		return
	}
	rv := reflect.ValueOf(related)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
	}
}
